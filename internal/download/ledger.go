package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	ioutils "github.com/handiism/bilibili-downloader/internal/io"
)

const (
	ledgerFile     = ".ledger.json"
	ledgerLockFile = ".ledger.lock"
	lockRetryDelay = 100 * time.Millisecond
)

// Ledger records finished downloads so a repeated request for the same
// content and page can be skipped without asking the API for its title.
//
// The ledger is a JSON object in the downloads directory mapping
// "id#page" to the merged file. Access is serialized with a file lock so
// several processes may share one downloads directory.
type Ledger struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// NewLedger opens the ledger stored in dir. The file is created on first write.
func NewLedger(dir string) *Ledger {
	return &Ledger{
		path: filepath.Join(dir, ledgerFile),
		lock: flock.New(filepath.Join(dir, ledgerLockFile)),
	}
}

// Lookup returns the merged path recorded for key.
func (l *Ledger) Lookup(ctx context.Context, key string) (string, bool) {
	var path string
	err := l.withLock(ctx, func(entries map[string]string) bool {
		path = entries[key]
		return false
	})
	if err != nil || path == "" {
		return "", false
	}
	return path, true
}

// Record stores mergedPath under every key.
func (l *Ledger) Record(ctx context.Context, mergedPath string, keys ...string) error {
	return l.withLock(ctx, func(entries map[string]string) bool {
		for _, k := range keys {
			entries[k] = mergedPath
		}
		return true
	})
}

// withLock loads the entries under the file lock and saves them again if fn
// reports a change.
func (l *Ledger) withLock(ctx context.Context, fn func(map[string]string) (changed bool)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ioutils.EnsureDir(filepath.Dir(l.path)); err != nil {
		return err
	}
	locked, err := l.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	if !locked {
		return errors.New("lock ledger: not acquired")
	}
	defer l.lock.Unlock()

	entries := map[string]string{}
	if err := ioutils.ReadJSON(l.path, &entries); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if entries == nil {
		entries = map[string]string{}
	}
	if !fn(entries) {
		return nil
	}
	// The file lock is already held; the write must not be interrupted by ctx.
	return ioutils.WriteJSON(context.WithoutCancel(ctx), l.path, entries)
}
