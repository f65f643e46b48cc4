package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	smallChunkSize = 1 << 20
	largeChunkSize = 2 << 20

	// largeDownloadThreshold switches to larger chunks for big files.
	largeDownloadThreshold = 100 << 20

	// IntegrityTolerance is the accepted difference between declared and
	// written bytes.
	IntegrityTolerance = 1 << 10

	progressInterval = 500 * time.Millisecond
)

// DownloadFile streams url to destPath, resuming a partial file if present.
//
// If destPath already holds data, a byte-range request continues from its
// size and appends. A server that ignores the range (200) causes a fresh
// download; a 416 whose total equals the local size means the file is
// already complete.
//
// onProgress is called with (bytesWritten, totalBytes) at most every 500ms,
// plus once with the final size on success. totalBytes is -1 while unknown.
// Pass nil to disable progress tracking.
//
// The call returns false on any failure: network errors, unexpected status,
// cancellation of ctx (polled between chunks) or a size mismatch beyond
// IntegrityTolerance. On network failure and cancellation the partial file
// is left in place so a later call can resume it; a size mismatch removes it.
//
// Example:
//
//	ok := client.DownloadFile(ctx, videoURL, "/videos/x/x.video.m4s", "video", func(written, total int64) {
//	    if total > 0 {
//	        fmt.Printf("%.1f%%\r", float64(written)/float64(total)*100)
//	    }
//	})
func (c *Client) DownloadFile(ctx context.Context, url, destPath, label string, onProgress func(written, total int64)) bool {
	log := c.logger.WithFields(logrus.Fields{"label": label, "path": destPath})

	var offset int64
	if info, err := os.Stat(destPath); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		offset = info.Size()
	}

	if err := c.pace(ctx); err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.WithError(err).Error("build download request")
		return false
	}
	c.decorate(req)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("download request failed")
		return false
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	var total int64 = -1

	switch {
	case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		start, declared, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if ok && start != offset {
			log.WithFields(logrus.Fields{"offset": offset, "start": start}).Warn("server resumed at wrong offset, discarding partial file")
			_ = os.Remove(destPath)
			return false
		}
		switch {
		case ok && declared >= 0:
			total = declared
		case resp.ContentLength >= 0:
			total = offset + resp.ContentLength
		}
		flags |= os.O_APPEND
		log.WithField("offset", offset).Debug("resuming download")

	case offset > 0 && resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		if _, declared, ok := parseContentRange(resp.Header.Get("Content-Range")); ok && declared == offset {
			if onProgress != nil {
				onProgress(offset, offset)
			}
			return true
		}
		log.WithField("offset", offset).Warn("range not satisfiable, discarding partial file")
		_ = os.Remove(destPath)
		return false

	case resp.StatusCode == http.StatusOK:
		offset = 0
		total = resp.ContentLength
		flags |= os.O_TRUNC

	default:
		log.WithField("status", resp.StatusCode).Warn("unexpected download status")
		return false
	}

	file, err := os.OpenFile(destPath, flags, 0644)
	if err != nil {
		log.WithError(err).Error("open destination")
		return false
	}

	written, err := c.stream(ctx, resp.Body, file, offset, total, onProgress)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		if ctx.Err() != nil {
			log.WithField("written", written).Info("download cancelled")
		} else {
			log.WithError(err).WithField("written", written).Warn("download interrupted")
		}
		return false
	}

	if total >= 0 && !WithinTolerance(total, written) {
		log.WithFields(logrus.Fields{"declared": total, "written": written}).Error("download size mismatch")
		_ = os.Remove(destPath)
		return false
	}

	if onProgress != nil {
		onProgress(written, written)
	}
	return true
}

// stream copies body to w chunk by chunk and returns the total file size.
func (c *Client) stream(ctx context.Context, body io.Reader, w io.Writer, offset, total int64, onProgress func(written, total int64)) (int64, error) {
	buf := make([]byte, chunkSize(total))
	written := offset
	reporter := newProgressThrottle(progressInterval, c.now(), onProgress)

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := readChunk(body, buf)
		if n > 0 {
			if err := c.waitBytes(ctx, n); err != nil {
				return written, err
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			reporter.report(written, total, c.now())
		}

		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// waitBytes blocks until the bandwidth limiter admits n bytes.
func (c *Client) waitBytes(ctx context.Context, n int) error {
	if c.limiter == nil {
		return nil
	}
	burst := c.limiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := c.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// readChunk fills buf unless the reader ends or fails first. Unlike
// io.ReadFull it passes the underlying error through unchanged, so a
// truncated body is not mistaken for a clean end of stream.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func chunkSize(total int64) int {
	if total > largeDownloadThreshold {
		return largeChunkSize
	}
	return smallChunkSize
}

// WithinTolerance reports whether actual is within IntegrityTolerance of declared.
func WithinTolerance(declared, actual int64) bool {
	diff := actual - declared
	if diff < 0 {
		diff = -diff
	}
	return diff <= IntegrityTolerance
}

// parseContentRange parses "bytes start-end/total" and "bytes */total".
// total is -1 when the server sends "*".
func parseContentRange(value string) (start, total int64, ok bool) {
	value = strings.TrimSpace(value)
	rest, found := strings.CutPrefix(value, "bytes ")
	if !found {
		return 0, 0, false
	}
	span, size, found := strings.Cut(rest, "/")
	if !found {
		return 0, 0, false
	}

	total = -1
	if size != "*" {
		n, err := strconv.ParseInt(size, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		total = n
	}

	if span == "*" {
		return -1, total, true
	}
	first, _, found := strings.Cut(span, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, total, true
}

// progressThrottle forwards at most one update per interval.
type progressThrottle struct {
	interval time.Duration
	last     time.Time
	fn       func(written, total int64)
}

func newProgressThrottle(interval time.Duration, start time.Time, fn func(written, total int64)) *progressThrottle {
	return &progressThrottle{interval: interval, last: start, fn: fn}
}

func (p *progressThrottle) report(written, total int64, now time.Time) {
	if p.fn == nil || now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.fn(written, total)
}
