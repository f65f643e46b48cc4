package download

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/handiism/bilibili-downloader/internal/audio"
	"github.com/handiism/bilibili-downloader/internal/bilibili"
	"github.com/handiism/bilibili-downloader/internal/config"
	"github.com/handiism/bilibili-downloader/internal/ffmpeg"
	bhttp "github.com/handiism/bilibili-downloader/internal/http"
	ioutils "github.com/handiism/bilibili-downloader/internal/io"
	"github.com/handiism/bilibili-downloader/internal/model"
)

// NoticeLevel indicates the severity/type of a notice message.
type NoticeLevel int

const (
	LevelInfo NoticeLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

func (l NoticeLevel) String() string {
	switch l {
	case LevelVerbose:
		return "verbose"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelSuccess:
		return "success"
	default:
		return "info"
	}
}

// Notice is a human readable message about a job, for display.
type Notice struct {
	JobID   string
	Message string
	Level   NoticeLevel
}

// MediaEngine is the part of the ffmpeg engine the pipeline uses.
type MediaEngine interface {
	Available() bool
	Run(ctx context.Context, op ffmpeg.Operation, onProgress func(percent int)) ffmpeg.Result
}

// Stats counts finished jobs by outcome.
type Stats struct {
	Done      int32
	Skipped   int32
	Cancelled int32
	Failed    int32
}

// Total is the number of finished jobs.
func (s Stats) Total() int32 {
	return s.Done + s.Skipped + s.Cancelled + s.Failed
}

// Manager runs download jobs: resolve, download the streams, fetch the
// requested sidecars, merge and post-process.
//
// Each job gets its own HTTP client so request pacing is never shared
// between jobs. Jobs never return errors; every outcome is a Result.
//
// Example usage:
//
//	engine := ffmpeg.NewEngine(ctx, ffmpeg.Options{Dir: settings.FFmpegDir})
//	manager := download.NewManager(settings, engine, download.WithNotice(func(n download.Notice) {
//	    fmt.Println(n.Message)
//	}))
//
//	res := manager.Download(ctx, download.Request{
//	    ID:      "BV1xx411c7mD",
//	    Quality: model.Quality1080P,
//	    Flags:   manager.FlagsFromSettings(),
//	})
//	if res.Status == download.StatusCancelled {
//	    // not an error
//	}
type Manager struct {
	settings     *config.Settings
	engine       MediaEngine
	endpoints    bilibili.Endpoints
	ledger       *Ledger
	tagger       *audio.Tagger
	imageService *ioutils.ImageService
	logger       logrus.FieldLogger

	clientOptions []bhttp.Option
	onNotice      func(Notice)
	newID         func() string
	now           func() time.Time

	done, skipped, cancelled, failed atomic.Int32
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger for the manager and every job it runs.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNotice registers a callback for human readable job messages. It is
// invoked from the goroutine running the job, so concurrent jobs may call
// it concurrently.
func WithNotice(fn func(Notice)) Option {
	return func(m *Manager) {
		m.onNotice = fn
	}
}

// WithClientOptions adds options to every per-job HTTP client.
func WithClientOptions(opts ...bhttp.Option) Option {
	return func(m *Manager) {
		m.clientOptions = append(m.clientOptions, opts...)
	}
}

// NewManager creates a Manager. engine may report itself unavailable, in
// which case jobs keep the raw streams and fail at the merge stage.
func NewManager(settings *config.Settings, engine MediaEngine, opts ...Option) *Manager {
	m := &Manager{
		settings: settings,
		engine:   engine,
		endpoints: bilibili.Endpoints{
			API:     settings.APIBaseURL,
			Comment: settings.CommentBaseURL,
		},
		ledger:       NewLedger(settings.DownloadsPath),
		tagger:       audio.NewTagger(audio.DefaultTagConfig()),
		imageService: ioutils.NewImageService(),
		logger:       logrus.StandardLogger(),
		newID:        uuid.NewString,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Download runs one job to completion and reports its outcome.
//
// The job is aborted when ctx is cancelled or the configured job timeout
// elapses; its working directory is then removed and the result carries
// StatusCancelled. A job whose merged file already exists is skipped.
func (m *Manager) Download(ctx context.Context, req Request) Result {
	res := m.download(ctx, req)
	switch res.Status {
	case StatusDone:
		m.done.Add(1)
	case StatusSkipped:
		m.skipped.Add(1)
	case StatusCancelled:
		m.cancelled.Add(1)
	default:
		m.failed.Add(1)
	}
	return res
}

// DownloadAll runs reqs with at most MaxConcurrentJobs jobs in flight and
// returns their results in request order.
func (m *Manager) DownloadAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(max(m.settings.MaxConcurrentJobs, 1))
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = m.Download(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	if m.settings.CreatePlaylist {
		m.writePlaylist(ctx, results)
	}
	return results
}

// Stats returns the number of jobs finished so far by outcome.
func (m *Manager) Stats() Stats {
	return Stats{
		Done:      m.done.Load(),
		Skipped:   m.skipped.Load(),
		Cancelled: m.cancelled.Load(),
		Failed:    m.failed.Load(),
	}
}

func (m *Manager) download(ctx context.Context, req Request) Result {
	contentID, urlPage, err := bilibili.ParseID(req.ID)
	if err != nil {
		m.notify(Notice{Message: fmt.Sprintf("Invalid video id %q", req.ID), Level: LevelError})
		return Result{Status: StatusFailed, FailedStage: model.StageResolve, Message: "invalid video id"}
	}
	page := req.Page
	if page < 1 {
		page = urlPage
	}
	if page < 1 {
		page = 1
	}

	if res, ok := m.alreadyDone(ctx, req, contentID, page); ok {
		m.notify(Notice{Message: fmt.Sprintf("Skipping existing: %s", filepath.Base(res.MergedPath)), Level: LevelVerbose})
		return res
	}

	if timeout := m.settings.JobTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	id := m.newID()
	log := m.logger.WithFields(logrus.Fields{"job": id, "id": contentID.String(), "page": page})
	client := bhttp.NewClient(m.settings.ToClientConfig(), append([]bhttp.Option{
		bhttp.WithCredentials(req.Credentials),
		bhttp.WithLogger(log),
	}, m.clientOptions...)...)

	run := &jobRun{
		m:         m,
		id:        id,
		req:       req,
		contentID: contentID,
		page:      page,
		log:       log,
		client:    client,
		resolver:  bilibili.NewResolver(client, m.endpoints, log),
	}
	return run.execute(ctx)
}

// alreadyDone checks for a finished merge without touching the network,
// first by the caller supplied title, then through the ledger.
func (m *Manager) alreadyDone(ctx context.Context, req Request, contentID bilibili.ContentID, page int) (Result, bool) {
	var merged string
	if req.Title != "" {
		merged = model.NewJob(contentID.String(), page, req.Title, m.settings.ToPathConfig()).MergedPath
	} else if path, ok := m.ledger.Lookup(ctx, model.LedgerKey(contentID.String(), page)); ok {
		merged = path
	}
	if merged == "" || !mergedDone(merged) {
		return Result{}, false
	}
	return skippedResult(merged), true
}

func (m *Manager) writePlaylist(ctx context.Context, results []Result) {
	var entries []audio.PlaylistEntry
	for _, r := range results {
		if r.MergedPath != "" {
			entries = append(entries, audio.PlaylistEntry{Path: r.MergedPath, Title: r.Title, Duration: r.Duration})
		}
	}
	if len(entries) == 0 {
		return
	}

	format, err := audio.ParsePlaylistFormat(m.settings.PlaylistFormat)
	if err != nil {
		m.logger.WithError(err).Warn("invalid playlist format, using m3u")
	}
	path := filepath.Join(m.settings.DownloadsPath, "playlist-"+m.now().Format("20060102-150405")+format.Extension())
	content := audio.NewPlaylistCreator(format).CreatePlaylist(path, entries)
	if err := ioutils.WriteFileAtomic(ctx, path, []byte(content)); err != nil {
		m.notify(Notice{Message: fmt.Sprintf("Error creating playlist: %v", err), Level: LevelWarning})
		return
	}
	m.notify(Notice{Message: fmt.Sprintf("Created playlist %s", filepath.Base(path)), Level: LevelSuccess})
}

func (m *Manager) notify(n Notice) {
	if m.onNotice != nil {
		m.onNotice(n)
	}
}

func (m *Manager) waitForRetry(ctx context.Context, tries int) {
	cooldown := m.settings.DownloadRetryCooldown * math.Pow(m.settings.DownloadRetryExponent, float64(tries))
	if cooldown <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(cooldown * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
