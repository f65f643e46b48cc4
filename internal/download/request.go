package download

import (
	"time"

	"github.com/handiism/bilibili-downloader/internal/model"
)

// Flags selects the optional stages of a job.
type Flags struct {
	Danmaku  bool
	Comments bool
	Cover    bool

	// DeleteOriginals removes the raw streams after a successful merge.
	DeleteOriginals bool

	// ExtractMP3 writes a tagged MP3 next to the merged file.
	ExtractMP3 bool
}

// FlagsFromSettings returns the optional stages enabled in the configuration.
func (m *Manager) FlagsFromSettings() Flags {
	return Flags{
		Danmaku:         m.settings.DownloadDanmaku,
		Comments:        m.settings.DownloadComments,
		Cover:           m.settings.SaveCoverArt,
		DeleteOriginals: m.settings.DeleteOriginals,
		ExtractMP3:      m.settings.ExtractMP3,
	}
}

// Request describes one video page to download.
type Request struct {
	// ID is a BV id, an av id or a video page URL.
	ID string

	// Page is the 1-based page. Zero means the page in the URL, or 1.
	Page int

	// Title, when set, names the working directory. It lets a repeated
	// request be recognized as done without any network access. Without a
	// Title that only works once the ledger has an entry for the id and
	// page; otherwise the finished file is found after metadata is resolved.
	Title string

	// Quality is the ceiling. Zero means the best the credentials allow.
	Quality     model.Quality
	Codec       model.Codec
	Audio       model.AudioTier
	Credentials model.Credentials
	Flags       Flags

	// OnProgress receives the stage progress of this job. It is invoked from
	// the goroutine running the job.
	OnProgress model.ProgressFunc
}

// Status is the terminal outcome of a job.
type Status string

const (
	StatusDone      Status = "done"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Result is the outcome of one Download call.
type Result struct {
	// JobID identifies the job in logs. Empty for skipped requests.
	JobID string

	// Success is true for StatusDone and StatusSkipped.
	Success bool
	Status  Status

	// FailedStage is the stage that failed, for StatusFailed.
	FailedStage model.Stage

	// Title is the sanitized directory and file stem.
	Title string

	// MergedPath is set only when the merge succeeded or was already done.
	MergedPath string

	// VideoPath and AudioPath are the raw streams still on disk.
	VideoPath string
	AudioPath string

	// Sidecars maps a sidecar stage to the file written for it.
	Sidecars map[model.Stage]string

	// MP3Path is set when audio extraction succeeded.
	MP3Path string

	// Duration of the video page, when known.
	Duration time.Duration

	// Message is a short human readable summary.
	Message string
}

// StageCallbacks adapts per-stage callbacks to a single ProgressFunc.
//
// Download stages report bytes; Merge reports a percentage out of 100.
//
//	req.OnProgress = download.StageCallbacks{
//	    Video: func(done, total int64) { ... },
//	    Audio: func(done, total int64) { ... },
//	    Merge: func(done, total int64) { ... },
//	}.ProgressFunc()
type StageCallbacks struct {
	Video func(done, total int64)
	Audio func(done, total int64)
	Merge func(done, total int64)
}

// ProgressFunc returns a ProgressFunc dispatching events by stage. Events of
// other stages are ignored.
func (s StageCallbacks) ProgressFunc() model.ProgressFunc {
	return func(e model.ProgressEvent) {
		var fn func(done, total int64)
		switch e.Stage {
		case model.StageVideo:
			fn = s.Video
		case model.StageAudio:
			fn = s.Audio
		case model.StageMerge:
			fn = s.Merge
		}
		if fn != nil {
			fn(e.Current, e.Total)
		}
	}
}
