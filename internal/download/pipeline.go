package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/handiism/bilibili-downloader/internal/audio"
	"github.com/handiism/bilibili-downloader/internal/bilibili"
	"github.com/handiism/bilibili-downloader/internal/ffmpeg"
	bhttp "github.com/handiism/bilibili-downloader/internal/http"
	ioutils "github.com/handiism/bilibili-downloader/internal/io"
	"github.com/handiism/bilibili-downloader/internal/model"
)

const (
	// skipThreshold is the size above which an existing merged file counts
	// as a finished download.
	skipThreshold = 1 << 20

	dirLockFile = ".lock"
)

func mergedDone(path string) bool {
	size, ok := ioutils.FileSize(path)
	return ok && size > skipThreshold
}

func skippedResult(merged string) Result {
	return Result{
		Success:    true,
		Status:     StatusSkipped,
		Title:      filepath.Base(filepath.Dir(merged)),
		MergedPath: merged,
		Message:    "already downloaded",
	}
}

// jobRun is the state of one job while it executes. It is only touched by
// the goroutine running the job.
type jobRun struct {
	m         *Manager
	id        string
	req       Request
	contentID bilibili.ContentID
	page      int
	log       logrus.FieldLogger
	client    *bhttp.Client
	resolver  *bilibili.Resolver

	desc    *model.StreamDescriptor
	job     *model.Job
	dirLock *flock.Flock
	cover   []byte
	result  Result
}

func (r *jobRun) execute(ctx context.Context) Result {
	r.result = Result{JobID: r.id, Sidecars: map[model.Stage]string{}}

	if res, ok := r.resolve(ctx); !ok {
		return res
	}
	if mergedDone(r.job.MergedPath) {
		r.record(ctx)
		res := skippedResult(r.job.MergedPath)
		res.JobID = r.id
		res.Duration = r.desc.Content.Duration
		r.notice(LevelVerbose, "Skipping existing: %s", filepath.Base(r.job.MergedPath))
		return res
	}

	if err := ioutils.EnsureDir(r.job.WorkingDir); err != nil {
		r.log.WithError(err).Error("create working directory")
		return r.fail(model.StageResolve, "cannot create working directory")
	}
	if err := r.lockDir(ctx); err != nil {
		if ctx.Err() != nil {
			// The directory belongs to another job; leave it alone.
			return r.cancelledResult(ctx)
		}
		r.log.WithError(err).Error("lock working directory")
		return r.fail(model.StageResolve, "working directory is in use")
	}
	defer r.unlockDir()

	stages := []func(context.Context) (Result, bool){
		r.downloadVideo,
		r.downloadAudio,
		r.fetchDanmaku,
		r.fetchComments,
		r.fetchCover,
		r.merge,
		r.extract,
	}
	for _, stage := range stages {
		if ctx.Err() != nil {
			return r.abort(ctx)
		}
		if res, ok := stage(ctx); !ok {
			return res
		}
	}

	r.deleteOriginals()
	r.record(ctx)
	r.transition(model.StateDone)

	r.result.Success = true
	r.result.Status = StatusDone
	r.result.Message = "downloaded " + r.job.Title
	r.notice(LevelSuccess, "Successfully downloaded: %s", r.job.Title)
	return r.result
}

func (r *jobRun) resolve(ctx context.Context) (Result, bool) {
	r.notice(LevelInfo, "Resolving %s", r.contentID)
	desc, err := r.resolver.Resolve(ctx, bilibili.Request{
		ID:          r.contentID.String(),
		Page:        r.page,
		Quality:     r.req.Quality,
		Codec:       r.req.Codec,
		Audio:       r.req.Audio,
		Credentials: r.req.Credentials,
	})
	if err != nil {
		if ctx.Err() != nil {
			return r.cancelledResult(ctx), false
		}
		r.log.WithError(err).Error("resolve streams")
		msg := "metadata unavailable"
		if errors.Is(err, bilibili.ErrFormatUnsupported) {
			msg = "format unsupported"
		}
		return r.fail(model.StageResolve, msg), false
	}
	r.desc = desc

	title := r.req.Title
	if title == "" {
		title = desc.Title.DisplayTitle()
	}
	r.job = model.NewJob(r.contentID.String(), r.page, title, r.m.settings.ToPathConfig())
	r.job.ID = r.id
	r.result.Title = r.job.Title
	r.result.Duration = desc.Content.Duration

	if desc.Fallback {
		r.notice(LevelWarning, "No stream at or below the requested quality, using %s", desc.QualityLabel)
	}
	r.notice(LevelVerbose, "Selected %s %s for %s", desc.QualityLabel, desc.Codec, r.job.Title)
	return Result{}, true
}

func (r *jobRun) downloadVideo(ctx context.Context) (Result, bool) {
	r.transition(model.StateDownloadingVideo)
	if !r.downloadStream(ctx, model.StageVideo, r.desc.VideoURL, r.job.VideoPath) {
		if ctx.Err() != nil {
			return r.abort(ctx), false
		}
		r.cleanupStreams()
		return r.fail(model.StageVideo, "video download failed"), false
	}
	r.result.VideoPath = r.job.VideoPath
	return Result{}, true
}

func (r *jobRun) downloadAudio(ctx context.Context) (Result, bool) {
	if !r.desc.HasAudio() {
		r.notice(LevelVerbose, "No audio track for %s", r.job.Title)
		return Result{}, true
	}
	r.transition(model.StateDownloadingAudio)
	if !r.downloadStream(ctx, model.StageAudio, r.desc.AudioURL, r.job.AudioPath) {
		if ctx.Err() != nil {
			return r.abort(ctx), false
		}
		// No orphaned video without its audio.
		r.cleanupStreams()
		return r.fail(model.StageAudio, "audio download failed"), false
	}
	r.result.AudioPath = r.job.AudioPath
	return Result{}, true
}

// downloadStream downloads url with up to DownloadMaxRetries attempts; each
// retry resumes the partial file.
func (r *jobRun) downloadStream(ctx context.Context, stage model.Stage, url, path string) bool {
	onProgress := r.byteProgress(stage)
	retries := max(r.m.settings.DownloadMaxRetries, 1)

	for tries := 0; tries < retries; tries++ {
		if r.client.DownloadFile(ctx, url, path, string(stage), onProgress) {
			r.notice(LevelVerbose, "Downloaded %s: %s", stage, filepath.Base(path))
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		if tries+1 < retries {
			r.notice(LevelWarning, "Retry %d/%d for %s of %s", tries+1, retries-1, stage, r.job.Title)
			r.m.waitForRetry(ctx, tries)
		}
	}
	r.notice(LevelError, "Failed to download %s of %s", stage, r.job.Title)
	return false
}

func (r *jobRun) fetchDanmaku(ctx context.Context) (Result, bool) {
	if !r.req.Flags.Danmaku {
		return Result{}, true
	}
	r.transition(model.StateDownloadingDanmaku)
	records, err := r.resolver.FetchDanmaku(ctx, r.desc.Content.CID)
	if err == nil {
		err = ioutils.WriteJSON(ctx, r.job.DanmakuPath, records)
	}
	return r.finishSidecar(ctx, model.StageDanmaku, r.job.DanmakuPath, err)
}

func (r *jobRun) fetchComments(ctx context.Context) (Result, bool) {
	if !r.req.Flags.Comments {
		return Result{}, true
	}
	r.transition(model.StateDownloadingComments)
	pages := min(r.m.settings.CommentMaxPages, bilibili.MaxCommentPages)
	replies, err := r.resolver.FetchComments(ctx, r.desc.Content.AID, pages)
	if err == nil {
		err = ioutils.WriteJSON(ctx, r.job.CommentsPath, replies)
	}
	return r.finishSidecar(ctx, model.StageComments, r.job.CommentsPath, err)
}

// finishSidecar records a sidecar outcome. A requested sidecar that cannot
// be fetched fails the job; the downloaded streams are kept.
func (r *jobRun) finishSidecar(ctx context.Context, stage model.Stage, path string, err error) (Result, bool) {
	if err != nil {
		if ctx.Err() != nil {
			return r.abort(ctx), false
		}
		r.log.WithError(err).WithField("stage", stage).Error("sidecar failed")
		_ = ioutils.RemoveFiles(path)
		r.notice(LevelError, "Failed to fetch %s of %s", stage, r.job.Title)
		return r.fail(stage, string(stage)+" unavailable"), false
	}
	r.result.Sidecars[stage] = path
	r.emit(model.ProgressEvent{Stage: stage, Current: 1, Total: 1})
	r.notice(LevelVerbose, "Saved %s", filepath.Base(path))
	return Result{}, true
}

// fetchCover saves the cover art when requested and keeps it for MP3
// tagging. Failures only warn.
func (r *jobRun) fetchCover(ctx context.Context) (Result, bool) {
	if (!r.req.Flags.Cover && !r.req.Flags.ExtractMP3) || r.desc.Content.CoverURL == "" {
		return Result{}, true
	}
	r.transition(model.StateDownloadingCover)

	resp := r.client.Fetch(ctx, r.desc.Content.CoverURL, nil)
	if ctx.Err() != nil {
		return r.abort(ctx), false
	}
	if resp == nil {
		r.notice(LevelWarning, "Error downloading cover art for %s", r.job.Title)
		return Result{}, true
	}

	cover, err := r.m.imageService.PrepareCover(ctx, resp.Body, r.m.settings.CoverArtMaxSize)
	if err != nil {
		r.log.WithError(err).Warn("decode cover art")
		r.notice(LevelWarning, "Error processing cover art for %s", r.job.Title)
		return Result{}, true
	}
	r.cover = cover

	if r.req.Flags.Cover {
		if err := ioutils.WriteFileAtomic(ctx, r.job.CoverPath, cover); err != nil {
			r.notice(LevelWarning, "Error saving cover art: %v", err)
			return Result{}, true
		}
		r.result.Sidecars[model.StageCover] = r.job.CoverPath
		r.emit(model.ProgressEvent{Stage: model.StageCover, Current: 1, Total: 1})
	}
	return Result{}, true
}

func (r *jobRun) merge(ctx context.Context) (Result, bool) {
	r.transition(model.StateMerging)
	if !r.m.engine.Available() {
		r.notice(LevelWarning, "ffmpeg unavailable, keeping the separate streams of %s", r.job.Title)
		return r.fail(model.StageMerge, "ffmpeg unavailable, streams kept"), false
	}

	op := ffmpeg.Merge{VideoPath: r.job.VideoPath, Output: r.job.MergedPath}
	if r.desc.HasAudio() {
		op.AudioPath = r.job.AudioPath
	}
	res := r.m.engine.Run(ctx, op, r.percentProgress(model.StageMerge))
	if !res.Success {
		if ctx.Err() != nil {
			return r.abort(ctx), false
		}
		// A partial merge must not pass for a finished one later.
		_ = ioutils.RemoveFiles(r.job.MergedPath)
		r.log.WithField("stderr", res.Output).Error("merge failed")
		r.notice(LevelError, "Merge failed for %s: %s", r.job.Title, res.Message)
		return r.fail(model.StageMerge, "merge failed, streams kept"), false
	}
	r.result.MergedPath = r.job.MergedPath
	return Result{}, true
}

// extract writes a tagged MP3 of the merged file. Failures only warn.
func (r *jobRun) extract(ctx context.Context) (Result, bool) {
	if !r.req.Flags.ExtractMP3 {
		return Result{}, true
	}
	if !r.desc.HasAudio() {
		r.notice(LevelVerbose, "No audio to extract for %s", r.job.Title)
		return Result{}, true
	}
	r.transition(model.StateExtracting)

	op := ffmpeg.ExtractAudio{Input: r.job.MergedPath, Output: r.job.MP3Path, Bitrate: r.m.settings.MP3Bitrate}
	res := r.m.engine.Run(ctx, op, r.percentProgress(model.StageExtract))
	if !res.Success {
		if ctx.Err() != nil {
			return r.abort(ctx), false
		}
		_ = ioutils.RemoveFiles(r.job.MP3Path)
		r.notice(LevelWarning, "Audio extraction failed for %s: %s", r.job.Title, res.Message)
		return Result{}, true
	}

	if err := r.m.tagger.SaveTags(r.job.MP3Path, audio.TrackInfoFromDescriptor(r.desc), r.cover); err != nil {
		r.notice(LevelWarning, "Error tagging %s: %v", filepath.Base(r.job.MP3Path), err)
	}
	r.result.MP3Path = r.job.MP3Path
	return Result{}, true
}

// deleteOriginals removes the raw streams after a merge. It never changes
// the outcome of the job.
func (r *jobRun) deleteOriginals() {
	if !r.req.Flags.DeleteOriginals {
		return
	}
	if err := ioutils.RemoveFiles(r.job.VideoPath, r.job.AudioPath); err != nil {
		r.log.WithError(err).Warn("delete original streams")
		r.notice(LevelWarning, "Could not delete the original streams of %s", r.job.Title)
		return
	}
	r.result.VideoPath = ""
	r.result.AudioPath = ""
}

func (r *jobRun) record(ctx context.Context) {
	keys := []string{model.LedgerKey(r.contentID.String(), r.page)}
	if bvid := r.desc.Content.BVID; bvid != "" && bvid != r.contentID.String() {
		keys = append(keys, model.LedgerKey(bvid, r.page))
	}
	if err := r.m.ledger.Record(ctx, r.job.MergedPath, keys...); err != nil {
		r.log.WithError(err).Warn("record download in ledger")
	}
}

func (r *jobRun) cleanupStreams() {
	if err := ioutils.RemoveFiles(r.job.VideoPath, r.job.AudioPath); err != nil {
		r.log.WithError(err).Warn("remove streams")
	}
	r.result.VideoPath = ""
	r.result.AudioPath = ""
}

// abort rolls the job back: the working directory and everything in it is
// removed.
func (r *jobRun) abort(ctx context.Context) Result {
	r.unlockDir()
	if r.job != nil {
		if err := ioutils.RemoveAll(r.job.WorkingDir); err != nil {
			r.log.WithError(err).Warn("remove working directory")
		}
	}
	return r.cancelledResult(ctx)
}

func (r *jobRun) cancelledResult(ctx context.Context) Result {
	msg := "cancelled"
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg = "timed out"
	}
	if r.job != nil {
		r.transition(model.StateCancelled)
	}
	r.log.Info("job " + msg)
	r.notice(LevelWarning, "Download %s: %s", msg, r.label())
	return Result{JobID: r.id, Status: StatusCancelled, Title: r.result.Title, Message: msg}
}

func (r *jobRun) fail(stage model.Stage, msg string) Result {
	if r.job != nil {
		r.transition(model.StateFailed)
	}
	res := r.result
	res.Success = false
	res.Status = StatusFailed
	res.FailedStage = stage
	res.MergedPath = ""
	res.Message = msg
	return res
}

func (r *jobRun) lockDir(ctx context.Context) error {
	lock := flock.New(filepath.Join(r.job.WorkingDir, dirLockFile))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return err
	}
	if !locked {
		return errors.New("lock not acquired")
	}
	r.dirLock = lock
	return nil
}

func (r *jobRun) unlockDir() {
	if r.dirLock == nil {
		return
	}
	if err := r.dirLock.Unlock(); err != nil {
		r.log.WithError(err).Warn("unlock working directory")
	}
	r.dirLock = nil
}

func (r *jobRun) transition(state model.State) {
	r.job.State = state
	r.log.WithField("state", state.String()).Debug("job state")
}

// byteProgress forwards download progress, dropping values lower than the
// last one so a restarted download never moves the bar backwards.
func (r *jobRun) byteProgress(stage model.Stage) func(written, total int64) {
	last := int64(-1)
	return func(written, total int64) {
		if written < last {
			return
		}
		last = written
		r.emit(model.ProgressEvent{Stage: stage, Current: written, Total: total})
	}
}

func (r *jobRun) percentProgress(stage model.Stage) func(percent int) {
	return func(percent int) {
		r.emit(model.ProgressEvent{Stage: stage, Current: int64(percent), Total: 100})
	}
}

func (r *jobRun) emit(e model.ProgressEvent) {
	if r.req.OnProgress != nil {
		r.req.OnProgress(e)
	}
}

func (r *jobRun) label() string {
	if r.job != nil {
		return r.job.Title
	}
	return r.contentID.String()
}

func (r *jobRun) notice(level NoticeLevel, format string, args ...any) {
	r.m.notify(Notice{JobID: r.id, Message: fmt.Sprintf(format, args...), Level: level})
}
