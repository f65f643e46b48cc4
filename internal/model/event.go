package model

// Stage names the pipeline stage a ProgressEvent belongs to.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageVideo    Stage = "video"
	StageAudio    Stage = "audio"
	StageMerge    Stage = "merge"
	StageDanmaku  Stage = "danmaku"
	StageComments Stage = "comments"
	StageCover    Stage = "cover"
	StageExtract  Stage = "extract"
)

// Sidecar reports whether the stage produces an auxiliary artifact.
func (s Stage) Sidecar() bool {
	switch s {
	case StageDanmaku, StageComments, StageCover:
		return true
	}
	return false
}

// ProgressEvent is a single progress update.
//
// For download stages Current and Total are bytes (Total is -1 when the size
// is unknown). For merge and extract stages they are percentages out of 100.
type ProgressEvent struct {
	Stage   Stage
	Current int64
	Total   int64
}

// Percent returns the completion ratio in [0, 1], or 0 if Total is unknown.
func (e ProgressEvent) Percent() float64 {
	if e.Total <= 0 {
		return 0
	}
	p := float64(e.Current) / float64(e.Total)
	if p > 1 {
		return 1
	}
	return p
}

// ProgressFunc receives progress events. It is invoked from the goroutine
// running the job, never concurrently for the same job.
type ProgressFunc func(ProgressEvent)
