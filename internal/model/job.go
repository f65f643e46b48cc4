package model

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// State is the lifecycle state of a download Job.
type State int

const (
	StateResolving State = iota
	StateDownloadingVideo
	StateDownloadingAudio
	StateDownloadingDanmaku
	StateDownloadingComments
	StateDownloadingCover
	StateMerging
	StateExtracting
	StateDone
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StateResolving:           "resolving",
	StateDownloadingVideo:    "downloading video",
	StateDownloadingAudio:    "downloading audio",
	StateDownloadingDanmaku:  "downloading danmaku",
	StateDownloadingComments: "downloading comments",
	StateDownloadingCover:    "downloading cover",
	StateMerging:             "merging",
	StateExtracting:          "extracting audio",
	StateDone:                "done",
	StateCancelled:           "cancelled",
	StateFailed:              "failed",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// PathConfig holds path settings for job directories.
//
// Example configuration:
//
//	cfg := &PathConfig{
//	    DownloadsPath:  "/home/user/Videos/Bilibili",
//	    MergedExtension: ".mp4",
//	}
type PathConfig struct {
	// DownloadsPath is the base directory; each job gets a sub directory
	// named after the sanitized video title.
	DownloadsPath string

	// MergedExtension is the container extension of the merged output, including the dot.
	MergedExtension string
}

// Job is one accepted download request and its on-disk layout.
//
// All artifacts of a job live in WorkingDir:
//
//	<title>.video.m4s   raw video representation
//	<title>.audio.m4s   raw audio representation (if any)
//	danmaku.json        danmaku sidecar
//	comments.json       comments sidecar
//	cover.jpg           cover art
//	<title>.mp4         merged output
//	<title>.mp3         extracted audio
type Job struct {
	// ID uniquely identifies the job in logs.
	ID string

	// ContentID is the requested video id (BV or av id).
	ContentID string

	// Page is the 1-based page of a multi-part video.
	Page int

	// Title is the sanitized directory and file stem.
	Title string

	WorkingDir   string
	VideoPath    string
	AudioPath    string
	MergedPath   string
	DanmakuPath  string
	CommentsPath string
	CoverPath    string
	MP3Path      string

	// State is the current lifecycle state.
	State State
}

// NewJob creates a Job with paths computed from the title and cfg.
//
// Invalid filename characters in title are replaced with underscores.
// An empty title falls back to the content id.
func NewJob(contentID string, page int, title string, cfg *PathConfig) *Job {
	stem := SanitizeFileName(title)
	if stem == "" {
		stem = SanitizeFileName(contentID)
	}
	// Limit stem length so the longest derived file name stays under MAX_PATH.
	if len(stem) > 180 {
		stem = strings.TrimRight(stem[:180], " ")
	}

	ext := cfg.MergedExtension
	if ext == "" {
		ext = ".mp4"
	}

	dir := filepath.Join(cfg.DownloadsPath, stem)
	return &Job{
		ContentID:    contentID,
		Page:         page,
		Title:        stem,
		WorkingDir:   dir,
		VideoPath:    filepath.Join(dir, stem+".video.m4s"),
		AudioPath:    filepath.Join(dir, stem+".audio.m4s"),
		MergedPath:   filepath.Join(dir, stem+ext),
		DanmakuPath:  filepath.Join(dir, "danmaku.json"),
		CommentsPath: filepath.Join(dir, "comments.json"),
		CoverPath:    filepath.Join(dir, "cover.jpg"),
		MP3Path:      filepath.Join(dir, stem+".mp3"),
		State:        StateResolving,
	}
}

// Key identifies the job's content in the download ledger.
func (j *Job) Key() string {
	return LedgerKey(j.ContentID, j.Page)
}

// LedgerKey builds the ledger key for a content id and page.
func LedgerKey(contentID string, page int) string {
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf("%s#%d", contentID, page)
}

var (
	invalidFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots     = regexp.MustCompile(`\.+$`)
	repeatedSpace    = regexp.MustCompile(`\s+`)
)

// SanitizeFileName removes or replaces characters that are invalid in file/folder names.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars) are replaced with underscore
//   - Trailing dots are removed (Windows limitation)
//   - Multiple whitespace is collapsed to single space
//   - Leading and trailing whitespace is removed
//
// Example:
//
//	SanitizeFileName("Episode: Part 1/2") // Returns "Episode_ Part 1_2"
func SanitizeFileName(name string) string {
	name = invalidFileChars.ReplaceAllString(name, "_")
	name = repeatedSpace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	name = trailingDots.ReplaceAllString(name, "")
	return strings.TrimRight(name, " ")
}
