package model

import "time"

// TitleMetadata is the human facing naming information of a video.
type TitleMetadata struct {
	// Title is the video title.
	Title string

	// Part is the page title for multi-part videos. Empty for single part videos.
	Part string

	// Owner is the uploader name.
	Owner string
}

// DisplayTitle returns the title used for directory and file names.
//
// Multi-part videos get the page title appended so every page lands in its
// own directory:
//
//	TitleMetadata{Title: "Lecture", Part: "Week 2"}.DisplayTitle() // "Lecture - Week 2"
func (t TitleMetadata) DisplayTitle() string {
	if t.Part == "" || t.Part == t.Title {
		return t.Title
	}
	return t.Title + " - " + t.Part
}

// ContentMetadata identifies the video on the remote site.
type ContentMetadata struct {
	BVID        string
	AID         int64
	CID         int64
	Page        int
	Duration    time.Duration
	CoverURL    string
	Description string
	PubDate     time.Time
}

// StreamDescriptor is the resolved set of stream URLs for one video page.
//
// A StreamDescriptor is created by the resolver for a single request and is
// never modified afterwards.
type StreamDescriptor struct {
	// VideoURL is the URL of the selected video representation.
	VideoURL string

	// AudioURL is the URL of the selected audio representation.
	// Empty string if the video has no audio track.
	AudioURL string

	// Quality is the quality id of the selected video representation.
	Quality Quality

	// QualityLabel is the display name of Quality.
	QualityLabel string

	// Codec is the codec of the selected video representation.
	Codec Codec

	// Fallback is true when no representation satisfied the quality ceiling
	// and the lowest available one was picked instead.
	Fallback bool

	Title   TitleMetadata
	Content ContentMetadata
}

// HasAudio returns true if an audio representation was selected.
func (d *StreamDescriptor) HasAudio() bool {
	return d.AudioURL != ""
}
