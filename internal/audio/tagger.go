package audio

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bogem/id3v2"

	"github.com/handiism/bilibili-downloader/internal/model"
)

// TagEditAction defines how to handle individual ID3 tags.
//
// Each tag field can be configured independently to determine whether
// it should be modified, cleared, or left unchanged.
type TagEditAction int

const (
	// TagEmpty clears the tag value (sets to empty string).
	TagEmpty TagEditAction = iota

	// TagModify updates the tag with the value from the video metadata.
	TagModify

	// TagDoNotModify leaves the existing tag value unchanged.
	TagDoNotModify
)

// TagConfig holds tagging configuration for each ID3 field.
//
// Example:
//
//	cfg := &TagConfig{
//	    ModifyTags:  true,
//	    Artist:      TagModify,      // Uploader name
//	    Album:       TagModify,      // Video title for multi-part videos
//	    TrackTitle:  TagModify,      // Display title
//	    Year:        TagModify,      // Year of publication
//	    Comments:    TagModify,      // Description and source link
//	}
type TagConfig struct {
	// ModifyTags is a master switch. If false, no string tags are modified.
	ModifyTags bool

	// Artist controls the TPE1 (Lead artist) frame.
	Artist TagEditAction

	// Album controls the TALB (Album title) frame.
	Album TagEditAction

	// Year controls the TYER (Year) frame.
	Year TagEditAction

	// Date controls the TDRC (Recording time) frame (ID3v2.4).
	Date TagEditAction

	// TrackNumber controls the TRCK (Track number) frame, set to the page.
	TrackNumber TagEditAction

	// TrackTitle controls the TIT2 (Title) frame.
	TrackTitle TagEditAction

	// Comments controls the COMM (Comments) frame.
	Comments TagEditAction
}

// DefaultTagConfig returns the default tag configuration, which updates
// every supported frame.
func DefaultTagConfig() *TagConfig {
	return &TagConfig{
		ModifyTags:  true,
		Artist:      TagModify,
		Album:       TagModify,
		Year:        TagModify,
		Date:        TagModify,
		TrackNumber: TagModify,
		TrackTitle:  TagModify,
		Comments:    TagModify,
	}
}

// TrackInfo is the metadata written into an extracted MP3.
type TrackInfo struct {
	Title   string
	Album   string
	Artist  string
	Page    int
	PubDate time.Time
	Comment string
}

// TrackInfoFromDescriptor builds the tag values for a resolved video page.
//
// Multi-part videos use the page title as track title and the video title as
// album, so every page of a series groups together in music players.
func TrackInfoFromDescriptor(desc *model.StreamDescriptor) TrackInfo {
	info := TrackInfo{
		Title:   desc.Title.DisplayTitle(),
		Artist:  desc.Title.Owner,
		Page:    desc.Content.Page,
		PubDate: desc.Content.PubDate,
	}
	if desc.Title.Part != "" && desc.Title.Part != desc.Title.Title {
		info.Title = desc.Title.Part
		info.Album = desc.Title.Title
	}

	var comment []string
	if d := strings.TrimSpace(desc.Content.Description); d != "" {
		comment = append(comment, d)
	}
	if desc.Content.BVID != "" {
		comment = append(comment, "https://www.bilibili.com/video/"+desc.Content.BVID)
	}
	info.Comment = strings.Join(comment, "\n\n")
	return info
}

// Tagger writes ID3 tags to MP3 files.
//
// Tagger uses the id3v2 library to modify MP3 file metadata including:
//   - Title, Artist, Album
//   - Track Number, Year
//   - Comments
//   - Cover Art (attached picture)
//
// Example:
//
//	tagger := NewTagger(DefaultTagConfig())
//
//	// After extracting the audio track
//	err := tagger.SaveTags(job.MP3Path, TrackInfoFromDescriptor(desc), coverJPEG)
//	if err != nil {
//	    log.Printf("Failed to tag %s: %v", job.MP3Path, err)
//	}
type Tagger struct {
	config *TagConfig
}

// NewTagger creates a new Tagger with the given configuration.
//
// If config is nil, DefaultTagConfig() is used.
func NewTagger(config *TagConfig) *Tagger {
	if config == nil {
		config = DefaultTagConfig()
	}
	return &Tagger{config: config}
}

// SaveTags writes ID3 tags to the MP3 file at path.
//
// This method:
//  1. Opens the existing MP3 file, parsing any tags ffmpeg already wrote
//  2. Updates string tags based on TagConfig settings
//  3. Embeds cover art if artwork bytes are provided
//  4. Saves the modified tags to the file
//
// artwork must be JPEG bytes; nil skips the picture frame. Returns an error
// if the file cannot be opened or saved.
func (t *Tagger) SaveTags(path string, info TrackInfo, artwork []byte) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open tags of %s: %w", path, err)
	}
	defer tag.Close()

	if t.config.ModifyTags {
		t.updateStringTags(tag, info)
	}

	if artwork != nil {
		t.updateArtwork(tag, artwork)
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save tags of %s: %w", path, err)
	}
	return nil
}

// updateStringTags updates text-based ID3 frames based on configuration.
func (t *Tagger) updateStringTags(tag *id3v2.Tag, info TrackInfo) {
	year, date := "", ""
	if !info.PubDate.IsZero() {
		year = info.PubDate.Format("2006")
		date = info.PubDate.Format("2006-01-02")
	}
	track := ""
	if info.Page > 0 {
		track = strconv.Itoa(info.Page)
	}

	setText(tag, t.config.TrackTitle, tag.CommonID("Title"), info.Title, true)
	setText(tag, t.config.Artist, tag.CommonID("Artist"), info.Artist, true)
	setText(tag, t.config.Album, tag.CommonID("Album/Movie/Show title"), info.Album, false)
	setText(tag, t.config.Year, "TYER", year, false)
	setText(tag, t.config.Date, "TDRC", date, false)
	setText(tag, t.config.TrackNumber, "TRCK", track, false)

	switch t.config.Comments {
	case TagEmpty:
		tag.DeleteFrames(tag.CommonID("Comments"))
	case TagModify:
		if info.Comment != "" {
			tag.DeleteFrames(tag.CommonID("Comments"))
			tag.AddCommentFrame(id3v2.CommentFrame{
				Encoding: id3v2.EncodingUTF8,
				Language: "chi",
				Text:     info.Comment,
			})
		}
	}
}

// setText applies action to the text frame id. An empty value leaves the
// frame alone unless overwrite is set.
func setText(tag *id3v2.Tag, action TagEditAction, id, value string, overwrite bool) {
	switch action {
	case TagEmpty:
		tag.DeleteFrames(id)
	case TagModify:
		if value == "" && !overwrite {
			return
		}
		tag.DeleteFrames(id)
		tag.AddTextFrame(id, id3v2.EncodingUTF8, value)
	}
}

// updateArtwork embeds cover art as an attached picture frame.
func (t *Tagger) updateArtwork(tag *id3v2.Tag, artwork []byte) {
	tag.DeleteFrames(tag.CommonID("Attached picture"))
	pic := id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    "image/jpeg",
		PictureType: id3v2.PTFrontCover,
		Description: "Cover",
		Picture:     artwork,
	}
	tag.AddAttachedPicture(pic)
}
