package audio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bogem/id3v2"

	"github.com/handiism/bilibili-downloader/internal/model"
)

func createTestMP3(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.mp3")
	if err := os.WriteFile(path, []byte("\xff\xfbfake mpeg frames"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTagger_SaveTags(t *testing.T) {
	path := createTestMP3(t)
	info := TrackInfo{
		Title:   "Week 2",
		Album:   "Lecture",
		Artist:  "Uploader",
		Page:    2,
		PubDate: time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC),
		Comment: "notes",
	}

	if err := NewTagger(nil).SaveTags(path, info, []byte("jpeg")); err != nil {
		t.Fatalf("SaveTags() error = %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatal(err)
	}
	defer tag.Close()

	if tag.Title() != "Week 2" || tag.Artist() != "Uploader" || tag.Album() != "Lecture" {
		t.Errorf("tags = %q / %q / %q", tag.Title(), tag.Artist(), tag.Album())
	}
	if got := tag.GetTextFrame("TYER").Text; got != "2021" {
		t.Errorf("TYER = %q, want 2021", got)
	}
	if got := tag.GetTextFrame("TRCK").Text; got != "2" {
		t.Errorf("TRCK = %q, want 2", got)
	}
	if n := len(tag.GetFrames(tag.CommonID("Attached picture"))); n != 1 {
		t.Errorf("pictures = %d, want 1", n)
	}
	if n := len(tag.GetFrames(tag.CommonID("Comments"))); n != 1 {
		t.Errorf("comments = %d, want 1", n)
	}
}

func TestTagger_DoNotModify(t *testing.T) {
	path := createTestMP3(t)
	if err := NewTagger(nil).SaveTags(path, TrackInfo{Title: "keep", Artist: "first"}, nil); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultTagConfig()
	cfg.TrackTitle = TagDoNotModify
	cfg.Artist = TagEmpty
	if err := NewTagger(cfg).SaveTags(path, TrackInfo{Title: "replaced", Artist: "second"}, nil); err != nil {
		t.Fatal(err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatal(err)
	}
	defer tag.Close()
	if tag.Title() != "keep" {
		t.Errorf("Title = %q, want keep", tag.Title())
	}
	if tag.Artist() != "" {
		t.Errorf("Artist = %q, want empty", tag.Artist())
	}
}

func TestTagger_MissingFile(t *testing.T) {
	err := NewTagger(nil).SaveTags(filepath.Join(t.TempDir(), "none.mp3"), TrackInfo{}, nil)
	if err == nil {
		t.Error("SaveTags() on a missing file succeeded")
	}
}

func TestTrackInfoFromDescriptor(t *testing.T) {
	single := &model.StreamDescriptor{
		Title:   model.TitleMetadata{Title: "Song", Owner: "Singer"},
		Content: model.ContentMetadata{BVID: "BV1xx411c7mD", Page: 1, Description: "  desc  "},
	}
	info := TrackInfoFromDescriptor(single)
	if info.Title != "Song" || info.Album != "" || info.Artist != "Singer" {
		t.Errorf("single = %+v", info)
	}
	if info.Comment != "desc\n\nhttps://www.bilibili.com/video/BV1xx411c7mD" {
		t.Errorf("Comment = %q", info.Comment)
	}

	multi := &model.StreamDescriptor{
		Title:   model.TitleMetadata{Title: "Lecture", Part: "Week 2"},
		Content: model.ContentMetadata{Page: 2},
	}
	info = TrackInfoFromDescriptor(multi)
	if info.Title != "Week 2" || info.Album != "Lecture" || info.Page != 2 || info.Comment != "" {
		t.Errorf("multi = %+v", info)
	}
}

func TestPlaylistCreator(t *testing.T) {
	entries := []PlaylistEntry{
		{Path: filepath.Join("/videos", "A", "A.mp4"), Title: "A", Duration: 90 * time.Second},
		{Path: filepath.Join("/videos", "B", "B.mp4"), Title: "B", Duration: 61500 * time.Millisecond},
	}
	playlist := filepath.Join("/videos", "batch.m3u")

	m3u := NewPlaylistCreator(FormatM3U).CreatePlaylist(playlist, entries)
	for _, want := range []string{"#EXTM3U\n", "#EXTINF:90,A\nA/A.mp4\n", "#EXTINF:61,B\nB/B.mp4\n"} {
		if !strings.Contains(m3u, want) {
			t.Errorf("m3u missing %q:\n%s", want, m3u)
		}
	}

	pls := NewPlaylistCreator(FormatPLS).CreatePlaylist(playlist, entries)
	for _, want := range []string{"[playlist]\n", "File2=B/B.mp4\n", "Length1=90\n", "NumberOfEntries=2\n", "Version=2\n"} {
		if !strings.Contains(pls, want) {
			t.Errorf("pls missing %q:\n%s", want, pls)
		}
	}
}

func TestParsePlaylistFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    PlaylistFormat
		wantErr bool
	}{
		{"", FormatM3U, false},
		{"M3U", FormatM3U, false},
		{"pls", FormatPLS, false},
		{"wpl", FormatM3U, true},
	}
	for _, tt := range tests {
		got, err := ParsePlaylistFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePlaylistFormat(%q) = %v, %v", tt.in, got, err)
		}
	}
	if FormatPLS.Extension() != ".pls" || FormatM3U.Extension() != ".m3u" {
		t.Error("unexpected extensions")
	}
}
