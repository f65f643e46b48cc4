package audio

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// PlaylistFormat represents supported playlist file formats.
type PlaylistFormat int

const (
	// FormatM3U creates extended .m3u files (most compatible).
	FormatM3U PlaylistFormat = iota

	// FormatPLS creates .pls files (Winamp/SHOUTcast format).
	FormatPLS
)

// ParsePlaylistFormat maps "m3u" or "pls" to a format.
func ParsePlaylistFormat(s string) (PlaylistFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "m3u":
		return FormatM3U, nil
	case "pls":
		return FormatPLS, nil
	}
	return FormatM3U, fmt.Errorf("unknown playlist format %q", s)
}

// Extension returns the file extension of the format, including the dot.
func (f PlaylistFormat) Extension() string {
	if f == FormatPLS {
		return ".pls"
	}
	return ".m3u"
}

// PlaylistEntry is one finished download in a batch playlist.
type PlaylistEntry struct {
	Path     string
	Title    string
	Duration time.Duration
}

// PlaylistCreator generates a playlist of the merged files of a batch.
//
// Entry paths are written relative to the directory of the playlist file,
// so the playlist keeps working when the downloads folder is moved.
//
// Example:
//
//	creator := NewPlaylistCreator(FormatM3U)
//	content := creator.CreatePlaylist("/videos/batch.m3u", entries)
//	os.WriteFile("/videos/batch.m3u", []byte(content), 0644)
//
//	// Result:
//	// #EXTM3U
//	// #EXTINF:212,Lecture - Week 2
//	// Lecture - Week 2/Lecture - Week 2.mp4
type PlaylistCreator struct {
	format PlaylistFormat
}

// NewPlaylistCreator creates a new PlaylistCreator.
func NewPlaylistCreator(format PlaylistFormat) *PlaylistCreator {
	return &PlaylistCreator{format: format}
}

// CreatePlaylist generates playlist content for entries, to be stored at
// playlistPath.
func (p *PlaylistCreator) CreatePlaylist(playlistPath string, entries []PlaylistEntry) string {
	if p.format == FormatPLS {
		return p.createPLS(playlistPath, entries)
	}
	return p.createM3U(playlistPath, entries)
}

// createM3U generates an extended M3U playlist:
//
//	#EXTM3U
//	#EXTINF:180,Title
//	dir/file.mp4
func (p *PlaylistCreator) createM3U(playlistPath string, entries []PlaylistEntry) string {
	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "#EXTINF:%d,%s\n", int(e.Duration.Seconds()), e.Title)
		sb.WriteString(relativeTo(playlistPath, e.Path) + "\n")
	}
	return sb.String()
}

// createPLS generates a PLS playlist:
//
//	[playlist]
//	File1=dir/file.mp4
//	Title1=Title
//	Length1=180
//	NumberOfEntries=1
//	Version=2
func (p *PlaylistCreator) createPLS(playlistPath string, entries []PlaylistEntry) string {
	var sb strings.Builder
	sb.WriteString("[playlist]\n")
	for i, e := range entries {
		n := i + 1
		fmt.Fprintf(&sb, "File%d=%s\n", n, relativeTo(playlistPath, e.Path))
		fmt.Fprintf(&sb, "Title%d=%s\n", n, e.Title)
		fmt.Fprintf(&sb, "Length%d=%d\n", n, int(e.Duration.Seconds()))
	}
	fmt.Fprintf(&sb, "NumberOfEntries=%d\n", len(entries))
	sb.WriteString("Version=2\n")
	return sb.String()
}

func relativeTo(playlistPath, target string) string {
	rel, err := filepath.Rel(filepath.Dir(playlistPath), target)
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}
