// Package audio writes ID3 tags into MP3 files extracted from downloaded
// videos.
//
// # ID3 Tagging
//
// Use the Tagger to write ID3 tags to MP3 files:
//
//	tagger := audio.NewTagger(audio.DefaultTagConfig())
//	err := tagger.SaveTags(job.MP3Path, audio.TrackInfoFromDescriptor(desc), coverJPEG)
//
// The tagger supports:
//   - Title, Artist (uploader), Album (series title)
//   - Track Number (page), Year
//   - Comments (description and source link)
//   - Cover Art (embedded in MP3)
//
// # Playlist Generation
//
// A batch of finished downloads can be listed in a playlist:
//
//	creator := audio.NewPlaylistCreator(audio.FormatM3U)
//	content := creator.CreatePlaylist("/videos/batch.m3u", entries)
//	os.WriteFile("/videos/batch.m3u", []byte(content), 0644)
//
// Supported formats are extended M3U and PLS.
package audio
