// Package download runs download jobs for Bilibili videos.
//
// # Manager
//
// The Manager drives one job through its stages:
//
//  1. Parse the video id and page
//  2. Skip the job if its merged file already exists
//  3. Resolve metadata and stream URLs
//  4. Download the video stream, then the audio stream
//  5. Fetch the requested sidecars (danmaku, comments, cover art)
//  6. Merge the streams with ffmpeg
//  7. Extract a tagged MP3 (optional)
//  8. Delete the raw streams (optional)
//
// # Basic Usage
//
//	engine := ffmpeg.NewEngine(ctx, ffmpeg.Options{Dir: settings.FFmpegDir})
//	manager := download.NewManager(settings, engine)
//
//	res := manager.Download(ctx, download.Request{
//	    ID:      "https://www.bilibili.com/video/BV1xx411c7mD?p=2",
//	    Quality: model.Quality1080P,
//	    Flags:   manager.FlagsFromSettings(),
//	})
//	fmt.Println(res.Status, res.MergedPath)
//
// # Failures
//
// Download never returns an error. The Result names the failed stage and
// what was left on disk:
//   - video failure: nothing is kept
//   - audio failure: the video stream is removed as well
//   - sidecar failure: the streams are kept
//   - merge failure or missing ffmpeg: the streams are kept
//   - cancellation or timeout: the working directory is removed
//
// # Multi-part Videos
//
// ExpandPages turns a request for a multi-part video into one request per
// page before the batch runs:
//
//	reqs = manager.ExpandPages(ctx, reqs)
//	results := manager.DownloadAll(ctx, reqs)
//
// # Concurrency
//
// DownloadAll runs at most settings.MaxConcurrentJobs jobs at once. Every
// job has its own HTTP client, so retries and pacing of one job never slow
// down another. A file lock in the working directory keeps two processes
// from downloading the same video at the same time.
//
// # Retry Logic
//
// Failed stream downloads are retried with exponential backoff,
// configurable via settings.DownloadMaxRetries, settings.DownloadRetryCooldown
// and settings.DownloadRetryExponent. Each retry resumes the partial file.
package download
