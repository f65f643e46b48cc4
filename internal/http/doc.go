// Package http provides an HTTP client configured for Bilibili API and CDN
// requests.
//
// The Client in this package handles:
//   - Referer, Origin and rotating User-Agent headers
//   - Forwarding caller credentials as cookies
//   - Retries with randomized backoff and Retry-After support
//   - A fixed-window throttle that backs off after short bursts
//   - Resumable file downloads with throttled progress callbacks
//   - Optional bandwidth limiting
//
// Failures are logged and surfaced as nil or false rather than errors; the
// pipeline only needs to know whether a step succeeded.
//
// # Basic Usage
//
//	client := http.NewClient(settings.ToClientConfig(), http.WithLogger(logger))
//
//	// Fetch JSON metadata
//	var view dto.ViewResponse
//	ok := client.GetJSON(ctx, "https://api.bilibili.com/x/web-interface/view", query, &view)
//
//	// Download a stream, resuming any partial file
//	client.DownloadFile(ctx, videoURL, "/path/to/x.video.m4s", "video", func(written, total int64) {
//	    fmt.Printf("%d/%d\n", written, total)
//	})
package http
