// Package ffmpeg runs media operations through the local ffmpeg and ffprobe
// binaries.
//
// The Engine in this package handles:
//   - Locating ffmpeg in a bundled directory or on PATH
//   - Building command lines for a closed set of operations
//   - Parsing stderr into monotonic percentage progress
//   - Keeping a short stderr tail for failure diagnostics
//   - Probing inputs and detecting hardware encoders
//
// Operations never modify or delete their inputs. A missing ffmpeg is
// reported through Result.Unavailable instead of an error at construction so
// callers can degrade gracefully.
//
// # Basic Usage
//
//	engine := ffmpeg.NewEngine(ctx, ffmpeg.Options{Dir: "/opt/ffmpeg", HWAccel: ffmpeg.AccelAuto})
//
//	res := engine.Run(ctx, ffmpeg.Cut{
//	    Input:  "in.mp4",
//	    Output: "out.mp4",
//	    Start:  10 * time.Second,
//	    End:    75 * time.Second,
//	}, func(percent int) {
//	    fmt.Printf("%d%%\n", percent)
//	})
package ffmpeg
