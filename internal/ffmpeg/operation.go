package ffmpeg

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Operation is one ffmpeg job. The set is closed: Merge, Convert, Cut,
// Concat, Compress, Reverse, Delogo and ExtractAudio.
type Operation interface {
	// Name identifies the operation in logs and messages.
	Name() string

	// OutputPath is the file the operation writes.
	OutputPath() string

	// Validate checks the parameters without touching the filesystem.
	Validate() error

	plan(ctx context.Context, env *planEnv) (*plan, error)
}

// plan is a ready-to-run command line.
type plan struct {
	args []string

	// duration is the expected output length in seconds; zero means it is
	// read from the Duration line ffmpeg prints.
	duration float64
}

// planEnv gives operations access to probing and hardware settings.
type planEnv struct {
	hw    *HWAccelConfig
	probe func(ctx context.Context, path string) (*ProbeResult, error)
}

// baseArgs starts every command: overwrite, no stdin, no banner.
func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-y"}
}

func invalid(op, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidOperation, op, fmt.Sprintf(format, args...))
}

func requirePaths(op string, paths map[string]string) error {
	for name, p := range paths {
		if strings.TrimSpace(p) == "" {
			return invalid(op, "%s path is empty", name)
		}
	}
	return nil
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func faststart(output string) []string {
	switch strings.ToLower(filepath.Ext(output)) {
	case ".mp4", ".m4v", ".mov":
		return []string{"-movflags", "+faststart"}
	}
	return nil
}

func softwareVideo(crf int, preset string) []string {
	if preset == "" {
		preset = "medium"
	}
	if crf <= 0 {
		crf = 23
	}
	return []string{"-c:v", "libx264", "-preset", preset, "-crf", strconv.Itoa(crf), "-pix_fmt", "yuv420p"}
}

func aacAudio(kbps int) []string {
	if kbps <= 0 {
		kbps = 192
	}
	return []string{"-c:a", "aac", "-b:a", strconv.Itoa(kbps) + "k"}
}

// Merge remuxes separate video and audio streams into one container
// without re-encoding. Without AudioPath the video is remuxed alone.
type Merge struct {
	VideoPath string
	AudioPath string
	Output    string
}

func (m Merge) Name() string       { return "merge" }
func (m Merge) OutputPath() string { return m.Output }

func (m Merge) Validate() error {
	return requirePaths(m.Name(), map[string]string{"video": m.VideoPath, "output": m.Output})
}

func (m Merge) plan(_ context.Context, _ *planEnv) (*plan, error) {
	args := append(baseArgs(), "-i", m.VideoPath)
	if m.AudioPath != "" {
		args = append(args, "-i", m.AudioPath, "-map", "0:v:0", "-map", "1:a:0")
	} else {
		args = append(args, "-map", "0:v:0")
	}
	args = append(args, "-c", "copy")
	args = append(args, faststart(m.Output)...)
	return &plan{args: append(args, m.Output)}, nil
}

// Convert re-encodes Input with the given codec and quality, optionally
// using the engine's hardware accelerator.
type Convert struct {
	Input   string
	Output  string
	Codec   string
	CRF     int
	Preset  string
	HWAccel bool
}

func (c Convert) Name() string       { return "convert" }
func (c Convert) OutputPath() string { return c.Output }

func (c Convert) Validate() error {
	if err := requirePaths(c.Name(), map[string]string{"input": c.Input, "output": c.Output}); err != nil {
		return err
	}
	if c.CRF < 0 || c.CRF > 51 {
		return invalid(c.Name(), "crf %d out of range 0-51", c.CRF)
	}
	if c.Input == c.Output {
		return invalid(c.Name(), "input and output are the same file")
	}
	return nil
}

func (c Convert) plan(_ context.Context, env *planEnv) (*plan, error) {
	hw := NewHWAccelConfig(AccelNone)
	if c.HWAccel && env.hw != nil {
		hw = env.hw
	}
	crf := c.CRF
	if crf == 0 {
		crf = 23
	}
	preset := c.Preset
	if preset == "" {
		preset = "medium"
	}

	args := baseArgs()
	args = append(args, hw.DecodeFlags...)
	args = append(args, "-i", c.Input)
	if hw.UploadFilter != "" {
		args = append(args, "-vf", hw.UploadFilter)
	}
	args = append(args, hw.EncodeArgs(c.Codec, crf, preset)...)
	if hw.Accelerator == AccelNone {
		args = append(args, "-pix_fmt", "yuv420p")
	}
	args = append(args, aacAudio(0)...)
	args = append(args, faststart(c.Output)...)
	return &plan{args: append(args, c.Output)}, nil
}

// Cut extracts the [Start, End) range of Input.
//
// The fast mode seeks on the input and copies streams, so the cut snaps to
// keyframes. Accurate mode seeks on the output and re-encodes.
type Cut struct {
	Input    string
	Output   string
	Start    time.Duration
	End      time.Duration
	Accurate bool
	CRF      int
	Preset   string
}

func (c Cut) Name() string       { return "cut" }
func (c Cut) OutputPath() string { return c.Output }

func (c Cut) Validate() error {
	if err := requirePaths(c.Name(), map[string]string{"input": c.Input, "output": c.Output}); err != nil {
		return err
	}
	if c.Start < 0 {
		return invalid(c.Name(), "start %s is negative", c.Start)
	}
	if c.End <= c.Start {
		return invalid(c.Name(), "end %s must be after start %s", c.End, c.Start)
	}
	return nil
}

func (c Cut) plan(_ context.Context, _ *planEnv) (*plan, error) {
	start := c.Start.Seconds()
	length := (c.End - c.Start).Seconds()

	args := baseArgs()
	if c.Accurate {
		args = append(args, "-i", c.Input, "-ss", seconds(start), "-t", seconds(length))
		args = append(args, softwareVideo(c.CRF, c.Preset)...)
		args = append(args, aacAudio(0)...)
	} else {
		args = append(args, "-ss", seconds(start), "-i", c.Input, "-t", seconds(length),
			"-c", "copy", "-avoid_negative_ts", "make_zero")
	}
	args = append(args, faststart(c.Output)...)
	return &plan{args: append(args, c.Output), duration: length}, nil
}

// ClipUnit is the unit of a Clip's Start and End.
type ClipUnit int

const (
	UnitSeconds ClipUnit = iota
	UnitFrames
)

// Clip is one input of a Concat. End zero means the end of the file.
type Clip struct {
	Path  string
	Start float64
	End   float64
	Unit  ClipUnit

	// FrameRate converts frame units; zero means the probed rate.
	FrameRate float64
}

// Concat joins trimmed clips into one re-encoded output. Clips without an
// audio track get silence of their trimmed length so the streams stay in
// sync. Every clip is scaled and padded to Width x Height, or to the size of
// the first clip when both are zero.
type Concat struct {
	Clips  []Clip
	Output string
	Width  int
	Height int
	CRF    int
	Preset string
}

func (c Concat) Name() string       { return "concat" }
func (c Concat) OutputPath() string { return c.Output }

func (c Concat) Validate() error {
	if strings.TrimSpace(c.Output) == "" {
		return invalid(c.Name(), "output path is empty")
	}
	if len(c.Clips) == 0 {
		return invalid(c.Name(), "no clips")
	}
	if (c.Width > 0) != (c.Height > 0) {
		return invalid(c.Name(), "width and height must be set together")
	}
	for i, clip := range c.Clips {
		if strings.TrimSpace(clip.Path) == "" {
			return invalid(c.Name(), "clip %d has no path", i)
		}
		if clip.Start < 0 || clip.End < 0 {
			return invalid(c.Name(), "clip %d has a negative bound", i)
		}
		if clip.End != 0 && clip.End <= clip.Start {
			return invalid(c.Name(), "clip %d ends before it starts", i)
		}
		if clip.FrameRate < 0 {
			return invalid(c.Name(), "clip %d has a negative frame rate", i)
		}
	}
	return nil
}

func (c Concat) plan(ctx context.Context, env *planEnv) (*plan, error) {
	args := baseArgs()
	var filters []string
	var pads strings.Builder
	total := 0.0
	width, height := c.Width, c.Height

	for i, clip := range c.Clips {
		info, err := env.probe(ctx, clip.Path)
		if err != nil {
			return nil, fmt.Errorf("probe clip %d: %w", i, err)
		}
		if !info.HasVideo {
			return nil, invalid(c.Name(), "clip %d has no video stream", i)
		}
		// Without an explicit size every clip is fitted to the first one,
		// rounded down to even dimensions for the encoder.
		if width == 0 {
			width, height = info.Width&^1, info.Height&^1
			if width <= 0 || height <= 0 {
				return nil, invalid(c.Name(), "clip %d has an unknown resolution, set width and height", i)
			}
		}

		start, end := clip.Start, clip.End
		if clip.Unit == UnitFrames {
			rate := clip.FrameRate
			if rate == 0 {
				rate = info.FrameRate
			}
			if rate <= 0 {
				return nil, invalid(c.Name(), "clip %d uses frames but the frame rate is unknown", i)
			}
			start, end = start/rate, end/rate
		}
		if end == 0 {
			end = info.Duration
		}
		if end <= start {
			return nil, invalid(c.Name(), "clip %d is empty after trimming", i)
		}
		length := end - start
		total += length

		args = append(args, "-i", clip.Path)

		video := fmt.Sprintf("[%d:v:0]trim=start=%s:end=%s,setpts=PTS-STARTPTS", i, seconds(start), seconds(end))
		video += fmt.Sprintf(",scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
			width, height, width, height)
		filters = append(filters, fmt.Sprintf("%s[v%d]", video, i))

		if info.HasAudio {
			filters = append(filters, fmt.Sprintf(
				"[%d:a:0]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS,aformat=sample_rates=44100:channel_layouts=stereo[a%d]",
				i, seconds(start), seconds(end), i))
		} else {
			filters = append(filters, fmt.Sprintf(
				"anullsrc=channel_layout=stereo:sample_rate=44100,atrim=duration=%s[a%d]", seconds(length), i))
		}
		fmt.Fprintf(&pads, "[v%d][a%d]", i, i)
	}

	filters = append(filters, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[outv][outa]", pads.String(), len(c.Clips)))
	args = append(args, "-filter_complex", strings.Join(filters, ";"), "-map", "[outv]", "-map", "[outa]")
	args = append(args, softwareVideo(c.CRF, c.Preset)...)
	args = append(args, aacAudio(0)...)
	args = append(args, faststart(c.Output)...)
	return &plan{args: append(args, c.Output), duration: total}, nil
}

// Compress re-encodes Input with its height capped at MaxHeight. Smaller
// inputs keep their resolution.
type Compress struct {
	Input     string
	Output    string
	MaxHeight int
	CRF       int
	Preset    string
}

func (c Compress) Name() string       { return "compress" }
func (c Compress) OutputPath() string { return c.Output }

func (c Compress) Validate() error {
	if err := requirePaths(c.Name(), map[string]string{"input": c.Input, "output": c.Output}); err != nil {
		return err
	}
	if c.MaxHeight <= 0 {
		return invalid(c.Name(), "max height must be positive")
	}
	if c.CRF < 0 || c.CRF > 51 {
		return invalid(c.Name(), "crf %d out of range 0-51", c.CRF)
	}
	return nil
}

func (c Compress) plan(_ context.Context, _ *planEnv) (*plan, error) {
	crf := c.CRF
	if crf == 0 {
		crf = 28
	}
	args := append(baseArgs(), "-i", c.Input, "-vf", fmt.Sprintf(`scale=-2:min(ih\,%d)`, c.MaxHeight))
	args = append(args, softwareVideo(crf, c.Preset)...)
	args = append(args, aacAudio(128)...)
	args = append(args, faststart(c.Output)...)
	return &plan{args: append(args, c.Output)}, nil
}

// Reverse plays Input backwards, audio included when present.
type Reverse struct {
	Input  string
	Output string
}

func (r Reverse) Name() string       { return "reverse" }
func (r Reverse) OutputPath() string { return r.Output }

func (r Reverse) Validate() error {
	return requirePaths(r.Name(), map[string]string{"input": r.Input, "output": r.Output})
}

func (r Reverse) plan(ctx context.Context, env *planEnv) (*plan, error) {
	info, err := env.probe(ctx, r.Input)
	if err != nil {
		return nil, fmt.Errorf("probe input: %w", err)
	}

	args := append(baseArgs(), "-i", r.Input, "-vf", "reverse")
	if info.HasAudio {
		args = append(args, "-af", "areverse")
		args = append(args, softwareVideo(0, "")...)
		args = append(args, aacAudio(0)...)
	} else {
		args = append(args, softwareVideo(0, "")...)
		args = append(args, "-an")
	}
	args = append(args, faststart(r.Output)...)
	return &plan{args: append(args, r.Output), duration: info.Duration}, nil
}

// Delogo hides a rectangular watermark, either with ffmpeg's delogo
// interpolation or, when Blur is set, by blurring the region.
type Delogo struct {
	Input  string
	Output string
	X, Y   int
	W, H   int
	Blur   bool
}

func (d Delogo) Name() string       { return "delogo" }
func (d Delogo) OutputPath() string { return d.Output }

func (d Delogo) Validate() error {
	if err := requirePaths(d.Name(), map[string]string{"input": d.Input, "output": d.Output}); err != nil {
		return err
	}
	if d.X < 0 || d.Y < 0 || d.W <= 0 || d.H <= 0 {
		return invalid(d.Name(), "region %dx%d+%d+%d is invalid", d.W, d.H, d.X, d.Y)
	}
	return nil
}

func (d Delogo) plan(_ context.Context, _ *planEnv) (*plan, error) {
	args := append(baseArgs(), "-i", d.Input)
	if d.Blur {
		graph := fmt.Sprintf("[0:v]crop=%d:%d:%d:%d,boxblur=10[fg];[0:v][fg]overlay=%d:%d[v]",
			d.W, d.H, d.X, d.Y, d.X, d.Y)
		args = append(args, "-filter_complex", graph, "-map", "[v]", "-map", "0:a?")
	} else {
		args = append(args, "-vf", fmt.Sprintf("delogo=x=%d:y=%d:w=%d:h=%d", d.X, d.Y, d.W, d.H))
	}
	args = append(args, softwareVideo(0, "")...)
	args = append(args, "-c:a", "copy")
	args = append(args, faststart(d.Output)...)
	return &plan{args: append(args, d.Output)}, nil
}

// ExtractAudio writes the audio track of Input as MP3.
type ExtractAudio struct {
	Input   string
	Output  string
	Bitrate int
}

func (e ExtractAudio) Name() string       { return "extract-audio" }
func (e ExtractAudio) OutputPath() string { return e.Output }

func (e ExtractAudio) Validate() error {
	if err := requirePaths(e.Name(), map[string]string{"input": e.Input, "output": e.Output}); err != nil {
		return err
	}
	if e.Bitrate < 0 || e.Bitrate > 320 {
		return invalid(e.Name(), "bitrate %dk out of range", e.Bitrate)
	}
	return nil
}

func (e ExtractAudio) plan(_ context.Context, _ *planEnv) (*plan, error) {
	kbps := e.Bitrate
	if kbps == 0 {
		kbps = 192
	}
	args := append(baseArgs(), "-i", e.Input, "-vn", "-map", "0:a:0",
		"-c:a", "libmp3lame", "-b:a", strconv.Itoa(kbps)+"k", e.Output)
	return &plan{args: args}, nil
}
