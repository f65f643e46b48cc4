package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/handiism/bilibili-downloader/internal/ffmpeg"
)

// runOperation runs op and reports its progress on stdout.
func runOperation(cmd *cobra.Command, a *app, op ffmpeg.Operation) error {
	ctx := cmd.Context()
	engine := a.engine(ctx)

	var onProgress func(int)
	var bar *progressbar.ProgressBar
	if isTerminal(os.Stdout.Fd()) {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription(op.Name()),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
		onProgress = func(percent int) { _ = bar.Set(percent) }
	}

	res := engine.Run(ctx, op, onProgress)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if !res.Success {
		if ctx.Err() != nil {
			return errCancelled
		}
		if a.verbose && res.Output != "" {
			fmt.Fprintln(os.Stderr, res.Output)
		}
		if res.Err == nil {
			return errors.New(res.Message)
		}
		return fmt.Errorf("%s: %w", res.Message, res.Err)
	}
	fmt.Printf("Wrote %s\n", op.OutputPath())
	return nil
}

func newMergeCommand(a *app) *cobra.Command {
	var op ffmpeg.Merge
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Remux a video stream and an audio stream into one file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOperation(cmd, a, op)
		},
	}
	cmd.Flags().StringVar(&op.VideoPath, "video", "", "Video stream")
	cmd.Flags().StringVar(&op.AudioPath, "audio", "", "Audio stream (optional)")
	cmd.Flags().StringVarP(&op.Output, "output", "o", "", "Output file")
	return cmd
}

func newConvertCommand(a *app) *cobra.Command {
	var op ffmpeg.Convert
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Re-encode a video, optionally with the hardware encoder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("crf") {
				op.CRF = a.settings.DefaultCRF
			}
			if op.Preset == "" {
				op.Preset = a.settings.Preset
			}
			return runOperation(cmd, a, op)
		},
	}
	addIO(cmd, &op.Input, &op.Output)
	cmd.Flags().StringVar(&op.Codec, "video-codec", "h264", "Target codec: h264 or hevc")
	cmd.Flags().IntVar(&op.CRF, "crf", 23, "Quality, 0-51 (default from config)")
	cmd.Flags().StringVar(&op.Preset, "preset", "", "Encoder preset (default from config)")
	cmd.Flags().BoolVar(&op.HWAccel, "hw", false, "Use the configured hardware encoder")
	return cmd
}

func newCutCommand(a *app) *cobra.Command {
	var op ffmpeg.Cut
	cmd := &cobra.Command{
		Use:     "cut",
		Short:   "Cut a time range out of a video",
		Example: "  bili-dl cut -i in.mp4 -o out.mp4 --start 1m30s --end 2m",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if op.Accurate && !cmd.Flags().Changed("crf") {
				op.CRF = a.settings.DefaultCRF
			}
			return runOperation(cmd, a, op)
		},
	}
	addIO(cmd, &op.Input, &op.Output)
	cmd.Flags().DurationVar(&op.Start, "start", 0, "Start time, e.g. 90s or 1m30s")
	cmd.Flags().DurationVar(&op.End, "end", 0, "End time")
	cmd.Flags().BoolVar(&op.Accurate, "accurate", false, "Re-encode for a frame accurate cut")
	cmd.Flags().IntVar(&op.CRF, "crf", 23, "Quality for accurate cuts")
	cmd.Flags().StringVar(&op.Preset, "preset", "", "Encoder preset for accurate cuts")
	return cmd
}

func newConcatCommand(a *app) *cobra.Command {
	var op ffmpeg.Concat
	cmd := &cobra.Command{
		Use:   "concat <clip>...",
		Short: "Join trimmed clips into one video",
		Long: "Each clip is a path, optionally followed by @start-end in seconds, or in\n" +
			"frames with an f suffix. An empty end means the end of the file.",
		Example: "  bili-dl concat -o out.mp4 intro.mp4 talk.mp4@12.5-80 outro.mp4@0-250f",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				clip, err := parseClip(arg)
				if err != nil {
					return err
				}
				op.Clips = append(op.Clips, clip)
			}
			if !cmd.Flags().Changed("crf") {
				op.CRF = a.settings.DefaultCRF
			}
			return runOperation(cmd, a, op)
		},
	}
	cmd.Flags().StringVarP(&op.Output, "output", "o", "", "Output file")
	cmd.Flags().IntVar(&op.Width, "width", 0, "Output width (default: size of the first clip)")
	cmd.Flags().IntVar(&op.Height, "height", 0, "Output height (default: size of the first clip)")
	cmd.Flags().IntVar(&op.CRF, "crf", 23, "Quality, 0-51")
	cmd.Flags().StringVar(&op.Preset, "preset", "", "Encoder preset")
	return cmd
}

// parseClip parses "path", "path@start-end" or "path@start-endf".
func parseClip(arg string) (ffmpeg.Clip, error) {
	path, span, found := cutLast(arg, "@")
	clip := ffmpeg.Clip{Path: path}
	if !found {
		return clip, nil
	}

	if strings.HasSuffix(span, "f") {
		clip.Unit = ffmpeg.UnitFrames
		span = strings.TrimSuffix(span, "f")
	}
	startText, endText, ok := strings.Cut(span, "-")
	if !ok {
		return clip, fmt.Errorf("clip %q: range must be start-end", arg)
	}

	var err error
	if clip.Start, err = parseBound(startText); err != nil {
		return clip, fmt.Errorf("clip %q: start: %w", arg, err)
	}
	if clip.End, err = parseBound(endText); err != nil {
		return clip, fmt.Errorf("clip %q: end: %w", arg, err)
	}
	return clip, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}

func parseBound(s string) (float64, error) {
	if s = strings.TrimSpace(s); s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func newCompressCommand(a *app) *cobra.Command {
	var op ffmpeg.Compress
	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Re-encode a video with its height capped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if op.Preset == "" {
				op.Preset = a.settings.Preset
			}
			return runOperation(cmd, a, op)
		},
	}
	addIO(cmd, &op.Input, &op.Output)
	cmd.Flags().IntVar(&op.MaxHeight, "max-height", 720, "Maximum output height")
	cmd.Flags().IntVar(&op.CRF, "crf", 28, "Quality, 0-51")
	cmd.Flags().StringVar(&op.Preset, "preset", "", "Encoder preset")
	return cmd
}

func newReverseCommand(a *app) *cobra.Command {
	var op ffmpeg.Reverse
	cmd := &cobra.Command{
		Use:   "reverse",
		Short: "Play a video backwards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOperation(cmd, a, op)
		},
	}
	addIO(cmd, &op.Input, &op.Output)
	return cmd
}

func newDelogoCommand(a *app) *cobra.Command {
	var op ffmpeg.Delogo
	cmd := &cobra.Command{
		Use:     "delogo",
		Short:   "Hide a rectangular watermark",
		Example: "  bili-dl delogo -i in.mp4 -o out.mp4 --x 1700 --y 40 --width 180 --height 60",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOperation(cmd, a, op)
		},
	}
	addIO(cmd, &op.Input, &op.Output)
	cmd.Flags().IntVar(&op.X, "x", 0, "Left edge of the region")
	cmd.Flags().IntVar(&op.Y, "y", 0, "Top edge of the region")
	cmd.Flags().IntVar(&op.W, "width", 0, "Width of the region")
	cmd.Flags().IntVar(&op.H, "height", 0, "Height of the region")
	cmd.Flags().BoolVar(&op.Blur, "blur", false, "Blur the region instead of interpolating it")
	return cmd
}

func newExtractAudioCommand(a *app) *cobra.Command {
	var op ffmpeg.ExtractAudio
	cmd := &cobra.Command{
		Use:   "extract-audio",
		Short: "Write the audio track of a video as MP3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("bitrate") {
				op.Bitrate = a.settings.MP3Bitrate
			}
			return runOperation(cmd, a, op)
		},
	}
	addIO(cmd, &op.Input, &op.Output)
	cmd.Flags().IntVar(&op.Bitrate, "bitrate", 192, "MP3 bitrate in kbit/s (default from config)")
	return cmd
}

func newProbeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>...",
		Short: "Show duration, resolution and codecs of media files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := a.engine(cmd.Context())

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"File", "Duration", "Resolution", "FPS", "Video", "Audio"})
			for _, path := range args {
				info, err := engine.Probe(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("probe %s: %w", path, err)
				}
				resolution := ""
				if info.HasVideo {
					resolution = fmt.Sprintf("%dx%d", info.Width, info.Height)
				}
				tw.AppendRow(table.Row{
					path,
					fmt.Sprintf("%.2fs", info.Duration),
					resolution,
					fmt.Sprintf("%.3g", info.FrameRate),
					info.VideoCodec,
					info.AudioCodec,
				})
			}
			fmt.Println(tw.Render())
			return nil
		},
	}
}

func newHWAccelCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hwaccel",
		Short: "List the hardware encoders ffmpeg supports here",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine := a.engine(cmd.Context())
			if !engine.Available() {
				return ffmpeg.ErrUnavailable
			}
			available, err := engine.DetectAccelerators(cmd.Context())
			if err != nil {
				return err
			}
			if len(available) == 0 {
				fmt.Println("No hardware encoders found; software encoding will be used.")
				return nil
			}
			for _, accel := range available {
				fmt.Println("  " + string(accel))
			}
			fmt.Printf("auto selects: %s\n", ffmpeg.SelectAccelerator(available))
			return nil
		},
	}
}

func addIO(cmd *cobra.Command, input, output *string) {
	cmd.Flags().StringVarP(input, "input", "i", "", "Input file")
	cmd.Flags().StringVarP(output, "output", "o", "", "Output file")
}
