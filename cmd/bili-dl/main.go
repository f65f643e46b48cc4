package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/handiism/bilibili-downloader/internal/config"
	"github.com/handiism/bilibili-downloader/internal/ffmpeg"
	"github.com/handiism/bilibili-downloader/internal/logging"
)

// errCancelled makes main exit with the interrupt status.
var errCancelled = errors.New("cancelled")

// app holds what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	configPath string
	output     string
	logLevel   string
	ffmpegDir  string
	hwaccel    string
	verbose    bool

	settings *config.Settings
	logger   *logrus.Logger
	closer   io.Closer
}

func main() {
	// Handle interrupts
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, cancelling...")
		cancel()
	}()

	err := newRootCommand().ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, errCancelled) || ctx.Err() != nil:
		fmt.Fprintln(os.Stderr, "Download cancelled.")
		os.Exit(130)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "bili-dl [id...]",
		Short: "Download videos from Bilibili",
		Long: "bili-dl downloads Bilibili videos by BV id, av id or page URL, merges the\n" +
			"separate video and audio streams with ffmpeg and offers a few media tools.\n\n" +
			"For interactive mode, use: bili-tui",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.closer != nil {
				_ = a.closer.Close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to config file (.json or .toml)")
	flags.StringVar(&a.output, "dir", "", "Downloads directory (overrides config)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.StringVar(&a.ffmpegDir, "ffmpeg-dir", "", "Directory with bundled ffmpeg and ffprobe")
	flags.StringVar(&a.hwaccel, "hwaccel", "", "Hardware encoder: none, auto, cuda, qsv, videotoolbox, vaapi")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Show verbose output")

	download := newDownloadCommand(a)
	// Bare ids on the root command download them.
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		download.SetContext(cmd.Context())
		return download.RunE(download, args)
	}
	root.Flags().AddFlagSet(download.Flags())

	root.AddCommand(
		download,
		newMergeCommand(a),
		newConvertCommand(a),
		newCutCommand(a),
		newConcatCommand(a),
		newCompressCommand(a),
		newReverseCommand(a),
		newDelogoCommand(a),
		newExtractAudioCommand(a),
		newProbeCommand(a),
		newHWAccelCommand(a),
	)
	return root
}

// setup loads the settings, applies the global flags and builds the logger.
func (a *app) setup() error {
	settings := config.DefaultSettings()
	if a.configPath != "" {
		var err error
		settings, err = config.Load(a.configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}

	// Apply flags
	if a.output != "" {
		settings.DownloadsPath = a.output
	}
	if a.logLevel != "" {
		settings.LogLevel = a.logLevel
	}
	if a.verbose && a.logLevel == "" {
		settings.LogLevel = "debug"
	}
	if a.ffmpegDir != "" {
		settings.FFmpegDir = a.ffmpegDir
	}
	if a.hwaccel != "" {
		settings.HWAccel = a.hwaccel
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	logger, closer, err := logging.NewFromSettings(settings)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	a.settings = settings
	a.logger = logger
	a.closer = closer
	return nil
}

func (a *app) engine(ctx context.Context) *ffmpeg.Engine {
	return ffmpeg.NewEngine(ctx, ffmpeg.Options{
		Dir:     a.settings.FFmpegDir,
		HWAccel: ffmpeg.ParseAccelerator(a.settings.HWAccel),
		Logger:  a.logger,
	})
}
