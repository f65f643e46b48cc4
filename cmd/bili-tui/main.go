package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/handiism/bilibili-downloader/internal/config"
	"github.com/handiism/bilibili-downloader/internal/download"
	"github.com/handiism/bilibili-downloader/internal/ffmpeg"
	"github.com/handiism/bilibili-downloader/internal/logging"
	"github.com/handiism/bilibili-downloader/internal/tui"
)

func main() {
	configFlag := flag.String("config", "", "Path to config file (.json or .toml)")
	flag.Parse()

	if err := run(*configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	settings := config.DefaultSettings()
	if configPath != "" {
		var err error
		if settings, err = config.Load(configPath); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	// The alternate screen owns the terminal; logs only go to the log file.
	logOpts := logging.Options{Level: settings.LogLevel, Format: settings.LogFormat, File: settings.LogFile, Output: io.Discard}
	logger, closer, err := logging.New(logOpts)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer closer.Close()

	engine := ffmpeg.NewEngine(context.Background(), ffmpeg.Options{
		Dir:     settings.FFmpegDir,
		HWAccel: ffmpeg.ParseAccelerator(settings.HWAccel),
		Logger:  logger,
	})

	return tui.Run(tui.Options{
		Settings: settings,
		NewRunner: func(notice func(download.Notice)) tui.Runner {
			return download.NewManager(settings, engine,
				download.WithLogger(logger),
				download.WithNotice(notice),
			)
		},
	})
}
