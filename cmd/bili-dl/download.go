package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/handiism/bilibili-downloader/internal/download"
	"github.com/handiism/bilibili-downloader/internal/model"
)

type downloadOptions struct {
	page     int
	title    string
	quality  string
	codec    string
	audio    string
	cookie   string
	jobs     int
	danmaku  bool
	comments bool
	cover    bool
	keep     bool
	mp3      bool
	playlist string
	allPages bool
	dryRun   bool
}

func newDownloadCommand(a *app) *cobra.Command {
	opts := &downloadOptions{}

	cmd := &cobra.Command{
		Use:   "download <id>...",
		Short: "Download and merge one or more videos",
		Example: "  bili-dl download BV1xx411c7mD\n" +
			"  bili-dl download --quality 4K --cookie 'SESSDATA=...' https://www.bilibili.com/video/BV1xx411c7mD?p=2\n" +
			"  bili-dl BV1xx411c7mD av170001 --danmaku --comments",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, a, opts, args)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.page, "page", "p", 0, "Page of a multi-part video (default: from the URL, or 1)")
	f.StringVar(&opts.title, "title", "", "Directory name to use; lets finished downloads be skipped offline")
	f.StringVarP(&opts.quality, "quality", "q", "", "Quality ceiling, e.g. 720P, 1080P, 4K or a numeric id (overrides config)")
	f.StringVar(&opts.codec, "codec", "", "Preferred codec: avc, hevc, av1 (overrides config)")
	f.StringVar(&opts.audio, "audio", "", "Audio tier: best or standard (overrides config)")
	f.StringVar(&opts.cookie, "cookie", "", "Session cookies as 'name=value; ...' (overrides config)")
	f.IntVarP(&opts.jobs, "jobs", "j", 0, "Concurrent jobs (overrides config)")
	f.BoolVar(&opts.danmaku, "danmaku", false, "Save danmaku as JSON")
	f.BoolVar(&opts.comments, "comments", false, "Save comments as JSON")
	f.BoolVar(&opts.cover, "cover", false, "Save the cover art")
	f.BoolVar(&opts.keep, "keep-originals", false, "Keep the raw video and audio streams after merging")
	f.BoolVar(&opts.mp3, "mp3", false, "Also extract a tagged MP3")
	f.StringVar(&opts.playlist, "playlist", "", "Write a playlist of the batch: m3u or pls")
	f.BoolVar(&opts.allPages, "all-pages", false, "Download every page of multi-part videos given without --page")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Parse ids without downloading")
	return cmd
}

func runDownload(cmd *cobra.Command, a *app, opts *downloadOptions, args []string) error {
	ctx := cmd.Context()
	settings := a.settings

	if opts.jobs > 0 {
		settings.MaxConcurrentJobs = opts.jobs
	}
	if opts.playlist != "" {
		settings.CreatePlaylist = true
		settings.PlaylistFormat = opts.playlist
	}
	if opts.cookie != "" {
		settings.Cookie = opts.cookie
	}
	if opts.quality != "" {
		settings.Quality = opts.quality
	}
	if opts.codec != "" {
		settings.Codec = opts.codec
	}
	if opts.audio != "" {
		settings.AudioTier = opts.audio
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	quality, _ := model.ParseQuality(settings.Quality)
	codec, _ := model.ParseCodec(settings.Codec)
	audio, _ := model.ParseAudioTier(settings.AudioTier)
	creds := settings.Credentials()
	if !creds.Authorized() && quality > model.GuestQualityCeiling {
		fmt.Fprintf(os.Stderr, "No cookie given, quality is capped at %s\n", model.GuestQualityCeiling.Label())
	}

	ids := splitIDs(args)
	if opts.dryRun {
		fmt.Println("[Dry run - not downloading]")
		for _, id := range ids {
			fmt.Println("  " + id)
		}
		return nil
	}

	sequential := settings.MaxConcurrentJobs == 1 || (len(ids) == 1 && !opts.allPages)
	printer := newPrinter(os.Stdout, a.verbose, sequential)
	manager := download.NewManager(settings, a.engine(ctx),
		download.WithLogger(a.logger),
		download.WithNotice(printer.notice),
	)

	flags := manager.FlagsFromSettings()
	flags.Danmaku = flags.Danmaku || opts.danmaku
	flags.Comments = flags.Comments || opts.comments
	flags.Cover = flags.Cover || opts.cover
	flags.ExtractMP3 = flags.ExtractMP3 || opts.mp3
	if opts.keep {
		flags.DeleteOriginals = false
	}

	reqs := make([]download.Request, len(ids))
	for i, id := range ids {
		reqs[i] = download.Request{
			ID:          id,
			Page:        opts.page,
			Quality:     quality,
			Codec:       codec,
			Audio:       audio,
			Credentials: creds,
			Flags:       flags,
		}
		if len(ids) == 1 {
			reqs[i].Title = opts.title
		}
	}
	if opts.allPages {
		reqs = manager.ExpandPages(ctx, reqs)
	}

	labels := make([]string, len(reqs))
	for i := range reqs {
		labels[i] = requestLabel(reqs[i])
		reqs[i].OnProgress = printer.progress(labels[i])
	}

	fmt.Println("Bilibili Downloader")
	fmt.Println(strings.Repeat("-", 40))

	results := manager.DownloadAll(ctx, reqs)
	printer.finish()

	fmt.Println()
	fmt.Println(renderSummary(labels, results))

	stats := manager.Stats()
	fmt.Printf("Complete! %d done, %d skipped, %d failed, %d cancelled\n", stats.Done, stats.Skipped, stats.Failed, stats.Cancelled)

	switch {
	case stats.Cancelled > 0 && ctx.Err() != nil:
		return errCancelled
	case stats.Failed > 0:
		return fmt.Errorf("%d of %d downloads failed", stats.Failed, stats.Total())
	}
	return nil
}

// requestLabel names a request in progress bars and the summary.
func requestLabel(req download.Request) string {
	if req.Page > 0 {
		return fmt.Sprintf("%s p%d", req.ID, req.Page)
	}
	return req.ID
}

// splitIDs accepts ids as separate arguments or comma separated.
func splitIDs(args []string) []string {
	var ids []string
	for _, arg := range args {
		for _, id := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == '\n' }) {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
