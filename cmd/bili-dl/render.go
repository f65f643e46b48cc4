package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/handiism/bilibili-downloader/internal/download"
	"github.com/handiism/bilibili-downloader/internal/model"
)

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// printer writes notices and, on a terminal, one progress bar per stage.
// Bars are only drawn when a single job runs at a time, since concurrent
// bars would overwrite each other.
type printer struct {
	out     io.Writer
	verbose bool
	bars    bool

	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	barKey string
}

func newPrinter(out io.Writer, verbose, sequential bool) *printer {
	p := &printer{out: out, verbose: verbose}
	if f, ok := out.(*os.File); ok && sequential {
		p.bars = isTerminal(f.Fd())
	}
	return p
}

func (p *printer) notice(n download.Notice) {
	if n.Level == download.LevelVerbose && !p.verbose {
		return
	}

	prefix := ""
	switch n.Level {
	case download.LevelError:
		prefix = "[x] "
	case download.LevelWarning:
		prefix = "[!] "
	case download.LevelSuccess:
		prefix = "[+] "
	case download.LevelInfo:
		prefix = "[i] "
	default:
		prefix = "    "
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Clear()
	}
	fmt.Fprintln(p.out, prefix+n.Message)
}

// progress returns the progress callback of the job for id, or nil when no
// bars are drawn.
func (p *printer) progress(id string) model.ProgressFunc {
	if !p.bars {
		return nil
	}
	return func(e model.ProgressEvent) {
		if e.Stage.Sidecar() {
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()

		key := id + "/" + string(e.Stage)
		if key != p.barKey {
			if p.bar != nil {
				_ = p.bar.Finish()
			}
			p.bar = p.newBar(id, e)
			p.barKey = key
		}
		_ = p.bar.Set64(e.Current)
	}
}

func (p *printer) newBar(id string, e model.ProgressEvent) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(fmt.Sprintf("%-8s %s", e.Stage, id)),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65 * time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.out) }),
		progressbar.OptionSetRenderBlankState(true),
	}
	if e.Stage == model.StageMerge || e.Stage == model.StageExtract {
		return progressbar.NewOptions64(100, opts...)
	}
	opts = append(opts, progressbar.OptionShowBytes(true), progressbar.OptionShowCount(), progressbar.OptionSpinnerType(14))
	return progressbar.NewOptions64(e.Total, opts...)
}

func (p *printer) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
		p.barKey = ""
	}
}

// renderSummary renders one table row per requested id.
func renderSummary(ids []string, results []download.Result) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "ID", "Status", "Title", "Size", "Duration", "Note"})

	for i, res := range results {
		id := ""
		if i < len(ids) {
			id = ids[i]
		}
		size := ""
		if res.MergedPath != "" {
			if info, err := os.Stat(res.MergedPath); err == nil {
				size = humanize.IBytes(uint64(info.Size()))
			}
		}
		duration := ""
		if res.Duration > 0 {
			duration = res.Duration.Round(time.Second).String()
		}
		note := ""
		switch res.Status {
		case download.StatusFailed:
			note = string(res.FailedStage) + ": " + res.Message
		case download.StatusCancelled, download.StatusSkipped:
			note = res.Message
		}
		tw.AppendRow(table.Row{strconv.Itoa(i + 1), id, string(res.Status), res.Title, size, duration, note})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
