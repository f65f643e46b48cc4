package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/handiism/bilibili-downloader/internal/download"
	"github.com/handiism/bilibili-downloader/internal/ffmpeg"
	"github.com/handiism/bilibili-downloader/internal/model"
)

func TestParseClip(t *testing.T) {
	tests := []struct {
		arg     string
		want    ffmpeg.Clip
		wantErr bool
	}{
		{"intro.mp4", ffmpeg.Clip{Path: "intro.mp4"}, false},
		{"talk.mp4@12.5-80", ffmpeg.Clip{Path: "talk.mp4", Start: 12.5, End: 80}, false},
		{"outro.mp4@0-250f", ffmpeg.Clip{Path: "outro.mp4", End: 250, Unit: ffmpeg.UnitFrames}, false},
		{"a@b.mp4@5-", ffmpeg.Clip{Path: "a@b.mp4", Start: 5}, false},
		{"x.mp4@10", ffmpeg.Clip{}, true},
		{"x.mp4@a-b", ffmpeg.Clip{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseClip(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseClip error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseClip = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSplitIDs(t *testing.T) {
	got := splitIDs([]string{"BV1xx411c7mD,av170001", " 170002 ", ","})
	want := []string{"BV1xx411c7mD", "av170001", "170002"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitIDs = %q, want %q", got, want)
	}
}

func TestRequestLabel(t *testing.T) {
	if got := requestLabel(download.Request{ID: "BV1xx411c7mD", Page: 3}); got != "BV1xx411c7mD p3" {
		t.Errorf("label = %q", got)
	}
	if got := requestLabel(download.Request{ID: "av170001"}); got != "av170001" {
		t.Errorf("label = %q", got)
	}
}

func TestRenderSummary(t *testing.T) {
	merged := filepath.Join(t.TempDir(), "a.mp4")
	if err := os.WriteFile(merged, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	out := renderSummary([]string{"BV1xx411c7mD", "av170001"}, []download.Result{
		{Status: download.StatusDone, Title: "First", MergedPath: merged, Duration: 90 * time.Second},
		{Status: download.StatusFailed, FailedStage: model.StageMerge, Message: "merge failed, streams kept"},
	})

	for _, want := range []string{"BV1xx411c7mD", "First", "2.0 KiB", "1m30s", "merge: merge failed, streams kept"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrinter_FiltersVerbose(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false, true)
	if p.bars {
		t.Fatal("bars enabled for a non-terminal writer")
	}
	if p.progress("BV1xx411c7mD") != nil {
		t.Error("progress callback returned without bars")
	}

	p.notice(download.Notice{Message: "hidden", Level: download.LevelVerbose})
	p.notice(download.Notice{Message: "shown", Level: download.LevelWarning})
	if got := buf.String(); got != "[!] shown\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRootCommand_DryRun(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--dir", dir, "--dry-run", "BV1xx411c7mD"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestRootCommand_InvalidSettings(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(cfg, []byte("max_concurrent_jobs = 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCommand()
	cmd.SetArgs([]string{"download", "--config", cfg, "--dry-run", "BV1xx411c7mD"})
	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "max_concurrent_jobs") {
		t.Errorf("Execute error = %v, want settings validation error", err)
	}
}

func TestRootCommand_InvalidQualityFlag(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"download", "--dir", t.TempDir(), "--quality", "potato", "--dry-run", "BV1xx411c7mD"})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Error("unknown quality accepted")
	}
}
