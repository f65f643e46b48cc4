package model

import (
	"path/filepath"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"normal-file.mp4", "normal-file.mp4"},
		{"file:with:colons", "file_with_colons"},
		{"file<with>brackets", "file_with_brackets"},
		{"file/with\\slashes", "file_with_slashes"},
		{"file|with|pipes", "file_with_pipes"},
		{"file?with*wildcards", "file_with_wildcards"},
		{"file\"with\"quotes", "file_with_quotes"},
		{"trailing dots...", "trailing dots"},
		{"multiple   spaces", "multiple spaces"},
		{"trailing spaces   ", "trailing spaces"},
		{"  leading spaces", "leading spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := SanitizeFileName(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewJob_PathComputation(t *testing.T) {
	cfg := &PathConfig{DownloadsPath: "/videos", MergedExtension: ".mp4"}
	job := NewJob("BV1xx411c7mD", 1, "My: Video", cfg)

	wantDir := filepath.Join("/videos", "My_ Video")
	if job.WorkingDir != wantDir {
		t.Errorf("WorkingDir = %q, want %q", job.WorkingDir, wantDir)
	}
	if job.MergedPath != filepath.Join(wantDir, "My_ Video.mp4") {
		t.Errorf("MergedPath = %q", job.MergedPath)
	}
	if job.VideoPath != filepath.Join(wantDir, "My_ Video.video.m4s") {
		t.Errorf("VideoPath = %q", job.VideoPath)
	}
	if job.AudioPath != filepath.Join(wantDir, "My_ Video.audio.m4s") {
		t.Errorf("AudioPath = %q", job.AudioPath)
	}
	if job.DanmakuPath != filepath.Join(wantDir, "danmaku.json") {
		t.Errorf("DanmakuPath = %q", job.DanmakuPath)
	}
	if job.State != StateResolving {
		t.Errorf("State = %v, want resolving", job.State)
	}
}

func TestNewJob_EmptyTitleFallsBackToID(t *testing.T) {
	job := NewJob("BV1xx411c7mD", 2, "???", &PathConfig{DownloadsPath: "/videos"})
	if job.Title != "___" {
		t.Errorf("Title = %q, want %q", job.Title, "___")
	}

	job = NewJob("BV1xx411c7mD", 2, "", &PathConfig{DownloadsPath: "/videos"})
	if job.Title != "BV1xx411c7mD" {
		t.Errorf("Title = %q, want content id", job.Title)
	}
	if filepath.Ext(job.MergedPath) != ".mp4" {
		t.Errorf("default extension not applied: %q", job.MergedPath)
	}
	if job.Key() != "BV1xx411c7mD#2" {
		t.Errorf("Key() = %q", job.Key())
	}
}

func TestCeiling(t *testing.T) {
	tests := []struct {
		name       string
		requested  Quality
		authorized bool
		want       Quality
	}{
		{"guest capped", Quality1080P, false, Quality720P},
		{"guest below cap", Quality480P, false, Quality480P},
		{"authorized keeps request", Quality4K, true, Quality4K},
		{"guest at cap", Quality720P, false, Quality720P},
		{"guest unset", 0, false, Quality720P},
		{"authorized unset", 0, true, Quality8K},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ceiling(tt.requested, tt.authorized); got != tt.want {
				t.Errorf("Ceiling(%d, %v) = %d, want %d", tt.requested, tt.authorized, got, tt.want)
			}
		})
	}
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		input   string
		want    Quality
		wantErr bool
	}{
		{"1080p", Quality1080P, false},
		{"1080P+", Quality1080PPlus, false},
		{"4k", Quality4K, false},
		{"80", Quality1080P, false},
		{"best", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseQuality(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseQuality(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDanmakuAttr(t *testing.T) {
	rec, err := ParseDanmakuAttr("12.5,1,25,16777215,1700000000,0,abc123,998877,10", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := DanmakuRecord{
		Time: 12.5, Mode: 1, FontSize: 25, Color: 16777215,
		Timestamp: 1700000000, Pool: 0, UserID: "abc123", DMID: "998877", Text: "hello",
	}
	if rec != want {
		t.Errorf("record = %+v, want %+v", rec, want)
	}

	if _, err := ParseDanmakuAttr("1,2,3", "x"); err == nil {
		t.Error("expected error for short attribute")
	}
	if _, err := ParseDanmakuAttr("x,1,25,0,0,0,u,d", "x"); err == nil {
		t.Error("expected error for non-numeric time")
	}
}

func TestCredentials(t *testing.T) {
	creds, err := ParseCredentials("SESSDATA=abc; bili_jct=def", "buvid3=xyz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !creds.Authorized() {
		t.Error("Authorized() = false, want true")
	}
	if got := creds.CookieHeader(); got != "SESSDATA=abc; bili_jct=def; buvid3=xyz" {
		t.Errorf("CookieHeader() = %q", got)
	}

	if (Credentials{}).Authorized() {
		t.Error("empty credentials should not be authorized")
	}
	if _, err := ParseCredentials("novalue"); err == nil {
		t.Error("expected error for pair without '='")
	}
}

func TestProgressEvent_Percent(t *testing.T) {
	if p := (ProgressEvent{Current: 50, Total: 200}).Percent(); p != 0.25 {
		t.Errorf("Percent() = %v, want 0.25", p)
	}
	if p := (ProgressEvent{Current: 50, Total: -1}).Percent(); p != 0 {
		t.Errorf("Percent() with unknown total = %v, want 0", p)
	}
}
