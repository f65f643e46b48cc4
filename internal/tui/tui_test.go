package tui

import (
	"context"
	"reflect"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/handiism/bilibili-downloader/internal/config"
	"github.com/handiism/bilibili-downloader/internal/download"
	"github.com/handiism/bilibili-downloader/internal/model"
)

type fakeRunner struct {
	flags download.Flags
	reqs  []download.Request
}

func (f *fakeRunner) FlagsFromSettings() download.Flags { return f.flags }

func (f *fakeRunner) DownloadAll(_ context.Context, reqs []download.Request) []download.Result {
	f.reqs = reqs
	results := make([]download.Result, len(reqs))
	for i, req := range reqs {
		req.OnProgress(model.ProgressEvent{Stage: model.StageVideo, Current: 1, Total: 2})
		results[i] = download.Result{Success: true, Status: download.StatusDone, Title: req.ID}
	}
	return results
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestParseIDs(t *testing.T) {
	got := ParseIDs(" BV1xx411c7mD, av170001\nhttps://www.bilibili.com/video/BV1yy411c7mD?p=2;; ")
	want := []string{"BV1xx411c7mD", "av170001", "https://www.bilibili.com/video/BV1yy411c7mD?p=2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseIDs = %q, want %q", got, want)
	}
	if len(ParseIDs("  ,\n")) != 0 {
		t.Error("blank input produced ids")
	}
}

func TestModel_OptionsStartFromSettings(t *testing.T) {
	m := NewModel(config.DefaultSettings(), &fakeRunner{flags: download.Flags{Comments: true, DeleteOriginals: true}})
	if !m.options[optComments] || !m.options[optDeleteOriginals] || m.options[optDanmaku] {
		t.Errorf("options = %v", m.options)
	}
}

func TestModel_ToggleOptionsDoesNotType(t *testing.T) {
	m := NewModel(config.DefaultSettings(), &fakeRunner{})

	m, _ = update(t, m, key("tab"))
	if !m.focusOptions {
		t.Fatal("tab did not focus the options")
	}
	m, _ = update(t, m, key("space")) // danmaku
	m, _ = update(t, m, key("down"))
	m, _ = update(t, m, key("x")) // comments

	if !m.options[optDanmaku] || !m.options[optComments] {
		t.Errorf("options = %v, want danmaku and comments on", m.options)
	}
	if m.textInput.Value() != "" {
		t.Errorf("option keys reached the input: %q", m.textInput.Value())
	}

	m, _ = update(t, m, key("tab"))
	m, _ = update(t, m, key("x"))
	if m.textInput.Value() != "x" {
		t.Errorf("input = %q, want typed text after leaving the options", m.textInput.Value())
	}
}

func TestModel_DownloadFlow(t *testing.T) {
	runner := &fakeRunner{}
	settings := config.DefaultSettings()
	settings.Quality = "480P"
	settings.Cookie = "SESSDATA=abc"
	m := NewModel(settings, runner)

	var sent []tea.Msg
	m.sender.send = func(msg tea.Msg) { sent = append(sent, msg) }

	m.textInput.SetValue("BV1xx411c7mD av170001")
	m.options[optCover] = true

	m, cmd := update(t, m, key("enter"))
	if m.state != StateDownloading || len(m.jobs) != 2 {
		t.Fatalf("state = %v, jobs = %d", m.state, len(m.jobs))
	}
	if cmd == nil {
		t.Fatal("enter returned no command")
	}

	// The batch command is the first of the batch; run it directly.
	done := m.startDownload([]string{"BV1xx411c7mD", "av170001"})().(DownloadDoneMsg)
	if len(runner.reqs) != 2 {
		t.Fatalf("runner got %d requests", len(runner.reqs))
	}
	req := runner.reqs[1]
	if req.ID != "av170001" || !req.Flags.Cover || req.Quality != model.Quality480P || !req.Credentials.Authorized() {
		t.Errorf("request = %+v", req)
	}
	if len(sent) != 2 {
		t.Fatalf("sent %d progress messages, want 2", len(sent))
	}

	m, _ = update(t, m, sent[1])
	if job := m.jobs[1]; job.Stage != model.StageVideo || job.Current != 1 || job.Total != 2 {
		t.Errorf("job = %+v", job)
	}
	if !strings.Contains(m.View(), "Downloading 2 video(s)") {
		t.Error("downloading view not rendered")
	}

	m, _ = update(t, m, done)
	if m.state != StateComplete {
		t.Fatalf("state = %v, want complete", m.state)
	}
	if view := m.View(); !strings.Contains(view, "Done: 2") {
		t.Errorf("summary missing from view:\n%s", view)
	}
}

func TestModel_CancelMarksError(t *testing.T) {
	m := NewModel(config.DefaultSettings(), &fakeRunner{})
	m.textInput.SetValue("BV1xx411c7mD")
	m, _ = update(t, m, key("enter"))

	m, _ = update(t, m, key("esc"))
	if m.ctx.Err() == nil {
		t.Fatal("esc did not cancel the batch")
	}
	m, _ = update(t, m, DownloadDoneMsg{Results: []download.Result{{Status: download.StatusCancelled, Message: "cancelled"}}})
	if m.state != StateError || m.err == nil {
		t.Errorf("state = %v, err = %v", m.state, m.err)
	}

	m, _ = update(t, m, key("r"))
	if m.state != StateInput || len(m.jobs) != 0 || m.ctx.Err() != nil {
		t.Error("reset did not start a fresh session")
	}
}

func TestModel_VerboseNoticesFiltered(t *testing.T) {
	m := NewModel(config.DefaultSettings(), &fakeRunner{})
	m, _ = update(t, m, NoticeMsg{Notice: download.Notice{Message: "debug", Level: download.LevelVerbose}})
	m, _ = update(t, m, NoticeMsg{Notice: download.Notice{Message: "hello", Level: download.LevelInfo}})
	if len(m.logs) != 1 || m.logs[0].Message != "hello" {
		t.Errorf("logs = %+v", m.logs)
	}
}
