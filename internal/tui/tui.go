// Package tui provides a Bubble Tea terminal user interface for bilibili-downloader.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/handiism/bilibili-downloader/internal/config"
	"github.com/handiism/bilibili-downloader/internal/download"
	"github.com/handiism/bilibili-downloader/internal/model"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FB7299")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#23ADE5"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#23ADE5")).
			Padding(1, 2)

	focusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FB7299"))
)

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateDownloading
	StateComplete
	StateError
)

// Runner runs a batch of download requests.
type Runner interface {
	DownloadAll(ctx context.Context, reqs []download.Request) []download.Result
	FlagsFromSettings() download.Flags
}

// option identifies one toggle on the input screen.
type option int

const (
	optDanmaku option = iota
	optComments
	optCover
	optDeleteOriginals
	optExtractMP3
	optVerbose
	optionCount
)

var optionLabels = [optionCount]string{
	optDanmaku:         "Download danmaku",
	optComments:        "Download comments",
	optCover:           "Save cover art",
	optDeleteOriginals: "Delete raw streams after merge",
	optExtractMP3:      "Extract MP3",
	optVerbose:         "Verbose output",
}

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   download.NoticeLevel
}

// jobView is the display state of one requested video.
type jobView struct {
	ID      string
	Stage   model.Stage
	Current int64
	Total   int64
	Result  *download.Result
}

func (j jobView) percent() float64 {
	if j.Result != nil && j.Result.Success {
		return 1
	}
	return model.ProgressEvent{Stage: j.Stage, Current: j.Current, Total: j.Total}.Percent()
}

// sender delivers messages to the running program. It is shared by every
// copy of the Model.
type sender struct {
	send func(tea.Msg)
}

func (s *sender) Send(msg tea.Msg) {
	if s != nil && s.send != nil {
		s.send(msg)
	}
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	settings  *config.Settings
	runner    Runner
	sender    *sender
	logs      []LogEntry
	jobs      []jobView
	err       error

	// Download context
	ctx    context.Context
	cancel context.CancelFunc

	// Options
	options      [optionCount]bool
	focusOptions bool
	cursor       option

	width  int
	height int
}

// NewModel creates a new TUI model. The option toggles start from the
// configured defaults.
func NewModel(settings *config.Settings, runner Runner) Model {
	ti := textinput.New()
	ti.Placeholder = "BV1xx411c7mD, av170001 or https://www.bilibili.com/video/..."
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FB7299"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 40

	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		runner:    runner,
		sender:    &sender{},
		ctx:       ctx,
		cancel:    cancel,
	}
	flags := runner.FlagsFromSettings()
	m.options[optDanmaku] = flags.Danmaku
	m.options[optComments] = flags.Comments
	m.options[optCover] = flags.Cover
	m.options[optDeleteOriginals] = flags.DeleteOriginals
	m.options[optExtractMP3] = flags.ExtractMP3
	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Message types
type (
	// ProgressMsg carries a progress event of the job at Index.
	ProgressMsg struct {
		Index int
		Event model.ProgressEvent
	}

	// NoticeMsg carries a human readable message from the manager.
	NoticeMsg struct {
		Notice download.Notice
	}

	// DownloadDoneMsg is sent when all downloads complete.
	DownloadDoneMsg struct {
		Results []download.Result
	}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = min(max(msg.Width-50, 20), 60)
		return m, nil

	case tea.KeyMsg:
		if next, cmd, handled := m.handleKey(msg); handled {
			return next, cmd
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case ProgressMsg:
		if msg.Index >= 0 && msg.Index < len(m.jobs) {
			job := &m.jobs[msg.Index]
			job.Stage = msg.Event.Stage
			job.Current = msg.Event.Current
			job.Total = msg.Event.Total
		}

	case NoticeMsg:
		// Filter verbose messages if not in verbose mode
		if msg.Notice.Level == download.LevelVerbose && !m.options[optVerbose] {
			return m, nil
		}
		m.logs = append(m.logs, LogEntry{Message: msg.Notice.Message, Level: msg.Notice.Level})
		// Keep only last 10 logs
		if len(m.logs) > 10 {
			m.logs = m.logs[len(m.logs)-10:]
		}

	case DownloadDoneMsg:
		for i := range msg.Results {
			if i < len(m.jobs) {
				m.jobs[i].Result = &msg.Results[i]
			}
		}
		if m.ctx.Err() != nil {
			m.state = StateError
			m.err = fmt.Errorf("cancelled by user")
		} else {
			m.state = StateComplete
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	// Update text input
	if m.state == StateInput && !m.focusOptions {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKey processes key presses. handled is false when the key should
// still reach the text input.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		m.cancel()
		return m, tea.Quit, true

	case "esc":
		switch m.state {
		case StateInput:
			return m, tea.Quit, true
		case StateDownloading:
			// The batch finishes with cancelled results and DownloadDoneMsg.
			m.cancel()
			return m, nil, true
		}

	case "tab", "shift+tab":
		if m.state == StateInput {
			m.focusOptions = !m.focusOptions
			if m.focusOptions {
				m.textInput.Blur()
			} else {
				m.textInput.Focus()
			}
			return m, nil, true
		}

	case "enter":
		if m.state == StateInput {
			ids := ParseIDs(m.textInput.Value())
			if len(ids) == 0 {
				return m, nil, true
			}
			m.startJobs(ids)
			return m, tea.Batch(m.startDownload(ids), m.spinner.Tick), true
		}

	case "up", "k":
		if m.state == StateInput && m.focusOptions {
			m.cursor = (m.cursor + optionCount - 1) % optionCount
			return m, nil, true
		}

	case "down", "j":
		if m.state == StateInput && m.focusOptions {
			m.cursor = (m.cursor + 1) % optionCount
			return m, nil, true
		}

	case " ", "space", "x":
		if m.state == StateInput && m.focusOptions {
			m.options[m.cursor] = !m.options[m.cursor]
			return m, nil, true
		}

	case "q":
		if m.state == StateComplete || m.state == StateError {
			return m, tea.Quit, true
		}

	case "r":
		if m.state == StateComplete || m.state == StateError {
			// Reset for new download
			m.state = StateInput
			m.logs = nil
			m.jobs = nil
			m.err = nil
			m.focusOptions = false
			m.ctx, m.cancel = context.WithCancel(context.Background())
			m.textInput.SetValue("")
			m.textInput.Focus()
			return m, nil, true
		}
	}
	return m, nil, m.state != StateInput || m.focusOptions
}

func (m *Model) startJobs(ids []string) {
	m.state = StateDownloading
	m.logs = nil
	m.jobs = make([]jobView, len(ids))
	for i, id := range ids {
		m.jobs[i] = jobView{ID: id, Stage: model.StageResolve, Total: -1}
	}
}

// ParseIDs splits user input into video ids. Commas, whitespace and
// newlines separate entries.
func ParseIDs(input string) []string {
	return strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
}

func (m Model) flags() download.Flags {
	return download.Flags{
		Danmaku:         m.options[optDanmaku],
		Comments:        m.options[optComments],
		Cover:           m.options[optCover],
		DeleteOriginals: m.options[optDeleteOriginals],
		ExtractMP3:      m.options[optExtractMP3],
	}
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("Bilibili Downloader"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Download videos from Bilibili"))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateDownloading:
		b.WriteString(m.viewDownloading())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Enter video ids or URLs:"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	for i := option(0); i < optionCount; i++ {
		check := "[ ]"
		if m.options[i] {
			check = "[x]"
		}
		line := fmt.Sprintf("  %s %s", check, optionLabels[i])
		if m.focusOptions && m.cursor == i {
			line = focusStyle.Render("> " + line[2:])
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Download path: %s", m.settings.DownloadsPath)))
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewDownloading() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("Downloading %d video(s)...", len(m.jobs))))
	b.WriteString("\n\n")

	for _, job := range m.jobs {
		b.WriteString(m.renderJob(job))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Logs
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) renderJob(job jobView) string {
	label := fmt.Sprintf("%-14s", truncate(job.ID, 14))
	if res := job.Result; res != nil {
		switch res.Status {
		case download.StatusDone:
			return successStyle.Render(fmt.Sprintf("%s done     %s", label, res.Title))
		case download.StatusSkipped:
			return dimStyle.Render(fmt.Sprintf("%s skipped  %s", label, res.Title))
		case download.StatusCancelled:
			return warningStyle.Render(fmt.Sprintf("%s %s", label, res.Message))
		default:
			return errorStyle.Render(fmt.Sprintf("%s failed   %s: %s", label, res.FailedStage, res.Message))
		}
	}

	detail := ""
	switch {
	case job.Stage == model.StageMerge || job.Stage == model.StageExtract:
		detail = fmt.Sprintf("%d%%", job.Current)
	case job.Total > 0:
		detail = humanize.IBytes(uint64(job.Current)) + " / " + humanize.IBytes(uint64(job.Total))
	case job.Current > 0:
		detail = humanize.IBytes(uint64(job.Current))
	}
	return fmt.Sprintf("%s %-8s %s %s", label, job.Stage, m.progress.ViewAs(job.percent()), infoStyle.Render(detail))
}

func (m Model) viewComplete() string {
	counts := map[download.Status]int{}
	for _, job := range m.jobs {
		if job.Result != nil {
			counts[job.Result.Status]++
		}
	}

	var b strings.Builder
	for _, job := range m.jobs {
		b.WriteString(m.renderJob(job))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(fmt.Sprintf(
		"Download Complete!\n\n"+
			"Done: %d\n"+
			"Skipped: %d\n"+
			"Failed: %d",
		counts[download.StatusDone],
		counts[download.StatusSkipped],
		counts[download.StatusFailed],
	)))
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "-"
		switch log.Level {
		case download.LevelError:
			style = errorStyle
			prefix = "x"
		case download.LevelWarning:
			style = warningStyle
			prefix = "!"
		case download.LevelSuccess:
			style = successStyle
			prefix = "+"
		case download.LevelInfo:
			style = infoStyle
			prefix = ">"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateInput:
		if m.focusOptions {
			return "up/down: move | space: toggle | tab: edit ids | enter: start | esc: quit"
		}
		return "enter: start | tab: options | esc: quit"
	case StateDownloading:
		return "esc: cancel"
	case StateComplete, StateError:
		return "r: new download | q: quit"
	}
	return ""
}

// startDownload runs the batch in the background. Progress of every job
// reaches the program through the shared sender.
func (m Model) startDownload(ids []string) tea.Cmd {
	ctx, runner, send, flags := m.ctx, m.runner, m.sender, m.flags()
	quality, codec, audio, creds := m.streamDefaults()

	return func() tea.Msg {
		reqs := make([]download.Request, len(ids))
		for i, id := range ids {
			index := i
			reqs[i] = download.Request{
				ID:          id,
				Quality:     quality,
				Codec:       codec,
				Audio:       audio,
				Credentials: creds,
				Flags:       flags,
				OnProgress: func(e model.ProgressEvent) {
					send.Send(ProgressMsg{Index: index, Event: e})
				},
			}
		}
		return DownloadDoneMsg{Results: runner.DownloadAll(ctx, reqs)}
	}
}

func (m Model) streamDefaults() (model.Quality, model.Codec, model.AudioTier, model.Credentials) {
	quality, err := model.ParseQuality(m.settings.Quality)
	if err != nil {
		quality = model.Quality1080P
	}
	codec, err := model.ParseCodec(m.settings.Codec)
	if err != nil {
		codec = model.CodecAVC
	}
	audio, err := model.ParseAudioTier(m.settings.AudioTier)
	if err != nil {
		audio = model.AudioBest
	}
	return quality, codec, audio, m.settings.Credentials()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}

// Options configures Run.
type Options struct {
	Settings *config.Settings

	// NewRunner builds the download runner. notice receives manager
	// messages and forwards them to the program.
	NewRunner func(notice func(download.Notice)) Runner
}

// Run starts the TUI application.
func Run(opts Options) error {
	s := &sender{}
	runner := opts.NewRunner(func(n download.Notice) {
		s.Send(NoticeMsg{Notice: n})
	})

	m := NewModel(opts.Settings, runner)
	m.sender = s

	p := tea.NewProgram(m, tea.WithAltScreen())
	s.send = p.Send
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		fm.cancel()
	}
	return err
}
