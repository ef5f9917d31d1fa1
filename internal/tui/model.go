package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/settings"
	"github.com/selfie2snap/selfie2snap/internal/tui/styles"
)

// Jobs is the orchestrator surface the view drives.
type Jobs interface {
	Job(jobID string) (*job.Job, error)
	Cancel(jobID string) error
	RetryFrame(jobID string, index int) error
}

// Exporter writes surfaced frames to disk.
type Exporter interface {
	Export(jobID string, index int, dir string) (string, error)
	ExportAll(jobID, dir string) ([]string, error)
}

// Model is the bubbletea model of a single job: one row per frame, an
// aggregate progress bar and the frame actions.
type Model struct {
	jobs      Jobs
	exporter  Exporter
	prefs     *settings.Settings
	jobID     string
	exportDir string
	events    <-chan event.Event

	snap   job.Snapshot
	cursor int

	keys     keyMap
	help     help.Model
	progress progress.Model
	styles   styles.Styles

	notice   string
	err      error
	quitting bool
}

// NewModel builds the view for jobID. prefs may be nil, in which case the
// dark theme is used and theme toggling is disabled.
func NewModel(jobs Jobs, exporter Exporter, prefs *settings.Settings, jobID, exportDir string, events <-chan event.Event) Model {
	theme := settings.ThemeDark
	if prefs != nil {
		theme = prefs.Preferences().Theme
	}
	m := Model{
		jobs:      jobs,
		exporter:  exporter,
		prefs:     prefs,
		jobID:     jobID,
		exportDir: exportDir,
		events:    events,
		keys:      defaultKeyMap(),
		help:      help.New(),
		progress:  progress.New(progress.WithoutPercentage(), progress.WithWidth(40)),
	}
	m.applyTheme(theme)
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		m.progress.Width = max(10, min(msg.Width-20, 60))
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case eventMsg:
		m.refresh()
		return m, waitForEvent(m.events)

	case exportedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.notice = ""
			return m, nil
		}
		m.err = nil
		if len(msg.paths) == 1 {
			m.notice = "exported " + msg.paths[0]
		} else {
			m.notice = fmt.Sprintf("exported %d frames to %s", len(msg.paths), m.exportDir)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.snap.Frames)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Retry):
		m.setResult(m.jobs.RetryFrame(m.jobID, m.cursor), fmt.Sprintf("retrying frame %d", m.cursor+1))
		m.refresh()

	case key.Matches(msg, m.keys.RetryAll):
		m.retryFailed()
		m.refresh()

	case key.Matches(msg, m.keys.Cancel):
		m.setResult(m.jobs.Cancel(m.jobID), "cancelled")
		m.refresh()

	case key.Matches(msg, m.keys.Export):
		return m, m.export(m.cursor)

	case key.Matches(msg, m.keys.ExportAll):
		return m, m.export(-1)

	case key.Matches(msg, m.keys.Theme):
		m.toggleTheme()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// refresh re-reads the job snapshot. A job the orchestrator no longer
// tracks keeps its last snapshot on screen.
func (m *Model) refresh() {
	j, err := m.jobs.Job(m.jobID)
	if err != nil {
		m.err = err
		return
	}
	m.snap = j.Snapshot()
	if m.cursor >= len(m.snap.Frames) {
		m.cursor = max(len(m.snap.Frames)-1, 0)
	}
}

func (m *Model) setResult(err error, notice string) {
	if err != nil {
		m.err = err
		m.notice = ""
		return
	}
	m.err = nil
	m.notice = notice
}

func (m *Model) retryFailed() {
	n := 0
	for _, f := range m.snap.Frames {
		if f.State != job.FrameFailed {
			continue
		}
		if err := m.jobs.RetryFrame(m.jobID, f.Index); err != nil {
			m.setResult(err, "")
			return
		}
		n++
	}
	m.setResult(nil, fmt.Sprintf("retrying %d failed frames", n))
}

// export runs off the update loop. index -1 exports every surfaced frame.
func (m Model) export(index int) tea.Cmd {
	if m.exporter == nil {
		return nil
	}
	exporter, jobID, dir := m.exporter, m.jobID, m.exportDir
	return func() tea.Msg {
		if index < 0 {
			paths, err := exporter.ExportAll(jobID, dir)
			return exportedMsg{paths: paths, err: err}
		}
		path, err := exporter.Export(jobID, index, dir)
		if err != nil {
			return exportedMsg{err: err}
		}
		return exportedMsg{paths: []string{path}}
	}
}

func (m *Model) toggleTheme() {
	if m.prefs == nil {
		return
	}
	next := settings.ThemeLight
	if m.prefs.Preferences().Theme == settings.ThemeLight {
		next = settings.ThemeDark
	}
	prefs, err := m.prefs.SetTheme(context.Background(), string(next))
	if err != nil {
		m.setResult(err, "")
		return
	}
	m.applyTheme(prefs.Theme)
	m.setResult(nil, "theme: "+string(prefs.Theme))
}

func (m *Model) applyTheme(theme settings.Theme) {
	m.styles = styles.New(theme)
	m.progress.FullColor = string(m.styles.Palette.Primary)
	m.progress.EmptyColor = string(m.styles.Palette.Border)
	m.help.Styles.ShortKey = m.styles.HelpKey
	m.help.Styles.ShortDesc = m.styles.HelpDesc
	m.help.Styles.FullKey = m.styles.HelpKey
	m.help.Styles.FullDesc = m.styles.HelpDesc
}

// Snapshot returns the last snapshot the view rendered from.
func (m Model) Snapshot() job.Snapshot {
	return m.snap
}
