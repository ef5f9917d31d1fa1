// Package tui renders a running job in the terminal with bubbletea. Frames
// update as their results are published; failed frames can be retried and
// succeeded ones exported without leaving the view.
package tui

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/settings"
)

// eventBuffer bounds the bus-to-program queue. Events beyond it are
// dropped; the periodic refresh still picks up the state they carried.
const eventBuffer = 64

// App wraps the bubbletea program for one job.
type App struct {
	bus   *event.Bus
	model Model
	subID string
	opts  []tea.ProgramOption
}

// AppOption configures an App.
type AppOption func(*App)

// WithIO replaces the terminal streams, e.g. for headless runs.
func WithIO(in io.Reader, out io.Writer) AppOption {
	return func(a *App) {
		a.opts = append(a.opts, tea.WithInput(in), tea.WithOutput(out))
	}
}

// WithAltScreen renders in the terminal's alternate screen.
func WithAltScreen() AppOption {
	return func(a *App) {
		a.opts = append(a.opts, tea.WithAltScreen())
	}
}

// New subscribes to the job's events and builds the program model.
func New(bus *event.Bus, jobs Jobs, exporter Exporter, prefs *settings.Settings, jobID, exportDir string, opts ...AppOption) *App {
	events := make(chan event.Event, eventBuffer)
	subID := bus.SubscribeJob(jobID, func(e event.Event) {
		select {
		case events <- e:
		default:
		}
	})

	a := &App{
		bus:   bus,
		model: NewModel(jobs, exporter, prefs, jobID, exportDir, events),
		subID: subID,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run blocks until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.bus.Unsubscribe(a.subID)

	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, a.opts...)
	p := tea.NewProgram(a.model, opts...)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
