package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/selfie2snap/selfie2snap/internal/event"
)

// refreshInterval backs up event delivery: the view re-reads the job
// snapshot on every tick even if an event was dropped.
const refreshInterval = 250 * time.Millisecond

// tickMsg triggers a periodic snapshot refresh.
type tickMsg time.Time

// eventMsg carries one bus event for the watched job.
type eventMsg struct {
	event event.Event
}

// exportedMsg reports the outcome of an export.
type exportedMsg struct {
	paths []string
	err   error
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForEvent blocks on the next forwarded bus event. It returns nil once
// the channel is closed so the program stops listening.
func waitForEvent(events <-chan event.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg{event: e}
	}
}
