package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/selfie2snap/selfie2snap/internal/job"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Selfie2Snap"))
	b.WriteString("\n")
	b.WriteString(m.styles.Subtitle.Render(m.describeJob()))
	b.WriteString("\n\n")

	b.WriteString(m.renderProgress())
	b.WriteString("\n\n")

	rows := make([]string, 0, len(m.snap.Frames))
	for _, f := range m.snap.Frames {
		rows = append(rows, m.renderFrame(f, f.Index == m.cursor))
	}
	b.WriteString(m.styles.Box.Render(strings.Join(rows, "\n")))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(m.styles.Error.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	case m.notice != "":
		b.WriteString(m.styles.Notice.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString(m.styles.StatusBar.Render(m.help.View(m.keys)))
	return b.String()
}

func (m Model) describeJob() string {
	o := m.snap.Options
	parts := []string{
		"job " + shortID(m.jobID),
		fmt.Sprintf("%d frames", o.FrameCount),
		string(o.AspectRatio),
		string(o.Scene),
	}
	if o.Style != "" {
		parts = append(parts, fmt.Sprintf("%q", o.Style))
	}
	return strings.Join(parts, " · ")
}

func (m Model) renderProgress() string {
	c := m.snap.Counts
	status := lipgloss.NewStyle().
		Foreground(m.styles.StatusColor(m.snap.Status)).
		Bold(true).
		Render(m.snap.Status.String())
	return fmt.Sprintf("%s  %d/%d  %s",
		m.progress.ViewAs(m.snap.Progress/100), c.Terminal(), c.Total, status)
}

func (m Model) renderFrame(f job.FrameResult, selected bool) string {
	cursor := "  "
	if selected {
		cursor = m.styles.HelpKey.Render("▸ ")
	}
	label := fmt.Sprintf("Frame %02d", f.Index+1)
	if selected {
		label = m.styles.Selected.Render(label)
	} else {
		label = m.styles.FrameRow.Render(label)
	}

	var detail string
	switch f.State {
	case job.FrameSucceeded:
		if f.Output != nil {
			detail = m.styles.Muted.Render(f.Output.MediaType)
		}
	case job.FrameFailed:
		if f.Error != nil {
			detail = m.styles.Error.Render(truncate(f.Error.Reason, 48))
		}
	}
	attempt := ""
	if f.Attempt > 1 {
		attempt = m.styles.Muted.Render(fmt.Sprintf("attempt %d", f.Attempt))
	}
	return strings.TrimRight(strings.Join([]string{cursor + label, m.styles.FrameBadge(f.State), attempt, detail}, " "), " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate cuts s to n terminal columns, keeping any escape sequences.
func truncate(s string, n int) string {
	return ansi.Truncate(s, n, "…")
}
