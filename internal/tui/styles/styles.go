// Package styles holds the lipgloss palettes and styles of the terminal UI.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/settings"
)

// Palette is the color scheme of one theme. Colors meet WCAG AA contrast
// against the theme's own surface.
type Palette struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Muted   lipgloss.Color
	Text    lipgloss.Color
	Border  lipgloss.Color
	Surface lipgloss.Color
}

// DarkPalette is the default palette.
func DarkPalette() Palette {
	return Palette{
		Primary: lipgloss.Color("#A78BFA"), // violet-400
		Success: lipgloss.Color("#10B981"),
		Warning: lipgloss.Color("#F59E0B"),
		Error:   lipgloss.Color("#F87171"), // red-400
		Muted:   lipgloss.Color("#9CA3AF"),
		Text:    lipgloss.Color("#F9FAFB"),
		Border:  lipgloss.Color("#6B7280"),
		Surface: lipgloss.Color("#1F2937"),
	}
}

// LightPalette darkens every accent for white backgrounds.
func LightPalette() Palette {
	return Palette{
		Primary: lipgloss.Color("#6D28D9"), // violet-700
		Success: lipgloss.Color("#047857"),
		Warning: lipgloss.Color("#B45309"),
		Error:   lipgloss.Color("#B91C1C"),
		Muted:   lipgloss.Color("#4B5563"),
		Text:    lipgloss.Color("#111827"),
		Border:  lipgloss.Color("#9CA3AF"),
		Surface: lipgloss.Color("#F3F4F6"),
	}
}

// PaletteFor returns the palette of a theme, falling back to dark.
func PaletteFor(theme settings.Theme) Palette {
	if theme == settings.ThemeLight {
		return LightPalette()
	}
	return DarkPalette()
}

// Styles is the rendered style set for one palette.
type Styles struct {
	Palette Palette

	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Box       lipgloss.Style
	Selected  lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Notice    lipgloss.Style
	HelpKey   lipgloss.Style
	HelpDesc  lipgloss.Style
	FrameRow  lipgloss.Style
	StatusBar lipgloss.Style
}

// New builds the style set for a theme.
func New(theme settings.Theme) Styles {
	p := PaletteFor(theme)
	return Styles{
		Palette: p,
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Primary).
			MarginBottom(1),
		Subtitle: lipgloss.NewStyle().
			Foreground(p.Muted).
			Italic(true),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Border).
			Padding(0, 1),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Text).
			Background(p.Primary),
		Muted:    lipgloss.NewStyle().Foreground(p.Muted),
		Error:    lipgloss.NewStyle().Foreground(p.Error),
		Notice:   lipgloss.NewStyle().Foreground(p.Success),
		HelpKey:  lipgloss.NewStyle().Bold(true).Foreground(p.Primary),
		HelpDesc: lipgloss.NewStyle().Foreground(p.Muted),
		FrameRow: lipgloss.NewStyle().Foreground(p.Text),
		StatusBar: lipgloss.NewStyle().
			Foreground(p.Muted).
			MarginTop(1),
	}
}

// FrameColor is the badge color of a frame state.
func (s Styles) FrameColor(state job.FrameState) lipgloss.Color {
	switch state {
	case job.FrameSucceeded:
		return s.Palette.Success
	case job.FrameFailed:
		return s.Palette.Error
	case job.FrameInFlight:
		return s.Palette.Warning
	case job.FrameCancelled:
		return s.Palette.Border
	default:
		return s.Palette.Muted
	}
}

// FrameBadge renders a fixed-width state badge.
func (s Styles) FrameBadge(state job.FrameState) string {
	return lipgloss.NewStyle().
		Foreground(s.FrameColor(state)).
		Width(10).
		Render(state.String())
}

// StatusColor is the color of an aggregate job status.
func (s Styles) StatusColor(status job.Status) lipgloss.Color {
	switch status {
	case job.StatusCompleted:
		return s.Palette.Success
	case job.StatusAllFailed:
		return s.Palette.Error
	case job.StatusRunning:
		return s.Palette.Warning
	default:
		return s.Palette.Muted
	}
}
