package output

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles holds the lipgloss styles used in text output.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Running lipgloss.Style
}

// NewStyles creates styles bound to w. Without a terminal every style
// renders plain text. NO_COLOR keeps emphasis but drops colors.
func NewStyles(w io.Writer, isTTY bool) *Styles {
	lr := lipgloss.NewRenderer(w)
	if os.Getenv("NO_COLOR") != "" {
		lr.SetColorProfile(termenv.Ascii)
	}
	if !isTTY {
		return &Styles{
			Header1: lr.NewStyle(),
			Header2: lr.NewStyle(),
			Bold:    lr.NewStyle(),
			Muted:   lr.NewStyle(),
			Success: lr.NewStyle(),
			Warning: lr.NewStyle(),
			Error:   lr.NewStyle(),
			Running: lr.NewStyle(),
		}
	}
	return &Styles{
		Header1: lr.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginBottom(1),
		Header2: lr.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Bold:    lr.NewStyle().Bold(true),
		Muted:   lr.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lr.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lr.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lr.NewStyle().Foreground(lipgloss.Color("9")),
		Running: lr.NewStyle().Foreground(lipgloss.Color("12")),
	}
}

// Status returns the style for a run or connection status word.
func (s *Styles) Status(status string) lipgloss.Style {
	switch strings.ToLower(status) {
	case "success", "ok", "valid":
		return s.Success
	case "failed", "error", "invalid":
		return s.Error
	case "running":
		return s.Running
	case "warning":
		return s.Warning
	}
	return s.Muted
}
