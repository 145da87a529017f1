// Package render formats session snapshots for a terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/zerostick/agent-console/internal/model"
)

// TimeFormat is the clock format used in front of every transcript line.
const TimeFormat = "15:04:05"

// Panel texts.
const (
	OnlineText   = "Online"
	OfflineText  = "Offline"
	WaitingText  = "Waiting for generation..."
	ArtifactText = "Generated Animation: "
)

// Theme defines the colors used for each transcript kind and the panels.
// All colors are ANSI 256-color codes.
type Theme struct {
	Timestamp lipgloss.Color

	User   lipgloss.Color
	System lipgloss.Color
	Status lipgloss.Color
	Log    lipgloss.Color
	Error  lipgloss.Color

	Online   lipgloss.Color
	Offline  lipgloss.Color
	Artifact lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	Timestamp: lipgloss.Color("243"),
	User:      lipgloss.Color("255"),
	System:    lipgloss.Color("39"),
	Status:    lipgloss.Color("114"),
	Log:       lipgloss.Color("245"),
	Error:     lipgloss.Color("203"),
	Online:    lipgloss.Color("42"),
	Offline:   lipgloss.Color("160"),
	Artifact:  lipgloss.Color("213"),
}

// KindColor returns the color for an entry kind. Unknown kinds use Log.
func (theme Theme) KindColor(kind model.EntryKind) lipgloss.Color {
	switch kind {
	case model.EntryUser:
		return theme.User
	case model.EntrySystem:
		return theme.System
	case model.EntryStatus:
		return theme.Status
	case model.EntryError:
		return theme.Error
	default:
		return theme.Log
	}
}

// Renderer formats entries and panels. A plain renderer emits no escape
// sequences.
type Renderer struct {
	theme    Theme
	renderer *lipgloss.Renderer
}

// New creates a renderer for w. When styled is false, output is plain text
// regardless of what the terminal supports.
func New(w io.Writer, styled bool) *Renderer {
	r := lipgloss.NewRenderer(w)
	if styled {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{theme: DefaultTheme, renderer: r}
}

// Entry formats one transcript entry as "[HH:MM:SS] content".
func (r *Renderer) Entry(entry model.TranscriptEntry) string {
	stamp := r.renderer.NewStyle().Foreground(r.theme.Timestamp).
		Render("[" + entry.Timestamp.Format(TimeFormat) + "]")

	style := r.renderer.NewStyle().Foreground(r.theme.KindColor(entry.Kind))
	if entry.Kind == model.EntryUser {
		style = style.Bold(true)
	}
	return stamp + " " + style.Render(entry.Content)
}

// Transcript formats every entry of state, one per line.
func (r *Renderer) Transcript(state model.SessionState) string {
	var b strings.Builder
	for _, entry := range state.Transcript {
		b.WriteString(r.Entry(entry))
		b.WriteByte('\n')
	}
	return b.String()
}

// Status formats the connection indicator.
func (r *Renderer) Status(state model.SessionState) string {
	if state.IsConnected() {
		return r.renderer.NewStyle().Foreground(r.theme.Online).Bold(true).Render(OnlineText)
	}
	return r.renderer.NewStyle().Foreground(r.theme.Offline).Bold(true).Render(OfflineText)
}

// Artifact formats the artifact panel.
func (r *Renderer) Artifact(state model.SessionState) string {
	if url := state.ArtifactURL(); url != "" {
		return ArtifactText + r.renderer.NewStyle().Foreground(r.theme.Artifact).Underline(true).Render(url)
	}
	return r.renderer.NewStyle().Foreground(r.theme.Timestamp).Render(WaitingText)
}

// Printer writes the changes between successive snapshots to a stream:
// new transcript entries, connection state flips and artifact changes.
type Printer struct {
	w io.Writer
	r *Renderer

	printed    int
	online     bool
	artifact   string
	hasPrinted bool
}

// NewPrinter creates a printer writing to w with r.
func NewPrinter(w io.Writer, r *Renderer) *Printer {
	return &Printer{w: w, r: r}
}

// Print writes everything in state not yet printed.
func (p *Printer) Print(state model.SessionState) error {
	first := !p.hasPrinted
	p.hasPrinted = true

	if first || state.IsConnected() != p.online {
		p.online = state.IsConnected()
		if _, err := fmt.Fprintf(p.w, "-- %s\n", p.r.Status(state)); err != nil {
			return err
		}
	}

	// Transcripts only grow; a shorter one means a different session.
	if len(state.Transcript) < p.printed {
		p.printed = 0
	}
	for _, entry := range state.Transcript[p.printed:] {
		if _, err := fmt.Fprintln(p.w, p.r.Entry(entry)); err != nil {
			return err
		}
	}
	p.printed = len(state.Transcript)

	if url := state.ArtifactURL(); url != p.artifact {
		p.artifact = url
		if url != "" {
			if _, err := fmt.Fprintf(p.w, "-- %s\n", p.r.Artifact(state)); err != nil {
				return err
			}
		}
	}
	return nil
}
