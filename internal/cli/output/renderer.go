// Package output renders command results for terminals, markdown, JSON and
// CSV consumers.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Mode selects the output format.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto" // text on a TTY, markdown otherwise
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
	ModeCSV      Mode = "csv"
)

// Modes lists every accepted mode, for flag completion.
func Modes() []string {
	return []string{string(ModeAuto), string(ModeText), string(ModeMarkdown), string(ModeJSON), string(ModeCSV)}
}

// Renderer writes styled or plain output depending on its mode.
type Renderer struct {
	w      io.Writer
	errW   io.Writer
	mode   Mode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether w is a terminal.
func NewRenderer(w, errW io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(w, errW, mode, isTerminal(w))
}

// NewRendererWithTTY creates a renderer with explicit TTY detection.
func NewRendererWithTTY(w, errW io.Writer, mode Mode, isTTY bool) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{w: w, errW: errW, mode: mode, isTTY: isTTY, styles: NewStyles(w, isTTY)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

// EffectiveMode resolves ModeAuto against the terminal.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Writer returns the primary output writer.
func (r *Renderer) Writer() io.Writer { return r.w }

// Styles returns the renderer's styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Println writes a line to the output.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.w, a...)
}

// Printf writes formatted output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.w, format, a...)
}

// Header writes a section header.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatHeader(level, text))
		r.Println("")
		return
	}
	style := r.styles.Header1
	if level > 1 {
		style = r.styles.Header2
	}
	r.Println(style.Render(text))
}

// Success writes a success message.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render("✓ " + msg))
}

// Warning writes a warning to the error stream.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errW, r.styles.Warning.Render("! "+msg))
}

// Error writes an error to the error stream.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errW, r.styles.Error.Render("✗ "+msg))
}

// Muted renders s de-emphasized.
func (r *Renderer) Muted(s string) string {
	return r.styles.Muted.Render(s)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// StatusLine writes one line with a colored status word.
func (r *Renderer) StatusLine(status, label, detail string) {
	line := r.styles.Status(status).Render(fmt.Sprintf("%-8s", strings.ToUpper(status))) + " " + label
	if detail != "" {
		line += " " + r.Muted(detail)
	}
	r.Println(line)
}

// KeyValues writes label/value pairs, aligned in text mode.
func (r *Renderer) KeyValues(pairs [][2]string) {
	if r.EffectiveMode() == ModeMarkdown {
		for _, p := range pairs {
			r.Println(FormatKeyValue(p[0], p[1]))
		}
		return
	}
	width := 0
	for _, p := range pairs {
		width = max(width, len(p[0]))
	}
	for _, p := range pairs {
		r.Printf("%s %s\n", r.styles.Bold.Render(fmt.Sprintf("%-*s", width+1, p[0]+":")), p[1])
	}
}
