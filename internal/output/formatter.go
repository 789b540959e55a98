// Package output renders command results as human-readable text or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Mode selects the output rendering.
type Mode int

const (
	ModeText Mode = iota
	ModeJSON
)

// Formatter writes command output in the selected mode. Color is applied
// only when the writer is a terminal and not explicitly disabled.
type Formatter struct {
	writer  io.Writer
	mode    Mode
	profile termenv.Profile
}

// New creates a formatter for w.
func New(w io.Writer, mode Mode, noColor bool) *Formatter {
	profile := termenv.Ascii
	if !noColor {
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			profile = termenv.NewOutput(f).Profile
		}
	}
	return &Formatter{writer: w, mode: mode, profile: profile}
}

// Stdout returns a formatter on standard output.
func Stdout(mode Mode, noColor bool) *Formatter {
	return New(os.Stdout, mode, noColor)
}

// JSON reports whether the formatter is in JSON mode.
func (f *Formatter) JSON() bool { return f.mode == ModeJSON }

// Writer returns the underlying writer.
func (f *Formatter) Writer() io.Writer { return f.writer }

// Emit renders v as indented JSON in JSON mode; in text mode it is a no-op
// so callers can pair it with their own text rendering.
func (f *Formatter) Emit(v any) error {
	if f.mode != ModeJSON {
		return nil
	}
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success prints a checkmarked line in text mode.
func (f *Formatter) Success(format string, args ...interface{}) {
	if f.mode == ModeJSON {
		return
	}
	f.Textln("%s %s", f.paint("✓", "2"), fmt.Sprintf(format, args...))
}

// Warn prints a warning line in text mode.
func (f *Formatter) Warn(format string, args ...interface{}) {
	if f.mode == ModeJSON {
		return
	}
	f.Textln("%s %s", f.paint("!", "3"), fmt.Sprintf(format, args...))
}

// Error prints an error line. In JSON mode it emits an error object instead.
func (f *Formatter) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if f.mode == ModeJSON {
		enc := json.NewEncoder(f.writer)
		_ = enc.Encode(map[string]string{"error": msg})
		return
	}
	f.Textln("%s %s", f.paint("✗", "1"), msg)
}

// Dim renders s in faint style when color is available.
func (f *Formatter) Dim(s string) string {
	if f.profile == termenv.Ascii {
		return s
	}
	return termenv.String(s).Faint().String()
}

// Bold renders s in bold when color is available.
func (f *Formatter) Bold(s string) string {
	if f.profile == termenv.Ascii {
		return s
	}
	return termenv.String(s).Bold().String()
}

func (f *Formatter) paint(s, ansiColor string) string {
	if f.profile == termenv.Ascii {
		return s
	}
	return termenv.String(s).Foreground(f.profile.Color(ansiColor)).String()
}

// TerminalWidth returns the width of the attached terminal, or fallback when
// the writer is not a terminal.
func TerminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}
