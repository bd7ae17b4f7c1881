// Package paint applies gookit/color styles only when output goes to a
// terminal. Files, pipes and buffers receive plain text.
package paint

import (
	"fmt"
	"io"
	"os"

	"github.com/gookit/color"
	"github.com/mattn/go-isatty"
)

// Style is any gookit/color style, theme or basic color.
type Style interface {
	Sprint(a ...any) string
}

// Common styles.
var (
	Bold    Style = color.Bold
	Success Style = color.Success
	Warn    Style = color.Warn
	Danger  Style = color.Danger
)

// Painter renders styled text for one writer.
type Painter struct {
	on bool
}

// For returns a Painter for w. Styling is enabled only when w is an *os.File
// attached to a terminal.
func For(w io.Writer) Painter {
	f, ok := w.(*os.File)
	if !ok {
		return Painter{}
	}
	fd := f.Fd()
	return Painter{on: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

// Enabled reports whether the painter emits escape sequences.
func (p Painter) Enabled() bool {
	return p.on
}

// Sprint formats a and applies s when enabled.
func (p Painter) Sprint(s Style, a ...any) string {
	if !p.on {
		return fmt.Sprint(a...)
	}
	return s.Sprint(a...)
}

// Sprintf formats according to format and applies s when enabled.
func (p Painter) Sprintf(s Style, format string, a ...any) string {
	return p.Sprint(s, fmt.Sprintf(format, a...))
}
