// Package ui provides terminal output for the swarmmem CLI: a styled
// message writer and renderers for query results, documents, and store
// health. Color is disabled automatically when stdout is not a TTY or
// NO_COLOR is set.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Writer prints styled status messages to a CLI stream.
type Writer struct {
	out    io.Writer
	styles Styles
}

// NewWriter creates a Writer. Color is suppressed when noColor is true.
func NewWriter(out io.Writer, noColor bool) *Writer {
	return &Writer{out: out, styles: GetStyles(noColor)}
}

// Write errors are ignored throughout; there is no recovery for a
// broken console stream.

// Success prints an accented confirmation line.
func (w *Writer) Success(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s\n", w.styles.Success.Render(msg))
}

// Successf prints a formatted confirmation line.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning line.
func (w *Writer) Warning(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s\n", w.styles.Warning.Render("warning: "+msg))
}

// Warningf prints a formatted warning line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error line.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s\n", w.styles.Error.Render("error: "+msg))
}

// Plain prints an unstyled line.
func (w *Writer) Plain(msg string) {
	_, _ = fmt.Fprintln(w.out, msg)
}

// Plainf prints a formatted unstyled line.
func (w *Writer) Plainf(format string, args ...any) {
	w.Plain(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// IsTTY reports whether the writer is attached to a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor reports whether color output should be suppressed,
// honoring the NO_COLOR convention and non-terminal stdout.
func DetectNoColor(out io.Writer) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return true
	}
	return !IsTTY(out)
}
