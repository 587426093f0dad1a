package diagnostics

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBold   = "\x1b[1m"
	ansiReset  = "\x1b[0m"
)

// ColorMode selects when Render uses ANSI colours.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// UseColor resolves mode for w. In auto mode colour is used only when w
// is a terminal and NO_COLOR is unset.
func UseColor(mode ColorMode, w io.Writer) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Render writes one line per diagnostic.
func Render(w io.Writer, l List, color bool) error {
	for _, d := range l {
		if _, err := fmt.Fprintln(w, format(d, color)); err != nil {
			return err
		}
	}
	return nil
}

func format(d Diagnostic, color bool) string {
	if !color {
		return d.String()
	}
	sev := ansiRed + ansiBold + d.Severity.String() + ansiReset
	if d.Severity == Warning {
		sev = ansiYellow + ansiBold + d.Severity.String() + ansiReset
	}
	line := sev + ": " + d.Message
	if d.Source != "" {
		line = ansiBold + d.Source + ansiReset + ": " + line
	}
	if d.Constraint != "" {
		line += " (constraint: " + d.Constraint + ")"
	}
	return line
}
