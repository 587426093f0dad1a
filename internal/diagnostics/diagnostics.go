// Package diagnostics collects generation-time errors and warnings.
//
// Every diagnostic names where it comes from (table file, dispatcher and
// rule) and, for rule problems, the constraint that was violated. Errors
// abort generation; warnings are reported and generation continues unless
// the caller runs in strict mode.
package diagnostics

import (
	"errors"
	"fmt"
	"strings"
)

// Severity of a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// Diagnostic is a single generation-time finding.
type Diagnostic struct {
	Severity Severity

	// Source locates the finding, e.g. "dispatch.yaml:12: EncodeBySize rules[2]".
	Source string

	// Rule is the normalized rule index, or -1 when the finding is not tied
	// to a single normalized rule.
	Rule int

	// Constraint is the violated constraint, e.g. "T comparable".
	Constraint string

	Message string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Source != "" {
		b.WriteString(d.Source)
		b.WriteString(": ")
	}
	b.WriteString(d.Severity.String())
	b.WriteString(": ")
	b.WriteString(d.Message)
	if d.Constraint != "" {
		b.WriteString(" (constraint: ")
		b.WriteString(d.Constraint)
		b.WriteString(")")
	}
	return b.String()
}

// List is an ordered collection of diagnostics.
type List []Diagnostic

// Errorf appends an error diagnostic.
func (l *List) Errorf(source string, rule int, constraint, format string, args ...any) {
	*l = append(*l, Diagnostic{
		Severity:   Error,
		Source:     source,
		Rule:       rule,
		Constraint: constraint,
		Message:    fmt.Sprintf(format, args...),
	})
}

// Warnf appends a warning diagnostic.
func (l *List) Warnf(source string, rule int, format string, args ...any) {
	*l = append(*l, Diagnostic{
		Severity: Warning,
		Source:   source,
		Rule:     rule,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Append adds other's diagnostics to l.
func (l *List) Append(other List) {
	*l = append(*l, other...)
}

// HasErrors reports whether any diagnostic is an error.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Errors returns the error diagnostics.
func (l List) Errors() List { return l.filter(Error) }

// Warnings returns the warning diagnostics.
func (l List) Warnings() List { return l.filter(Warning) }

func (l List) filter(s Severity) List {
	var out List
	for _, d := range l {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// Err returns an error describing every error diagnostic, or nil. With
// strict set, warnings count as errors.
func (l List) Err(strict bool) error {
	failing := l.Errors()
	if strict {
		failing = l
	}
	if len(failing) == 0 {
		return nil
	}
	return &GenerationError{Diagnostics: failing}
}

// GenerationError aborts generation.
type GenerationError struct {
	Diagnostics List
}

func (e *GenerationError) Error() string {
	if len(e.Diagnostics) == 1 {
		return e.Diagnostics[0].String()
	}
	lines := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		lines[i] = "  " + d.String()
	}
	return fmt.Sprintf("%d problems:\n%s", len(e.Diagnostics), strings.Join(lines, "\n"))
}

// AsList extracts the diagnostics carried by err, if any.
func AsList(err error) (List, bool) {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Diagnostics, true
	}
	return nil, false
}
