package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingTypeArgs is returned for a rule that names no type arguments.
	ErrMissingTypeArgs = errors.New("missing type arguments")

	// ErrArityMismatch is returned for a rule whose type argument count
	// differs from the template's parameter count.
	ErrArityMismatch = errors.New("type argument arity mismatch")

	// ErrUnresolved is returned for a rule without an instantiated call.
	ErrUnresolved = errors.New("unresolved instantiation")

	// ErrInvalidPattern is returned for a zero or malformed pattern.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// Template describes the generic operation every rule instantiates.
type Template struct {
	// Name is the operation name, e.g. "Encode".
	Name string

	// Params are the declared type parameter names, e.g. ["K", "V"].
	// Every rule must supply exactly len(Params) type arguments.
	Params []string
}

// Arity returns the number of declared type parameters.
func (t Template) Arity() int { return len(t.Params) }

func (t Template) instName(typeArgs []string) string {
	return t.Name + "[" + strings.Join(typeArgs, ", ") + "]"
}

// Instance is one instantiation of the template: the type argument names
// and the instantiated function, e.g. Inst(encode[Small], "Small").
type Instance[A, R any] struct {
	TypeArgs []string
	Call     func(A) R
}

// Inst builds an Instance. typeArgs label the instantiation for arity
// checks and diagnostics; the Go compiler already checked that call exists.
func Inst[A, R any](call func(A) R, typeArgs ...string) Instance[A, R] {
	return Instance[A, R]{TypeArgs: typeArgs, Call: call}
}

// Entry is an authored table row. An entry with several instances is a
// group: it expands to one rule per instance, all guarded by Pattern, in
// the order given.
type Entry[S, A, R any] struct {
	Pattern   Pattern[S]
	Instances []Instance[A, R]
}

// When builds an Entry.
func When[S, A, R any](p Pattern[S], insts ...Instance[A, R]) Entry[S, A, R] {
	return Entry[S, A, R]{Pattern: p, Instances: insts}
}

// Rule is one row of a normalized table.
type Rule[S, A, R any] struct {
	// Index is the position in match order.
	Index int
	// Entry is the index of the authored entry the rule came from.
	Entry int
	// Position is the index within the entry's group.
	Position int

	Pattern  Pattern[S]
	Instance Instance[A, R]

	name string
}

// Name returns the instantiation, e.g. "Encode[Small]".
func (r Rule[S, A, R]) Name() string { return r.name }

func (r Rule[S, A, R]) String() string {
	return fmt.Sprintf("#%d %s => %s", r.Index, r.Pattern, r.name)
}

// RuleError identifies an authored rule that cannot be normalized.
type RuleError struct {
	Entry int
	// Position is the index within the entry's group, or -1 when the
	// entry as a whole is at fault.
	Position   int
	Pattern    string
	Constraint string
	Err        error
}

func (e *RuleError) Error() string {
	where := fmt.Sprintf("entry %d", e.Entry)
	if e.Position >= 0 {
		where += fmt.Sprintf(" instance %d", e.Position)
	}
	return fmt.Sprintf("%s (%s): %v: %s", where, e.Pattern, e.Err, e.Constraint)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Warning reports a rule that can never be selected.
type Warning struct {
	Rule       int
	ShadowedBy int
	Pattern    string
	Reason     string
}

func (w Warning) String() string {
	return fmt.Sprintf("rule #%d (%s) is unreachable: %s (rule #%d)", w.Rule, w.Pattern, w.Reason, w.ShadowedBy)
}

// Normalize validates entries against tmpl and flattens them into an
// immutable Table, keeping entry order and the order inside each group.
// All rule errors are reported together.
func Normalize[S, A, R any](tmpl Template, entries ...Entry[S, A, R]) (*Table[S, A, R], error) {
	if tmpl.Arity() == 0 {
		return nil, fmt.Errorf("template %q: no type parameters declared", tmpl.Name)
	}

	var errs []error
	rules := make([]Rule[S, A, R], 0, len(entries))
	for i, entry := range entries {
		if !entry.Pattern.valid() {
			errs = append(errs, &RuleError{
				Entry:      i,
				Position:   -1,
				Pattern:    entry.Pattern.String(),
				Constraint: "pattern must be built with Eq, Any, OneOf, Field, All or Where",
				Err:        ErrInvalidPattern,
			})
			continue
		}
		if len(entry.Instances) == 0 {
			errs = append(errs, &RuleError{
				Entry:      i,
				Position:   -1,
				Pattern:    entry.Pattern.String(),
				Constraint: "entry must list at least one instantiation",
				Err:        ErrMissingTypeArgs,
			})
			continue
		}
		for j, inst := range entry.Instances {
			if err := checkInstance(tmpl, inst); err != nil {
				err.Entry, err.Position, err.Pattern = i, j, entry.Pattern.String()
				errs = append(errs, err)
				continue
			}
			rules = append(rules, Rule[S, A, R]{
				Index:    len(rules),
				Entry:    i,
				Position: j,
				Pattern:  entry.Pattern,
				Instance: Instance[A, R]{
					TypeArgs: append([]string(nil), inst.TypeArgs...),
					Call:     inst.Call,
				},
				name: tmpl.instName(inst.TypeArgs),
			})
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("normalize %s: %w", tmpl.Name, errors.Join(errs...))
	}

	return &Table[S, A, R]{
		template: Template{Name: tmpl.Name, Params: append([]string(nil), tmpl.Params...)},
		rules:    rules,
		warnings: unreachable(rules),
	}, nil
}

// MustNormalize is like Normalize but panics on error. It is meant for
// package-level tables whose contents are fixed in source.
func MustNormalize[S, A, R any](tmpl Template, entries ...Entry[S, A, R]) *Table[S, A, R] {
	t, err := Normalize(tmpl, entries...)
	if err != nil {
		panic(err)
	}
	return t
}

func checkInstance[A, R any](tmpl Template, inst Instance[A, R]) *RuleError {
	switch {
	case len(inst.TypeArgs) == 0:
		return &RuleError{
			Constraint: fmt.Sprintf("%s requires %d type argument(s)", tmpl.Name, tmpl.Arity()),
			Err:        ErrMissingTypeArgs,
		}
	case len(inst.TypeArgs) != tmpl.Arity():
		return &RuleError{
			Constraint: fmt.Sprintf("%s[%s] declares %d type parameter(s), rule supplies %d",
				tmpl.Name, strings.Join(tmpl.Params, ", "), tmpl.Arity(), len(inst.TypeArgs)),
			Err: ErrArityMismatch,
		}
	case inst.Call == nil:
		return &RuleError{
			Constraint: fmt.Sprintf("%s has no instantiated call", tmpl.instName(inst.TypeArgs)),
			Err:        ErrUnresolved,
		}
	}
	return nil
}

// unreachable flags rules that repeat an earlier pattern or follow a
// wildcard.
func unreachable[S, A, R any](rules []Rule[S, A, R]) []Warning {
	var warnings []Warning
	seen := make(map[string]int, len(rules))
	wildcard := -1
	for _, r := range rules {
		key := r.Pattern.Key()
		switch prev, dup := seen[key]; {
		case dup && rules[prev].Entry == r.Entry:
			warnings = append(warnings, Warning{Rule: r.Index, ShadowedBy: prev, Pattern: r.Pattern.String(),
				Reason: "later candidate in the same group"})
		case dup:
			warnings = append(warnings, Warning{Rule: r.Index, ShadowedBy: prev, Pattern: r.Pattern.String(),
				Reason: "duplicate pattern"})
		case wildcard >= 0:
			warnings = append(warnings, Warning{Rule: r.Index, ShadowedBy: wildcard, Pattern: r.Pattern.String(),
				Reason: "follows a wildcard"})
		default:
			seen[key] = r.Index
		}
		if wildcard < 0 && r.Pattern.IsWildcard() {
			wildcard = r.Index
		}
	}
	return warnings
}
