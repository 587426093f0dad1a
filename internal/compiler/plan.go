// Package compiler turns an authored dispatcher into a checked Plan.
//
// Normalize flattens grouped rules and dimensions into one ordered rule
// list and reports structural problems. Check resolves every type argument
// and pattern against the Go package, instantiates the operation for each
// rule and verifies that all instantiations share one call signature.
package compiler

import (
	"fmt"
	"go/types"
	"strings"

	"github.com/funvibe/specialize/internal/inspect"
	"github.com/funvibe/specialize/internal/table"
)

// ResultKind is the shape of the operation's results.
type ResultKind int

const (
	ResultNone       ResultKind = iota // func(...)
	ResultValue                        // func(...) R
	ResultValueError                   // func(...) (R, error)
)

// Plan is a normalized dispatcher. Fields below Op are set by Check.
type Plan struct {
	Name   string
	Doc    string
	Source string // table file the dispatcher was read from
	Line   int

	OpPkgPath string // empty for the table's own package
	OpName    string
	Arity     int

	Dims  []*Dim
	Rules []*Rule

	Op         *inspect.Operation
	Params     []types.Type
	Variadic   bool
	Result     ResultKind
	ResultType types.Type
}

// Dim is one selector parameter of the generated function.
type Dim struct {
	Name     string
	TypeExpr string
	Type     types.Type
}

// Step is the contribution of one dimension to a normalized rule.
type Step struct {
	Dim       int
	Entry     int // authored rule index within the dimension
	Candidate int // position within a grouped rule, -1 otherwise
	Pattern   table.Pattern
	TypeArgs  table.TypeTuple
	Cond      string // Go condition on the selector; empty matches everything
	Line      int
}

// Rule is one normalized rule: a step per dimension, tried in Index order.
type Rule struct {
	Index    int
	Steps    []Step
	TypeArgs []string
	Types    []types.Type

	// ShadowedBy is the index of an earlier rule that matches every
	// selector this rule matches, or -1.
	ShadowedBy int
	Reason     string
}

// Reachable reports whether some selector reaches this rule.
func (r *Rule) Reachable() bool { return r.ShadowedBy < 0 }

// Cond returns the rule's full condition. It is empty when every
// dimension is a wildcard.
func (r *Rule) Cond() string {
	var parts []string
	for _, s := range r.Steps {
		if s.Cond != "" {
			parts = append(parts, s.Cond)
		}
	}
	if len(parts) > 1 {
		for i, c := range parts {
			if topLevelOr(c) {
				parts[i] = "(" + c + ")"
			}
		}
	}
	return strings.Join(parts, " && ")
}

// Pattern renders the rule's patterns, one per dimension.
func (r *Rule) Pattern() string {
	if len(r.Steps) == 1 {
		return r.Steps[0].Pattern.String()
	}
	parts := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		parts[i] = s.Pattern.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// IsWildcard reports whether every dimension of the rule is a wildcard.
func (r *Rule) IsWildcard() bool {
	for _, s := range r.Steps {
		if !s.Pattern.IsWildcard() {
			return false
		}
	}
	return true
}

func (r *Rule) String() string {
	return fmt.Sprintf("#%d %s => [%s]", r.Index, r.Pattern(), strings.Join(r.TypeArgs, ", "))
}

// Reachable returns the rules that can match, in order.
func (p *Plan) Reachable() []*Rule {
	var out []*Rule
	for _, r := range p.Rules {
		if r.Reachable() {
			out = append(out, r)
		}
	}
	return out
}

func (p *Plan) where(s Step) string {
	at := fmt.Sprintf("%s:%d: %s ", p.Source, s.Line, p.Name)
	if len(p.Dims) > 1 {
		at += fmt.Sprintf("dimensions[%d].", s.Dim)
	}
	at += fmt.Sprintf("rules[%d]", s.Entry)
	if s.Candidate >= 0 {
		at += fmt.Sprintf(".candidates[%d]", s.Candidate)
	}
	return at
}

func (p *Plan) whereRule(r *Rule) string {
	if len(r.Steps) == 1 {
		return p.where(r.Steps[0])
	}
	return fmt.Sprintf("%s:%d: %s rule #%d", p.Source, r.Steps[0].Line, p.Name, r.Index)
}

func (p *Plan) whereDispatcher() string {
	return fmt.Sprintf("%s:%d: %s", p.Source, p.Line, p.Name)
}
