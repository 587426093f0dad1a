package compiler

import (
	"go/scanner"
	"go/token"
	"slices"
	"sort"
	"strings"

	"github.com/funvibe/specialize/internal/table"
)

// keyFunc canonicalizes a pattern expression for comparison.
type keyFunc func(expr string) string

// textKey joins the tokens of expr with single spaces. Literal contents
// are kept as written; an expression that does not scan is compared as is.
func textKey(expr string) string {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(expr))
	var s scanner.Scanner
	failed := false
	s.Init(file, []byte(expr), func(token.Position, string) { failed = true }, 0)

	var toks []string
	for {
		_, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		switch {
		case tok == token.SEMICOLON && lit == "\n":
		case lit != "":
			toks = append(toks, lit)
		default:
			toks = append(toks, tok.String())
		}
	}
	if failed {
		return strings.TrimSpace(expr)
	}
	return strings.Join(toks, " ")
}

// markShadowed marks each reachable rule that an earlier reachable rule
// covers and returns the newly marked rules.
func markShadowed(rules []*Rule, key keyFunc) []*Rule {
	var marked []*Rule
	for i, r := range rules {
		if !r.Reachable() {
			continue
		}
		for _, q := range rules[:i] {
			if !q.Reachable() || !covers(q, r, key) {
				continue
			}
			r.ShadowedBy = q.Index
			r.Reason = reason(q, r, key)
			marked = append(marked, r)
			break
		}
	}
	return marked
}

func covers(q, r *Rule, key keyFunc) bool {
	for d := range q.Steps {
		qk, qw := dimKeys(q.Steps[d].Pattern, key)
		if qw {
			continue
		}
		rk, rw := dimKeys(r.Steps[d].Pattern, key)
		if rw || len(rk) == 0 {
			return false
		}
		for _, k := range rk {
			if !slices.Contains(qk, k) {
				return false
			}
		}
	}
	return true
}

func reason(q, r *Rule, key keyFunc) string {
	same := true
	for d := range q.Steps {
		if q.Steps[d].Entry != r.Steps[d].Entry {
			same = false
		}
	}
	switch {
	case same:
		return "later candidate in the same group"
	case q.IsWildcard():
		return "follows the wildcard"
	}
	for d := range q.Steps {
		qk, _ := dimKeys(q.Steps[d].Pattern, key)
		rk, _ := dimKeys(r.Steps[d].Pattern, key)
		if !slices.Equal(qk, rk) {
			return "covered by the pattern"
		}
	}
	return "duplicate pattern"
}

// dimKeys returns the sorted keys of the selector values p matches, or
// wildcard when p matches every value.
func dimKeys(p table.Pattern, key keyFunc) (keys []string, wildcard bool) {
	if p.IsWildcard() {
		return nil, true
	}
	switch p.Kind {
	case table.PatternExpr:
		return []string{key(p.Expr)}, false
	case table.PatternAnyOf:
		for _, e := range p.AnyOf {
			keys = append(keys, key(e))
		}
		sort.Strings(keys)
		return slices.Compact(keys), false
	case table.PatternFields:
		return []string{fieldKey(p, key)}, false
	}
	return nil, false
}

func fieldKey(p table.Pattern, key keyFunc) string {
	switch p.Kind {
	case table.PatternWildcard:
		return "_"
	case table.PatternExpr:
		return key(p.Expr)
	case table.PatternAnyOf:
		keys, _ := dimKeys(p, key)
		return "(" + strings.Join(keys, "|") + ")"
	case table.PatternFields:
		var parts []string
		for _, f := range p.Fields {
			if !f.Pattern.IsWildcard() {
				parts = append(parts, f.Name+":"+fieldKey(f.Pattern, key))
			}
		}
		sort.Strings(parts)
		return "{" + strings.Join(parts, ",") + "}"
	}
	return ""
}
