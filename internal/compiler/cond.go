package compiler

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/funvibe/specialize/internal/table"
)

// condition renders p as a Go boolean expression over base. Wildcards
// render as "".
func condition(p table.Pattern, base string) (string, error) {
	switch p.Kind {
	case table.PatternWildcard:
		return "", nil

	case table.PatternExpr:
		return compare(base, p.Expr)

	case table.PatternAnyOf:
		parts := make([]string, len(p.AnyOf))
		for i, e := range p.AnyOf {
			c, err := compare(base, e)
			if err != nil {
				return "", err
			}
			parts[i] = c
		}
		return strings.Join(parts, " || "), nil

	case table.PatternFields:
		var parts []string
		for _, f := range p.Fields {
			c, err := condition(f.Pattern, base+"."+f.Name)
			if err != nil {
				return "", err
			}
			if c == "" {
				continue
			}
			if topLevelOr(c) && len(p.Fields) > 1 {
				c = "(" + c + ")"
			}
			parts = append(parts, c)
		}
		return strings.Join(parts, " && "), nil
	}
	return "", fmt.Errorf("missing match pattern")
}

func compare(base, expr string) (string, error) {
	e, err := parser.ParseExpr(expr)
	if err != nil {
		return "", fmt.Errorf("pattern %q is not a Go expression: %w", expr, err)
	}
	if b, ok := e.(*ast.BinaryExpr); ok && b.Op.Precedence() <= token.EQL.Precedence() {
		expr = "(" + expr + ")"
	}
	return base + " == " + expr, nil
}

// topLevelOr reports whether cond has a || outside parentheses.
func topLevelOr(cond string) bool {
	depth := 0
	for i := 0; i < len(cond); i++ {
		switch c := cond[i]; c {
		case '"', '`', '\'':
			for i++; i < len(cond) && cond[i] != c; i++ {
				if cond[i] == '\\' && c != '`' {
					i++
				}
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '|':
			if depth == 0 && i+1 < len(cond) && cond[i+1] == '|' {
				return true
			}
		}
	}
	return false
}
