package table

import (
	"fmt"
	"go/ast"
	"go/parser"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is a parsed dispatch table file.
type Config struct {
	// Package is the Go package name of the generated file. Defaults to the
	// name of the package loaded from the table's directory.
	Package string `yaml:"package,omitempty"`

	// Output is the generated file name, relative to the table file.
	// Defaults to "<table basename>_gen.go".
	Output string `yaml:"output,omitempty"`

	// Dispatchers lists the generated dispatch functions, in file order.
	Dispatchers []Dispatcher `yaml:"dispatchers"`

	// Path is the file the config was read from (not serialized).
	Path string `yaml:"-"`
}

// Dispatcher describes one generated dispatch function.
type Dispatcher struct {
	// Name is the generated Go function name (e.g. "EncodeBySize").
	Name string `yaml:"name"`

	// Operation names the generic function to instantiate. A bare name is
	// looked up in the table's package; "import/path.Func" selects a
	// function from another package.
	Operation string `yaml:"operation"`

	// Doc is an optional first line for the generated doc comment.
	Doc string `yaml:"doc,omitempty"`

	// Selector and Rules describe a single-dimension table.
	// Mutually exclusive with Dimensions.
	Selector *Selector `yaml:"selector,omitempty"`
	Rules    []Rule    `yaml:"rules,omitempty"`

	// Dimensions describe a multi-dimensional table. Rules of all
	// dimensions combine as an ordered cartesian product, first dimension
	// outermost, type arguments concatenated in dimension order.
	Dimensions []Dimension `yaml:"dimensions,omitempty"`

	// Line is the line of the dispatcher in the table file.
	Line int `yaml:"-"`
}

// Selector describes the runtime selector parameter of a dimension.
type Selector struct {
	// Type is a Go type expression evaluated in the table's package scope.
	Type string `yaml:"type"`

	// Name is the generated parameter name. Defaults to "sel" (or "selN"
	// for multi-dimensional dispatchers).
	Name string `yaml:"name,omitempty"`
}

// Dimension is one selector with its own rule list.
type Dimension struct {
	Selector Selector `yaml:"selector"`
	Rules    []Rule   `yaml:"rules"`
}

// Rule is one authored table row.
type Rule struct {
	// Match is the selector pattern.
	Match Pattern `yaml:"match"`

	// Type is shorthand for a one-element TypeArgs.
	Type string `yaml:"type,omitempty"`

	// TypeArgs is a single type argument tuple.
	TypeArgs TypeTuple `yaml:"type_args,omitempty"`

	// Candidates groups several tuples under one pattern. They expand to
	// one rule each, tried in the order given.
	Candidates []TypeTuple `yaml:"candidates,omitempty"`

	// Line is the line of the rule in the table file.
	Line int `yaml:"-"`
}

// Tuples returns the rule's type argument tuples in declaration order.
// A rule without type arguments yields nil.
func (r Rule) Tuples() []TypeTuple {
	switch {
	case r.Type != "":
		return []TypeTuple{{r.Type}}
	case len(r.TypeArgs) > 0:
		return []TypeTuple{r.TypeArgs}
	default:
		return r.Candidates
	}
}

func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	type plain Rule
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = Rule(p)
	r.Line = node.Line
	return nil
}

func (d *Dispatcher) UnmarshalYAML(node *yaml.Node) error {
	type plain Dispatcher
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*d = Dispatcher(p)
	d.Line = node.Line
	return nil
}

// Dims returns the dispatcher's dimensions. A single-dimension dispatcher
// yields one Dimension built from Selector and Rules.
func (d *Dispatcher) Dims() []Dimension {
	if d.Selector != nil {
		return []Dimension{{Selector: *d.Selector, Rules: d.Rules}}
	}
	return d.Dimensions
}

// OperationRef splits Operation into an import path and a function name.
// pkgPath is empty for operations in the table's own package.
func (d *Dispatcher) OperationRef() (pkgPath, name string) {
	op := strings.TrimSpace(d.Operation)
	slash := strings.LastIndex(op, "/")
	dot := strings.LastIndex(op, ".")
	if dot > slash {
		return op[:dot], op[dot+1:]
	}
	return "", op
}

// Qualifiers returns the sorted package names that qualify identifiers in
// the dispatcher's selector types, type arguments and patterns. A field
// selection on a package-level value also counts. Expressions that do not
// parse are skipped.
func (d *Dispatcher) Qualifiers() []string {
	seen := map[string]bool{}
	visit := func(expr string) {
		e, err := parser.ParseExpr(expr)
		if err != nil {
			return
		}
		ast.Inspect(e, func(n ast.Node) bool {
			if sel, ok := n.(*ast.SelectorExpr); ok {
				if id, ok := sel.X.(*ast.Ident); ok {
					seen[id.Name] = true
				}
			}
			return true
		})
	}
	for _, dim := range d.Dims() {
		visit(dim.Selector.Type)
		for _, r := range dim.Rules {
			for _, e := range r.Match.Exprs() {
				visit(e)
			}
			for _, tuple := range r.Tuples() {
				for _, t := range tuple {
					visit(t)
				}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeTuple is an ordered list of Go type expressions. In YAML it is
// either a sequence or a single scalar.
type TypeTuple []string

func (t *TypeTuple) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = TypeTuple{strings.TrimSpace(node.Value)}
		return nil
	case yaml.SequenceNode:
		out := make(TypeTuple, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: type argument must be a scalar type expression", item.Line)
			}
			out = append(out, strings.TrimSpace(item.Value))
		}
		*t = out
		return nil
	default:
		return fmt.Errorf("line %d: type arguments must be a type or a list of types", node.Line)
	}
}

func (t TypeTuple) String() string {
	return strings.Join(t, ", ")
}

// PatternKind categorizes an authored pattern.
type PatternKind int

const (
	PatternNone     PatternKind = iota // match key absent
	PatternExpr                        // Go expression compared with ==
	PatternWildcard                    // _
	PatternAnyOf                       // list of expressions
	PatternFields                      // struct sub-field patterns
)

// Pattern is an authored selector pattern.
//
//	match: ClassSmall              # PatternExpr
//	match: _                       # PatternWildcard
//	match: [ClassSmall, ClassTiny] # PatternAnyOf
//	match: {Kind: KindA, Major: _} # PatternFields
type Pattern struct {
	Kind   PatternKind
	Expr   string
	AnyOf  []string
	Fields []FieldPattern
	Line   int
}

// FieldPattern tests one named field of a struct selector.
type FieldPattern struct {
	Name    string
	Pattern Pattern
}

// IsWildcard reports whether the pattern matches every selector.
func (p Pattern) IsWildcard() bool {
	switch p.Kind {
	case PatternWildcard:
		return true
	case PatternFields:
		for _, f := range p.Fields {
			if !f.Pattern.IsWildcard() {
				return false
			}
		}
		return true
	}
	return false
}

// Exprs returns the Go expressions the pattern compares against, field
// patterns included.
func (p Pattern) Exprs() []string {
	switch p.Kind {
	case PatternExpr:
		return []string{p.Expr}
	case PatternAnyOf:
		return p.AnyOf
	case PatternFields:
		var out []string
		for _, f := range p.Fields {
			out = append(out, f.Pattern.Exprs()...)
		}
		return out
	}
	return nil
}

func (p Pattern) String() string {
	switch p.Kind {
	case PatternExpr:
		return p.Expr
	case PatternWildcard:
		return "_"
	case PatternAnyOf:
		return strings.Join(p.AnyOf, " | ")
	case PatternFields:
		parts := make([]string, len(p.Fields))
		for i, f := range p.Fields {
			parts[i] = f.Name + ": " + f.Pattern.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "<none>"
}

func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	p.Line = node.Line
	switch node.Kind {
	case yaml.ScalarNode:
		v := strings.TrimSpace(node.Value)
		switch v {
		case "":
			return fmt.Errorf("line %d: empty pattern", node.Line)
		case "_":
			p.Kind = PatternWildcard
		default:
			p.Kind, p.Expr = PatternExpr, v
		}
		return nil

	case yaml.SequenceNode:
		if len(node.Content) == 0 {
			return fmt.Errorf("line %d: empty pattern list", node.Line)
		}
		p.Kind = PatternAnyOf
		for _, item := range node.Content {
			v := strings.TrimSpace(item.Value)
			if item.Kind != yaml.ScalarNode || v == "" || v == "_" {
				return fmt.Errorf("line %d: pattern list entries must be expressions", item.Line)
			}
			p.AnyOf = append(p.AnyOf, v)
		}
		return nil

	case yaml.MappingNode:
		if len(node.Content) == 0 {
			return fmt.Errorf("line %d: empty field pattern", node.Line)
		}
		p.Kind = PatternFields
		seen := make(map[string]bool)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			name := strings.TrimSpace(key.Value)
			if key.Kind != yaml.ScalarNode || !isIdentifier(name) {
				return fmt.Errorf("line %d: field name %q is not a Go identifier", key.Line, key.Value)
			}
			if seen[name] {
				return fmt.Errorf("line %d: field %q matched twice", key.Line, name)
			}
			seen[name] = true
			var sub Pattern
			if err := sub.UnmarshalYAML(value); err != nil {
				return err
			}
			p.Fields = append(p.Fields, FieldPattern{Name: name, Pattern: sub})
		}
		return nil
	}
	return fmt.Errorf("line %d: unsupported pattern", node.Line)
}
