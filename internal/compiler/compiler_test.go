package compiler

import (
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"

	"github.com/funvibe/specialize/internal/diagnostics"
	"github.com/funvibe/specialize/internal/inspect"
	"github.com/funvibe/specialize/internal/inspect/inspecttest"
	"github.com/funvibe/specialize/internal/table"
)

const shapesSrc = `package shapes

type Class int

const (
	ClassSmall Class = iota
	ClassMedium
	ClassLarge
	ClassHuge
)

type Key struct {
	Kind    int
	Version int
}

type Sized interface{ Size() int }

type Small struct{}

func (Small) Size() int { return 1 }

type Large struct{}

func (Large) Size() int { return 100 }

type Plain struct{}

func Encode[T Sized](buf []byte, n int) string {
	var t T
	_ = t.Size()
	return ""
}

func Pair[A Sized, B any](x int) (int, error) { return x, nil }

func Echo[T any](x T) T { return x }

func Many[T any]() (int, int, int) { return 0, 0, 0 }

func Touch[T any](xs ...int) {}

func Label[T any]() string { return "" }
`

func dispatcher(t *testing.T, src string) *table.Dispatcher {
	t.Helper()
	cfg, err := table.ParseConfig([]byte(src), "dispatch.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &cfg.Dispatchers[0]
}

func inspector(t *testing.T) *inspect.Inspector {
	t.Helper()
	dir := filepath.FromSlash("/work/shapes")
	pkg := inspecttest.Package(t, dir, "example.com/shapes", map[string]string{"shapes.go": shapesSrc})
	ins := inspect.New(dir, &inspecttest.Loader{Pkgs: []*packages.Package{pkg}})
	if err := ins.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return ins
}

// compile normalizes and checks the first dispatcher of src.
func compile(t *testing.T, src string) (*Plan, diagnostics.List) {
	t.Helper()
	ins := inspector(t)
	d := dispatcher(t, src)
	_, name := d.OperationRef()
	op, err := ins.Operation("", name)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plan, diags := Normalize("dispatch.yaml", d, op.Arity())
	if diags.HasErrors() {
		return plan, diags
	}
	diags.Append(Check(plan, op, ins))
	return plan, diags
}

func messages(l diagnostics.List) string {
	var b strings.Builder
	for _, d := range l {
		b.WriteString(d.String())
		b.WriteString("\n")
	}
	return b.String()
}

func TestNormalizeSingleDimension(t *testing.T) {
	d := dispatcher(t, `
dispatchers:
  - name: EncodeBySize
    operation: Encode
    selector: {type: Class}
    rules:
      - match: ClassSmall
        type: Small
      - match: [ClassMedium, ClassLarge]
        type_args: [Large]
      - match: ClassHuge
        candidates: [[Small], [Large]]
      - match: _
        type: Small
`)
	plan, diags := Normalize("dispatch.yaml", d, 1)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors:\n%s", messages(diags))
	}

	tests := []struct {
		cond      string
		typeArgs  string
		candidate int
		reachable bool
	}{
		{"sel == ClassSmall", "Small", -1, true},
		{"sel == ClassMedium || sel == ClassLarge", "Large", -1, true},
		{"sel == ClassHuge", "Small", 0, true},
		{"sel == ClassHuge", "Large", 1, false},
		{"", "Small", -1, true},
	}
	if len(plan.Rules) != len(tests) {
		t.Fatalf("got %d rules, want %d", len(plan.Rules), len(tests))
	}
	for i, tt := range tests {
		r := plan.Rules[i]
		if r.Index != i {
			t.Errorf("rule %d has index %d", i, r.Index)
		}
		if got := r.Cond(); got != tt.cond {
			t.Errorf("rule %d cond = %q, want %q", i, got, tt.cond)
		}
		if got := strings.Join(r.TypeArgs, ", "); got != tt.typeArgs {
			t.Errorf("rule %d type args = %q, want %q", i, got, tt.typeArgs)
		}
		if r.Steps[0].Candidate != tt.candidate {
			t.Errorf("rule %d candidate = %d, want %d", i, r.Steps[0].Candidate, tt.candidate)
		}
		if r.Reachable() != tt.reachable {
			t.Errorf("rule %d reachable = %v, want %v", i, r.Reachable(), tt.reachable)
		}
	}

	warnings := diags.Warnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "later candidate in the same group") {
		t.Errorf("warnings = %s", messages(warnings))
	}
	if warnings[0].Rule != 3 {
		t.Errorf("warning names rule %d, want 3", warnings[0].Rule)
	}
	if len(plan.Reachable()) != 4 {
		t.Errorf("reachable rules = %d, want 4", len(plan.Reachable()))
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	src := `
dispatchers:
  - name: F
    operation: Encode
    selector: {type: Class}
    rules:
      - {match: ClassSmall, candidates: [[Small], [Large]]}
      - {match: _, type: Large}
`
	a, _ := Normalize("dispatch.yaml", dispatcher(t, src), 1)
	b, _ := Normalize("dispatch.yaml", dispatcher(t, src), 1)
	if len(a.Rules) != len(b.Rules) {
		t.Fatalf("rule counts differ: %d vs %d", len(a.Rules), len(b.Rules))
	}
	for i := range a.Rules {
		if a.Rules[i].String() != b.Rules[i].String() {
			t.Errorf("rule %d differs: %s vs %s", i, a.Rules[i], b.Rules[i])
		}
	}
}

func TestNormalizeWarnings(t *testing.T) {
	tests := []struct {
		name   string
		rules  string
		rule   int
		reason string
	}{
		{
			name: "duplicate",
			rules: `
      - {match: ClassSmall, type: Small}
      - {match: ClassSmall, type: Large}`,
			rule:   1,
			reason: "duplicate pattern",
		},
		{
			name: "after wildcard",
			rules: `
      - {match: _, type: Small}
      - {match: ClassLarge, type: Large}`,
			rule:   1,
			reason: "follows the wildcard",
		},
		{
			name: "covered by any_of",
			rules: `
      - {match: [ClassSmall, ClassLarge], type: Small}
      - {match: ClassLarge, type: Large}`,
			rule:   1,
			reason: "covered by the pattern",
		},
		{
			name: "field wildcards ignored",
			rules: `
      - {match: {Kind: 1, Version: _}, type: Small}
      - {match: {Kind: 1}, type: Large}`,
			rule:   1,
			reason: "duplicate pattern",
		},
		{
			name: "whitespace ignored",
			rules: `
      - {match: "ClassSmall+1", type: Small}
      - {match: "ClassSmall + 1", type: Large}`,
			rule:   1,
			reason: "duplicate pattern",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := dispatcher(t, `
dispatchers:
  - name: F
    operation: Encode
    selector: {type: Class}
    rules:`+tt.rules+"\n")
			plan, diags := Normalize("dispatch.yaml", d, 1)
			if diags.HasErrors() {
				t.Fatalf("unexpected errors:\n%s", messages(diags))
			}
			w := diags.Warnings()
			if len(w) != 1 {
				t.Fatalf("expected one warning, got:\n%s", messages(w))
			}
			if w[0].Rule != tt.rule || !strings.Contains(w[0].Message, tt.reason) {
				t.Errorf("warning = %s, want rule %d %q", w[0], tt.rule, tt.reason)
			}
			if plan.Rules[tt.rule].Reachable() {
				t.Errorf("rule %d should be unreachable", tt.rule)
			}
		})
	}
}

func TestNormalizeNoWarningForDistinctPatterns(t *testing.T) {
	d := dispatcher(t, `
dispatchers:
  - name: F
    operation: Encode
    selector: {type: Class}
    rules:
      - {match: ClassSmall, type: Small}
      - {match: [ClassSmall, ClassLarge], type: Large}
      - {match: {Kind: 1}, type: Large}
      - {match: {Kind: 2, Version: 2}, type: Large}
`)
	_, diags := Normalize("dispatch.yaml", d, 1)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics:\n%s", messages(diags))
	}
}

func TestStringLiteralsKeepInnerWhitespace(t *testing.T) {
	plan, diags := compile(t, `
dispatchers:
  - name: F
    operation: Encode
    selector: {type: string}
    rules:
      - {match: '"a b"', type: Small}
      - {match: '"ab"', type: Large}
`)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics:\n%s", messages(diags))
	}
	if got := len(plan.Reachable()); got != 2 {
		t.Errorf("expected 2 reachable rules, got %d", got)
	}
}

func TestTextKey(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{"ClassSmall+1", "ClassSmall + 1", true},
		{"pkg.Kind", "pkg . Kind", true},
		{`"a b"`, `"ab"`, false},
		{"' '", "'\t'", false},
		{"a+ +b", "a++b", false},
	}
	for _, tt := range tests {
		if got := textKey(tt.a) == textKey(tt.b); got != tt.same {
			t.Errorf("textKey(%q) == textKey(%q) is %v, want %v", tt.a, tt.b, got, tt.same)
		}
	}
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name       string
		rules      string
		arity      int
		want       string
		constraint string
	}{
		{
			name:       "missing type args",
			rules:      `[{match: ClassSmall}]`,
			arity:      1,
			want:       "rules[0]: error: missing type argument list",
			constraint: "Encode takes 1 type argument(s)",
		},
		{
			name:  "missing match",
			rules: `[{type: Small}]`,
			arity: 1,
			want:  "missing match pattern",
		},
		{
			name:       "too many type args",
			rules:      `[{match: ClassSmall, type: Small}, {match: ClassLarge, type_args: [Small, int]}]`,
			arity:      1,
			want:       "rules[1]: error: arity mismatch: rule supplies 2 type argument(s) [Small, int]",
			constraint: "Encode takes 1 type argument(s)",
		},
		{
			name:  "bad candidate",
			rules: `[{match: ClassSmall, candidates: [[Small], [Small, Large]]}]`,
			arity: 1,
			want:  "rules[0].candidates[1]: error: arity mismatch",
		},
		{
			name:  "invalid expression",
			rules: `[{match: "Class(", type: Small}]`,
			arity: 1,
			want:  "is not a Go expression",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := dispatcher(t, `
dispatchers:
  - name: F
    operation: Encode
    selector: {type: Class}
    rules: `+tt.rules+"\n")
			plan, diags := Normalize("dispatch.yaml", d, tt.arity)
			errs := diags.Errors()
			if len(errs) != 1 {
				t.Fatalf("expected one error, got:\n%s", messages(diags))
			}
			if !strings.Contains(errs[0].String(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", errs[0], tt.want)
			}
			if !strings.HasPrefix(errs[0].Source, "dispatch.yaml:") {
				t.Errorf("source %q should name the table file and line", errs[0].Source)
			}
			if tt.constraint != "" && errs[0].Constraint != tt.constraint {
				t.Errorf("constraint = %q, want %q", errs[0].Constraint, tt.constraint)
			}
			if len(plan.Rules) != 0 {
				t.Errorf("a failed table must not produce rules, got %d", len(plan.Rules))
			}
		})
	}
}

func TestNormalizeDimensions(t *testing.T) {
	d := dispatcher(t, `
dispatchers:
  - name: PairBy
    operation: Pair
    dimensions:
      - selector: {type: Class}
        rules:
          - {match: [ClassSmall, ClassMedium], type: Small}
          - {match: _, type: Large}
      - selector: {type: int, name: n}
        rules:
          - {match: 1, type: int}
          - {match: _, type: string}
`)
	plan, diags := Normalize("dispatch.yaml", d, 2)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics:\n%s", messages(diags))
	}

	want := []struct {
		cond, typeArgs string
	}{
		{"(sel0 == ClassSmall || sel0 == ClassMedium) && n == 1", "Small, int"},
		{"sel0 == ClassSmall || sel0 == ClassMedium", "Small, string"},
		{"n == 1", "Large, int"},
		{"", "Large, string"},
	}
	if len(plan.Rules) != len(want) {
		t.Fatalf("got %d rules, want %d", len(plan.Rules), len(want))
	}
	for i, w := range want {
		r := plan.Rules[i]
		if got := r.Cond(); got != w.cond {
			t.Errorf("rule %d cond = %q, want %q", i, got, w.cond)
		}
		if got := strings.Join(r.TypeArgs, ", "); got != w.typeArgs {
			t.Errorf("rule %d type args = %q, want %q", i, got, w.typeArgs)
		}
	}
	if got := plan.Rules[1].Pattern(); got != "(ClassSmall | ClassMedium, _)" {
		t.Errorf("pattern = %q", got)
	}
	if plan.Dims[0].Name != "sel0" || plan.Dims[1].Name != "n" {
		t.Errorf("dimension names = %s, %s", plan.Dims[0].Name, plan.Dims[1].Name)
	}
}

func TestNormalizeDimensionArity(t *testing.T) {
	tests := []struct {
		name  string
		rules string
		want  string
	}{
		{
			name:  "inconsistent within dimension",
			rules: `[{match: 1, type: int}, {match: _, type_args: [int, int]}]`,
			want:  "dimensions[1].rules[1]: error: arity mismatch",
		},
		{
			name:  "total differs",
			rules: `[{match: 1, type_args: [int, int]}]`,
			want:  "dimensions supply 3 type argument(s), Pair declares 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := dispatcher(t, `
dispatchers:
  - name: PairBy
    operation: Pair
    dimensions:
      - selector: {type: Class}
        rules: [{match: _, type: Small}]
      - selector: {type: int}
        rules: `+tt.rules+"\n")
			_, diags := Normalize("dispatch.yaml", d, 2)
			if !diags.HasErrors() || !strings.Contains(messages(diags), tt.want) {
				t.Fatalf("expected error containing %q, got:\n%s", tt.want, messages(diags))
			}
		})
	}
}

func TestCondition(t *testing.T) {
	tests := []struct {
		pattern table.Pattern
		want    string
	}{
		{table.Pattern{Kind: table.PatternWildcard}, ""},
		{table.Pattern{Kind: table.PatternExpr, Expr: "ClassSmall"}, "s == ClassSmall"},
		{table.Pattern{Kind: table.PatternExpr, Expr: "a && b"}, "s == (a && b)"},
		{table.Pattern{Kind: table.PatternExpr, Expr: "1 << 3"}, "s == 1 << 3"},
		{table.Pattern{Kind: table.PatternAnyOf, AnyOf: []string{"1", "2"}}, "s == 1 || s == 2"},
		{
			table.Pattern{Kind: table.PatternFields, Fields: []table.FieldPattern{
				{Name: "Kind", Pattern: table.Pattern{Kind: table.PatternExpr, Expr: "1"}},
				{Name: "Version", Pattern: table.Pattern{Kind: table.PatternAnyOf, AnyOf: []string{"2", "3"}}},
				{Name: "Extra", Pattern: table.Pattern{Kind: table.PatternWildcard}},
			}},
			"s.Kind == 1 && (s.Version == 2 || s.Version == 3)",
		},
		{
			table.Pattern{Kind: table.PatternFields, Fields: []table.FieldPattern{
				{Name: "Inner", Pattern: table.Pattern{Kind: table.PatternFields, Fields: []table.FieldPattern{
					{Name: "ID", Pattern: table.Pattern{Kind: table.PatternExpr, Expr: `"x||y"`}},
				}}},
			}},
			`s.Inner.ID == "x||y"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.pattern.String(), func(t *testing.T) {
			got, err := condition(tt.pattern, "s")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("condition = %q, want %q", got, tt.want)
			}
		})
	}

	if topLevelOr(`s == "a||b"`) {
		t.Error("|| inside a string literal is not an operator")
	}
	if topLevelOr("(a || b) && c") {
		t.Error("parenthesized || is not top level")
	}
}

func TestCheckResolvesSignature(t *testing.T) {
	plan, diags := compile(t, `
dispatchers:
  - name: EncodeBySize
    operation: Encode
    selector: {type: Class}
    rules:
      - {match: ClassSmall, type: Small}
      - {match: [ClassMedium, ClassLarge], type: Large}
`)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics:\n%s", messages(diags))
	}
	if len(plan.Params) != 2 || plan.Params[0].String() != "[]byte" || plan.Params[1].String() != "int" {
		t.Errorf("params = %v", plan.Params)
	}
	if plan.Result != ResultValue || plan.ResultType.String() != "string" {
		t.Errorf("result = %v %v", plan.Result, plan.ResultType)
	}
	if plan.Dims[0].Type.String() != "example.com/shapes.Class" {
		t.Errorf("selector type = %v", plan.Dims[0].Type)
	}
	if len(plan.Rules[1].Types) != 1 || plan.Rules[1].Types[0].String() != "example.com/shapes.Large" {
		t.Errorf("rule 1 types = %v", plan.Rules[1].Types)
	}
}

func TestCheckResultShapes(t *testing.T) {
	tests := []struct {
		op       string
		result   ResultKind
		variadic bool
		err      string
	}{
		{op: "Pair", result: ResultValueError},
		{op: "Touch", result: ResultNone, variadic: true},
		{op: "Label", result: ResultValue},
		{op: "Many", err: "dispatchers support no result, one result, or (result, error)"},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			targs := "[Small]"
			if tt.op == "Pair" {
				targs = "[Small, int]"
			}
			plan, diags := compile(t, `
dispatchers:
  - name: F
    operation: `+tt.op+`
    selector: {type: Class}
    rules:
      - {match: ClassSmall, type_args: `+targs+`}
`)
			if tt.err != "" {
				if !strings.Contains(messages(diags.Errors()), tt.err) {
					t.Fatalf("expected error %q, got:\n%s", tt.err, messages(diags))
				}
				return
			}
			if len(diags) != 0 {
				t.Fatalf("unexpected diagnostics:\n%s", messages(diags))
			}
			if plan.Result != tt.result || plan.Variadic != tt.variadic {
				t.Errorf("result = %v variadic = %v, want %v %v", plan.Result, plan.Variadic, tt.result, tt.variadic)
			}
		})
	}
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name       string
		op         string
		selector   string
		rules      string
		want       string
		rule       int
		constraint string
	}{
		{
			name:       "constraint violation",
			op:         "Encode",
			selector:   "Class",
			rules:      `[{match: ClassSmall, type: Small}, {match: ClassLarge, type: Plain}]`,
			want:       "rule #1: type argument Plain does not satisfy the constraint of T",
			rule:       1,
			constraint: "T Sized",
		},
		{
			name:     "unknown type",
			op:       "Encode",
			selector: "Class",
			rules:    `[{match: ClassSmall, type: Missing}]`,
			want:     "type argument Missing",
			rule:     0,
		},
		{
			name:     "pattern of wrong type",
			op:       "Encode",
			selector: "Class",
			rules:    `[{match: '"small"', type: Small}]`,
			want:     `pattern "small" does not apply to selector sel Class`,
			rule:     0,
		},
		{
			name:     "unknown field",
			op:       "Encode",
			selector: "Key",
			rules:    `[{match: {Nope: 1}, type: Small}]`,
			want:     "does not apply to selector sel Key",
			rule:     0,
		},
		{
			name:       "non-uniform signature",
			op:         "Echo",
			selector:   "Class",
			rules:      `[{match: ClassSmall, type: int}, {match: ClassLarge, type: string}]`,
			want:       "rule #1: instantiation changes the call signature: parameter 0 is string, expected int",
			rule:       1,
			constraint: "signature of rule #0",
		},
		{
			name:     "selector shadows operation",
			op:       "Encode",
			selector: "Class, name: Encode",
			rules:    `[{match: ClassSmall, type: Small}]`,
			want:     "selector name Encode shadows Encode used by the operation",
			rule:     -1,
		},
		{
			name:     "selector shadows pattern constant",
			op:       "Encode",
			selector: "Class, name: ClassSmall",
			rules:    `[{match: [ClassLarge, ClassSmall], type: Small}]`,
			want:     "selector name ClassSmall shadows ClassSmall used by pattern ClassSmall",
			rule:     -1,
		},
		{
			name:     "selector shadows type argument",
			op:       "Encode",
			selector: "Class, name: Small",
			rules:    `[{match: ClassSmall, type: Small}]`,
			want:     "selector name Small shadows Small used by type argument Small",
			rule:     -1,
		},
		{
			name:     "selector shadows result type",
			op:       "Label",
			selector: "Class, name: string",
			rules:    `[{match: ClassSmall, type: Small}]`,
			want:     "selector name string shadows string used by the result type",
			rule:     -1,
		},
		{
			name:     "bad selector type",
			op:       "Encode",
			selector: "Klass",
			rules:    `[{match: _, type: Small}]`,
			want:     "selector sel",
			rule:     -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := compile(t, `
dispatchers:
  - name: F
    operation: `+tt.op+`
    selector: {type: `+tt.selector+`}
    rules: `+tt.rules+"\n")
			errs := diags.Errors()
			if len(errs) != 1 {
				t.Fatalf("expected one error, got:\n%s", messages(diags))
			}
			if !strings.Contains(errs[0].Message, tt.want) {
				t.Errorf("error = %q, want it to contain %q", errs[0].Message, tt.want)
			}
			if errs[0].Rule != tt.rule {
				t.Errorf("error names rule %d, want %d", errs[0].Rule, tt.rule)
			}
			if tt.constraint != "" && errs[0].Constraint != tt.constraint {
				t.Errorf("constraint = %q, want %q", errs[0].Constraint, tt.constraint)
			}
		})
	}
}

func TestSelectorNameMayMatchFieldKey(t *testing.T) {
	_, diags := compile(t, `
dispatchers:
  - name: F
    operation: Encode
    selector: {type: Key, name: Kind}
    rules:
      - {match: 'Key{Kind: 1, Version: 2}', type: Small}
      - {match: {Version: 3}, type: Large}
`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors:\n%s", messages(diags))
	}
}

func TestCheckReportsUnknownTypeOnce(t *testing.T) {
	_, diags := compile(t, `
dispatchers:
  - name: F
    operation: Encode
    selector: {type: Class}
    rules:
      - {match: ClassSmall, type: Missing}
      - {match: ClassLarge, type: Missing}
`)
	if n := len(diags.Errors()); n != 1 {
		t.Fatalf("expected one error, got %d:\n%s", n, messages(diags))
	}
}

func TestCheckConstantDuplicates(t *testing.T) {
	plan, diags := compile(t, `
dispatchers:
  - name: F
    operation: Encode
    selector: {type: Class}
    rules:
      - {match: ClassSmall, type: Small}
      - {match: 0, type: Large}
`)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors:\n%s", messages(diags))
	}
	w := diags.Warnings()
	if len(w) != 1 || !strings.Contains(w[0].Message, "duplicate pattern") {
		t.Fatalf("expected duplicate warning, got:\n%s", messages(diags))
	}
	if plan.Rules[1].Reachable() {
		t.Error("rule 1 compares the same constant and should be unreachable")
	}
}

func TestCheckDimensions(t *testing.T) {
	plan, diags := compile(t, `
dispatchers:
  - name: PairBy
    operation: Pair
    dimensions:
      - selector: {type: Class}
        rules:
          - {match: ClassSmall, type: Small}
          - {match: _, type: Large}
      - selector: {type: Key, name: key}
        rules:
          - {match: {Kind: 1}, type: int}
          - {match: _, type: string}
`)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics:\n%s", messages(diags))
	}
	if len(plan.Rules) != 4 || plan.Result != ResultValueError {
		t.Fatalf("rules = %d result = %v", len(plan.Rules), plan.Result)
	}
	if got := plan.Rules[0].Cond(); got != "sel0 == ClassSmall && key.Kind == 1" {
		t.Errorf("cond = %q", got)
	}
}

func TestCheckEmptyDispatcher(t *testing.T) {
	plan, diags := compile(t, `
dispatchers:
  - name: F
    operation: Label
    selector: {type: Class}
    rules: []
`)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics:\n%s", messages(diags))
	}
	if plan.Result != ResultValue || plan.ResultType.String() != "string" {
		t.Errorf("result = %v %v", plan.Result, plan.ResultType)
	}

	_, diags = compile(t, `
dispatchers:
  - name: F
    operation: Echo
    selector: {type: Class}
    rules: []
`)
	if !strings.Contains(messages(diags.Errors()), "depends on its type parameters") {
		t.Fatalf("expected signature error, got:\n%s", messages(diags))
	}
}
