package compiler

import (
	"errors"
	"fmt"

	"github.com/funvibe/specialize/internal/diagnostics"
	"github.com/funvibe/specialize/internal/table"
)

// Normalize flattens d into an ordered rule list for an operation with
// arity type parameters. path names the table file in diagnostics.
//
// Grouped rules expand to one rule per candidate, in the order written.
// Dimensions combine as a cartesian product with the first dimension
// outermost and type arguments concatenated in dimension order. Rules that
// can never match are kept, marked, and reported as warnings.
func Normalize(path string, d *table.Dispatcher, arity int) (*Plan, diagnostics.List) {
	var diags diagnostics.List
	pkgPath, name := d.OperationRef()
	plan := &Plan{
		Name:      d.Name,
		Doc:       d.Doc,
		Source:    path,
		Line:      d.Line,
		OpPkgPath: pkgPath,
		OpName:    name,
		Arity:     arity,
	}

	dims := d.Dims()
	steps := make([][]Step, len(dims))
	for k, dim := range dims {
		plan.Dims = append(plan.Dims, &Dim{Name: dim.Selector.Name, TypeExpr: dim.Selector.Type})
		steps[k] = plan.flatten(k, dim, &diags)
	}

	if len(dims) == 1 {
		for _, s := range steps[0] {
			if len(s.TypeArgs) != arity {
				diags.Errorf(plan.where(s), -1, plan.arityConstraint(),
					"%v: rule supplies %d type argument(s) [%s], %s declares %d",
					errArity, len(s.TypeArgs), s.TypeArgs, plan.OpName, arity)
			}
		}
	} else {
		plan.checkDimArity(steps, &diags)
	}
	if diags.HasErrors() {
		return plan, diags
	}

	for _, combo := range product(steps) {
		r := &Rule{Index: len(plan.Rules), Steps: combo, ShadowedBy: -1}
		for _, s := range combo {
			r.TypeArgs = append(r.TypeArgs, s.TypeArgs...)
		}
		plan.Rules = append(plan.Rules, r)
	}

	for _, r := range markShadowed(plan.Rules, textKey) {
		diags.Warnf(plan.whereRule(r), r.Index, "rule #%d (%s) is unreachable: %s of rule #%d",
			r.Index, r.Pattern(), r.Reason, r.ShadowedBy)
	}
	return plan, diags
}

var (
	errMissing = errors.New("missing type argument list")
	errArity   = errors.New("arity mismatch")
)

// flatten expands the authored rules of one dimension into steps.
func (p *Plan) flatten(k int, dim table.Dimension, diags *diagnostics.List) []Step {
	var out []Step
	for j, r := range dim.Rules {
		base := Step{Dim: k, Entry: j, Candidate: -1, Pattern: r.Match, Line: r.Line}

		cond, err := condition(r.Match, dim.Selector.Name)
		if err != nil {
			diags.Errorf(p.where(base), -1, "", "%v", err)
			continue
		}
		base.Cond = cond

		tuples := r.Tuples()
		if len(tuples) == 0 {
			diags.Errorf(p.where(base), -1, p.arityConstraint(), "%v for pattern %s", errMissing, r.Match)
			continue
		}
		for c, tuple := range tuples {
			s := base
			s.TypeArgs = tuple
			if len(r.Candidates) > 0 {
				s.Candidate = c
			}
			if len(tuple) == 0 {
				diags.Errorf(p.where(s), -1, p.arityConstraint(), "%v for pattern %s", errMissing, r.Match)
				continue
			}
			out = append(out, s)
		}
	}
	return out
}

// checkDimArity requires each dimension to supply a fixed number of type
// arguments and the dimensions together to supply arity of them.
func (p *Plan) checkDimArity(steps [][]Step, diags *diagnostics.List) {
	total := 0
	for _, dimSteps := range steps {
		if len(dimSteps) == 0 {
			continue
		}
		want := len(dimSteps[0].TypeArgs)
		for _, s := range dimSteps[1:] {
			if len(s.TypeArgs) != want {
				diags.Errorf(p.where(s), -1, fmt.Sprintf("dimension %d supplies %d type argument(s)", s.Dim, want),
					"%v: rule supplies %d type argument(s) [%s]", errArity, len(s.TypeArgs), s.TypeArgs)
			}
		}
		total += want
	}
	if diags.HasErrors() {
		return
	}
	for _, dimSteps := range steps {
		if len(dimSteps) == 0 {
			return
		}
	}
	if total != p.Arity {
		diags.Errorf(p.where(steps[0][0]), -1, p.arityConstraint(),
			"%v: dimensions supply %d type argument(s), %s declares %d", errArity, total, p.OpName, p.Arity)
	}
}

func (p *Plan) arityConstraint() string {
	return fmt.Sprintf("%s takes %d type argument(s)", p.OpName, p.Arity)
}

// product returns the ordered cartesian product of steps, first dimension
// outermost. Any empty dimension yields no combinations.
func product(steps [][]Step) [][]Step {
	if len(steps) == 0 {
		return nil
	}
	out := [][]Step{nil}
	for _, dimSteps := range steps {
		next := make([][]Step, 0, len(out)*len(dimSteps))
		for _, prefix := range out {
			for _, s := range dimSteps {
				combo := make([]Step, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, s))
			}
		}
		out = next
	}
	return out
}
