package compiler

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/types"
	"strings"

	"github.com/funvibe/specialize/internal/diagnostics"
	"github.com/funvibe/specialize/internal/inspect"
)

// Resolver evaluates Go expressions in the scope of the table's package.
// *inspect.Inspector implements it.
type Resolver interface {
	EvalType(expr string) (types.Type, error)
	EvalValue(expr string) (types.TypeAndValue, error)
}

// Check resolves the selector types, patterns and type arguments of plan,
// instantiates op once per rule and fills in the call signature shared by
// every instantiation.
func Check(plan *Plan, op *inspect.Operation, res Resolver) diagnostics.List {
	var diags diagnostics.List
	plan.Op = op
	if op.Arity() != plan.Arity {
		diags.Errorf(plan.whereDispatcher(), -1, op.String(),
			"plan built for %d type parameter(s), operation declares %d", plan.Arity, op.Arity())
		return diags
	}

	dimsOK := true
	for _, dim := range plan.Dims {
		t, err := res.EvalType(dim.TypeExpr)
		if err != nil {
			diags.Errorf(plan.whereDispatcher(), -1, "", "selector %s: %v", dim.Name, err)
			dimsOK = false
			continue
		}
		dim.Type = t
	}
	if dimsOK {
		plan.checkPatterns(res, &diags)
		plan.refineShadowing(res, &diags)
	}
	plan.checkInstances(op, res, &diags)
	plan.checkNames(&diags)
	return diags
}

// checkNames rejects selector names that would shadow an identifier the
// generated function body refers to.
func (p *Plan) checkNames(diags *diagnostics.List) {
	used := make(map[string]string)
	if p.OpPkgPath == "" {
		used[p.OpName] = "the operation"
	}
	for _, r := range p.Rules {
		for _, s := range r.Steps {
			for _, e := range s.Pattern.Exprs() {
				collectIdents(e, "pattern "+e, used)
			}
		}
		for _, e := range r.TypeArgs {
			collectIdents(e, "type argument "+e, used)
		}
	}
	if p.ResultType != nil {
		unqualified := func(*types.Package) string { return "" }
		collectIdents(types.TypeString(p.ResultType, unqualified), "the result type", used)
	}
	for _, dim := range p.Dims {
		if what, ok := used[dim.Name]; ok {
			diags.Errorf(p.whereDispatcher(), -1, "",
				"selector name %s shadows %s used by %s", dim.Name, dim.Name, what)
		}
	}
}

// collectIdents records the unqualified identifiers of expr. Selected
// names and struct literal keys are skipped.
func collectIdents(expr, what string, into map[string]string) {
	e, err := parser.ParseExpr(expr)
	if err != nil {
		return
	}
	var visit func(n ast.Node) bool
	visit = func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.SelectorExpr:
			ast.Inspect(n.X, visit)
			return false
		case *ast.KeyValueExpr:
			if _, ok := n.Key.(*ast.Ident); !ok {
				ast.Inspect(n.Key, visit)
			}
			ast.Inspect(n.Value, visit)
			return false
		case *ast.Ident:
			if _, ok := into[n.Name]; !ok && n.Name != "_" {
				into[n.Name] = what
			}
		}
		return true
	}
	ast.Inspect(e, visit)
}

// checkPatterns type-checks each distinct step condition as the body of a
// function over the selector.
func (p *Plan) checkPatterns(res Resolver, diags *diagnostics.List) {
	seen := make(map[string]bool)
	for _, r := range p.Rules {
		for _, s := range r.Steps {
			if s.Cond == "" {
				continue
			}
			key := fmt.Sprintf("%d\x00%s", s.Dim, s.Cond)
			if seen[key] {
				continue
			}
			seen[key] = true

			dim := p.Dims[s.Dim]
			lit := fmt.Sprintf("func(%s %s) bool { return %s }", dim.Name, dim.TypeExpr, s.Cond)
			if _, err := res.EvalValue(lit); err != nil {
				diags.Errorf(p.where(s), p.ruleIndex(r), "",
					"pattern %s does not apply to selector %s %s: %v", s.Pattern, dim.Name, dim.TypeExpr, err)
			}
		}
	}
}

// refineShadowing repeats the reachability analysis comparing constant
// patterns by value, so that ClassSmall and 0 are seen as one pattern.
func (p *Plan) refineShadowing(res Resolver, diags *diagnostics.List) {
	keys := make(map[string]string)
	constKey := func(expr string) string {
		if k, ok := keys[expr]; ok {
			return k
		}
		k := textKey(expr)
		if tv, err := res.EvalValue(expr); err == nil && tv.Value != nil {
			k = "const:" + tv.Value.ExactString()
		}
		keys[expr] = k
		return k
	}
	for _, r := range markShadowed(p.Rules, constKey) {
		diags.Warnf(p.whereRule(r), r.Index, "rule #%d (%s) is unreachable: %s of rule #%d",
			r.Index, r.Pattern(), r.Reason, r.ShadowedBy)
	}
}

func (p *Plan) checkInstances(op *inspect.Operation, res Resolver, diags *diagnostics.List) {
	resolved := make(map[string]types.Type)
	failed := make(map[string]bool)
	evalType := func(r *Rule, expr string) types.Type {
		if t, ok := resolved[expr]; ok {
			return t
		}
		if failed[expr] {
			return nil
		}
		t, err := res.EvalType(expr)
		if err != nil {
			failed[expr] = true
			diags.Errorf(p.whereRule(r), r.Index, "", "rule #%d: type argument %s: %v", r.Index, expr, err)
			return nil
		}
		resolved[expr] = t
		return t
	}

	var ref *inspect.Instance
	refIndex := -1
	for _, r := range p.Rules {
		targs := make([]types.Type, len(r.TypeArgs))
		ok := true
		for i, expr := range r.TypeArgs {
			if targs[i] = evalType(r, expr); targs[i] == nil {
				ok = false
			}
		}
		if !ok {
			continue
		}
		r.Types = targs

		inst, err := op.Instantiate(targs)
		if err != nil {
			var cerr *inspect.ConstraintError
			if errors.As(err, &cerr) {
				diags.Errorf(p.whereRule(r), r.Index, cerr.Param.Name+" "+cerr.Param.Constraint,
					"rule #%d: type argument %s does not satisfy the constraint of %s: %v",
					r.Index, r.TypeArgs[cerr.Index], cerr.Param.Name, cerr.Err)
			} else {
				diags.Errorf(p.whereRule(r), r.Index, "", "rule #%d: %v", r.Index, err)
			}
			continue
		}

		if ref == nil {
			ref, refIndex = inst, r.Index
			continue
		}
		if msg := signatureDiff(ref, inst); msg != "" {
			diags.Errorf(p.whereRule(r), r.Index, fmt.Sprintf("signature of rule #%d", refIndex),
				"rule #%d: instantiation changes the call signature: %s", r.Index, msg)
		}
	}

	switch {
	case ref != nil:
		p.setSignature(ref.Params(), ref.Results(), ref.Variadic(), diags)
	case len(p.Rules) == 0:
		params, results := tupleTypes(op.Sig.Params()), tupleTypes(op.Sig.Results())
		for _, t := range append(params, results...) {
			if hasTypeParam(t) {
				diags.Errorf(p.whereDispatcher(), -1, op.String(),
					"no rules to instantiate %s with, and its signature depends on its type parameters", op.Name)
				return
			}
		}
		p.setSignature(params, results, op.Sig.Variadic(), diags)
	}
}

func (p *Plan) setSignature(params, results []types.Type, variadic bool, diags *diagnostics.List) {
	p.Params = params
	p.Variadic = variadic
	switch {
	case len(results) == 0:
		p.Result = ResultNone
	case len(results) == 1:
		p.Result, p.ResultType = ResultValue, results[0]
	case len(results) == 2 && isError(results[1]):
		p.Result, p.ResultType = ResultValueError, results[0]
	default:
		names := make([]string, len(results))
		for i, t := range results {
			names[i] = t.String()
		}
		diags.Errorf(p.whereDispatcher(), -1, "",
			"%s returns (%s); dispatchers support no result, one result, or (result, error)",
			p.OpName, strings.Join(names, ", "))
	}
}

func (p *Plan) ruleIndex(r *Rule) int {
	if len(p.Dims) == 1 {
		return r.Index
	}
	return -1
}

func signatureDiff(ref, inst *inspect.Instance) string {
	a, b := ref.Params(), inst.Params()
	for i := range a {
		if !types.Identical(a[i], b[i]) {
			return fmt.Sprintf("parameter %d is %s, expected %s", i, b[i], a[i])
		}
	}
	a, b = ref.Results(), inst.Results()
	for i := range a {
		if !types.Identical(a[i], b[i]) {
			return fmt.Sprintf("result %d is %s, expected %s", i, b[i], a[i])
		}
	}
	return ""
}

var errorType = types.Universe.Lookup("error").Type()

func isError(t types.Type) bool { return types.Identical(t, errorType) }

func tupleTypes(t *types.Tuple) []types.Type {
	out := make([]types.Type, t.Len())
	for i := range t.Len() {
		out[i] = t.At(i).Type()
	}
	return out
}

// hasTypeParam reports whether t mentions a type parameter.
func hasTypeParam(t types.Type) bool {
	switch t := t.(type) {
	case *types.TypeParam:
		return true
	case *types.Pointer:
		return hasTypeParam(t.Elem())
	case *types.Slice:
		return hasTypeParam(t.Elem())
	case *types.Array:
		return hasTypeParam(t.Elem())
	case *types.Chan:
		return hasTypeParam(t.Elem())
	case *types.Map:
		return hasTypeParam(t.Key()) || hasTypeParam(t.Elem())
	case *types.Signature:
		for _, x := range append(tupleTypes(t.Params()), tupleTypes(t.Results())...) {
			if hasTypeParam(x) {
				return true
			}
		}
	case *types.Struct:
		for i := range t.NumFields() {
			if hasTypeParam(t.Field(i).Type()) {
				return true
			}
		}
	case *types.Named:
		for i := range t.TypeArgs().Len() {
			if hasTypeParam(t.TypeArgs().At(i)) {
				return true
			}
		}
	}
	return false
}
