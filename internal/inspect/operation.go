package inspect

import (
	"errors"
	"fmt"
	"go/types"
	"strings"
)

// TypeParam describes one type parameter of an operation.
type TypeParam struct {
	Name       string
	Constraint string
	IsAny      bool
	Param      *types.TypeParam
}

// Operation is a generic function the dispatcher instantiates.
type Operation struct {
	Name       string
	Pkg        *types.Package
	Local      bool // declared in the table's own package
	Func       *types.Func
	Sig        *types.Signature
	TypeParams []TypeParam

	ctxt *types.Context
}

func newOperation(fn *types.Func, pkg *types.Package, local bool) (*Operation, error) {
	sig, ok := fn.Type().(*types.Signature)
	if !ok {
		return nil, fmt.Errorf("%s has no signature", fn.Name())
	}
	if sig.Recv() != nil {
		return nil, fmt.Errorf("%s is a method; operations must be package-level functions", fn.Name())
	}
	tparams := sig.TypeParams()
	if tparams.Len() == 0 {
		return nil, fmt.Errorf("function %s is not generic", fn.Name())
	}

	op := &Operation{
		Name:  fn.Name(),
		Pkg:   pkg,
		Local: local,
		Func:  fn,
		Sig:   sig,
		ctxt:  types.NewContext(),
	}
	qual := func(other *types.Package) string {
		if other == pkg {
			return ""
		}
		return other.Name()
	}
	for i := range tparams.Len() {
		tp := tparams.At(i)
		constraint := types.TypeString(tp.Constraint(), qual)
		op.TypeParams = append(op.TypeParams, TypeParam{
			Name:       tp.Obj().Name(),
			Constraint: constraint,
			IsAny:      constraint == "any" || constraint == "interface{}",
			Param:      tp,
		})
	}
	return op, nil
}

// Arity returns the number of type parameters.
func (op *Operation) Arity() int { return len(op.TypeParams) }

// String renders the operation with its type parameter list, e.g.
// "ops.Describe[T fmt.Stringer]".
func (op *Operation) String() string {
	parts := make([]string, len(op.TypeParams))
	for i, tp := range op.TypeParams {
		parts[i] = tp.Name + " " + tp.Constraint
	}
	name := op.Name
	if !op.Local {
		name = op.Pkg.Name() + "." + name
	}
	return name + "[" + strings.Join(parts, ", ") + "]"
}

// ConstraintError reports a type argument that does not satisfy its
// type parameter's constraint.
type ConstraintError struct {
	Index int
	Param TypeParam
	Arg   types.Type
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("type argument %s for %s does not satisfy %s: %v",
		e.Arg, e.Param.Name, e.Param.Constraint, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// Instance is an operation instantiated with concrete type arguments.
type Instance struct {
	TypeArgs []types.Type
	Sig      *types.Signature
}

// Params returns the instantiated parameter types. For a variadic
// operation the last element is the slice type.
func (in *Instance) Params() []types.Type {
	return tupleTypes(in.Sig.Params())
}

// Results returns the instantiated result types.
func (in *Instance) Results() []types.Type {
	return tupleTypes(in.Sig.Results())
}

// Variadic reports whether the operation's last parameter is variadic.
func (in *Instance) Variadic() bool { return in.Sig.Variadic() }

// Instantiate instantiates the operation with targs, validating
// constraints.
func (op *Operation) Instantiate(targs []types.Type) (*Instance, error) {
	if len(targs) != op.Arity() {
		return nil, fmt.Errorf("%s declares %d type parameter(s), got %d type argument(s)",
			op, op.Arity(), len(targs))
	}
	for i, t := range targs {
		if isGenericType(t) {
			return nil, fmt.Errorf("type argument %d of %s: %s is generic and needs its own type arguments", i, op.Name, t)
		}
	}
	inst, err := types.Instantiate(op.ctxt, op.Sig, targs, true)
	if err != nil {
		var argErr *types.ArgumentError
		if errors.As(err, &argErr) && argErr.Index >= 0 && argErr.Index < len(targs) {
			return nil, &ConstraintError{
				Index: argErr.Index,
				Param: op.TypeParams[argErr.Index],
				Arg:   targs[argErr.Index],
				Err:   argErr.Err,
			}
		}
		return nil, err
	}
	sig, ok := inst.(*types.Signature)
	if !ok {
		return nil, fmt.Errorf("instantiating %s produced %T", op.Name, inst)
	}
	return &Instance{TypeArgs: targs, Sig: sig}, nil
}

// isGenericType reports whether t names a generic type without type
// arguments, which is not a valid type argument.
func isGenericType(t types.Type) bool {
	n, ok := types.Unalias(t).(*types.Named)
	return ok && n.TypeParams().Len() > 0 && n.TypeArgs().Len() == 0
}

func tupleTypes(t *types.Tuple) []types.Type {
	out := make([]types.Type, t.Len())
	for i := range t.Len() {
		out[i] = t.At(i).Type()
	}
	return out
}
