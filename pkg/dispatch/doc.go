// Package dispatch selects and invokes one instantiation of a generic
// operation from a value known only at runtime.
//
// A table is an ordered list of rules. Each rule pairs a selector pattern
// with an instantiation of the operation, written by the caller as an
// ordinary Go generic instantiation such as Encode[Small]. The Go compiler
// resolves and checks every instantiation, so nothing is discovered by
// reflection at dispatch time.
//
// Dispatch walks the rules in declaration order and invokes the first
// rule whose pattern matches. The argument thunk is evaluated only inside
// that invocation; when no rule matches the result is Absent and the thunk
// is never called.
//
//	tbl := dispatch.MustNormalize(dispatch.Template{Name: "Encode", Params: []string{"T"}},
//		dispatch.When(dispatch.Eq(ClassSmall), dispatch.Inst(encode[Small], "Small")),
//		dispatch.When(dispatch.Any[Class](), dispatch.Inst(encode[Large], "Large")),
//	)
//	out := tbl.Dispatch(class, func() Payload { return load() })
//
// The specialize command generates the same match chain as plain Go source
// for call sites that want no indirect call at all; generated code returns
// the Option type defined here.
package dispatch
