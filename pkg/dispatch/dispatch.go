package dispatch

// Table is a normalized, immutable rule table. It may be shared by any
// number of goroutines without synchronization.
type Table[S, A, R any] struct {
	template Template
	rules    []Rule[S, A, R]
	warnings []Warning
}

// Template returns the operation the table instantiates.
func (t *Table[S, A, R]) Template() Template {
	if t == nil {
		return Template{}
	}
	return Template{Name: t.template.Name, Params: append([]string(nil), t.template.Params...)}
}

// Len returns the number of normalized rules.
func (t *Table[S, A, R]) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Rules returns a copy of the normalized rules in match order.
func (t *Table[S, A, R]) Rules() []Rule[S, A, R] {
	if t == nil {
		return nil
	}
	return append([]Rule[S, A, R](nil), t.rules...)
}

// Warnings returns the unreachable-rule warnings found by Normalize.
func (t *Table[S, A, R]) Warnings() []Warning {
	if t == nil {
		return nil
	}
	return append([]Warning(nil), t.warnings...)
}

// Resolve returns the first rule whose pattern matches sel without
// invoking it.
func (t *Table[S, A, R]) Resolve(sel S) (Rule[S, A, R], bool) {
	if t == nil {
		return Rule[S, A, R]{}, false
	}
	for i := range t.rules {
		if t.rules[i].Pattern.match(sel) {
			return t.rules[i], true
		}
	}
	return Rule[S, A, R]{}, false
}

// Dispatch invokes the first rule whose pattern matches sel with the value
// produced by args. args is called at most once, and never when no rule
// matches.
func (t *Table[S, A, R]) Dispatch(sel S, args func() A) Option[R] {
	if t == nil {
		return Absent[R]()
	}
	for i := range t.rules {
		r := &t.rules[i]
		if !r.Pattern.match(sel) {
			continue
		}
		var a A
		if args != nil {
			a = args()
		}
		return Present(r.Instance.Call(a))
	}
	return Absent[R]()
}

// Dispatch is the function form of Table.Dispatch.
func Dispatch[S, A, R any](t *Table[S, A, R], args func() A, sel S) Option[R] {
	return t.Dispatch(sel, args)
}

// Args wraps an already computed argument value as a thunk.
func Args[A any](a A) func() A {
	return func() A { return a }
}
