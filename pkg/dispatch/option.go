package dispatch

import "fmt"

// Option is the outcome of a dispatch: Present with the invoked
// instantiation's result, or Absent when no rule matched.
//
// Absent is an ordinary value, not an error.
type Option[R any] struct {
	value R
	ok    bool
}

// Present wraps the result of a matched and invoked rule.
func Present[R any](v R) Option[R] {
	return Option[R]{value: v, ok: true}
}

// Absent reports that the table was exhausted without a match.
func Absent[R any]() Option[R] {
	return Option[R]{}
}

// Get returns the result and whether a rule matched.
func (o Option[R]) Get() (R, bool) {
	return o.value, o.ok
}

// IsPresent reports whether a rule matched.
func (o Option[R]) IsPresent() bool { return o.ok }

// IsAbsent reports whether no rule matched.
func (o Option[R]) IsAbsent() bool { return !o.ok }

// OrElse returns the result, or def when Absent.
func (o Option[R]) OrElse(def R) R {
	if o.ok {
		return o.value
	}
	return def
}

// OrElseGet returns the result, or calls fallback when Absent.
// fallback is not called on Present.
func (o Option[R]) OrElseGet(fallback func() R) R {
	if o.ok {
		return o.value
	}
	return fallback()
}

func (o Option[R]) String() string {
	if !o.ok {
		return "Absent"
	}
	return fmt.Sprintf("Present(%v)", o.value)
}
