package dispatch

import (
	"fmt"
	"sort"
	"strings"
)

// Pattern tests a selector value. Patterns are built with Eq, Any, OneOf,
// Field, All and Where; the zero Pattern is invalid and rejected by
// Normalize.
//
// Two patterns with the same key match exactly the same selectors. The key
// is used at normalization time to flag rules that can never be reached.
type Pattern[S any] struct {
	desc     string
	key      string
	wildcard bool
	match    func(S) bool
}

// Eq matches selectors equal to v.
func Eq[S comparable](v S) Pattern[S] {
	return Pattern[S]{
		desc:  fmt.Sprintf("%v", v),
		key:   "eq:" + fmt.Sprintf("%#v", v),
		match: func(s S) bool { return s == v },
	}
}

// Any matches every selector.
func Any[S any]() Pattern[S] {
	return Pattern[S]{
		desc:     "_",
		key:      "_",
		wildcard: true,
		match:    func(S) bool { return true },
	}
}

// OneOf matches selectors equal to any of vs. An empty OneOf matches
// nothing.
func OneOf[S comparable](vs ...S) Pattern[S] {
	if len(vs) == 1 {
		return Eq(vs[0])
	}
	set := make(map[S]struct{}, len(vs))
	descs := make([]string, 0, len(vs))
	keys := make([]string, 0, len(vs))
	for _, v := range vs {
		if _, dup := set[v]; dup {
			continue
		}
		set[v] = struct{}{}
		descs = append(descs, fmt.Sprintf("%v", v))
		keys = append(keys, fmt.Sprintf("%#v", v))
	}
	sort.Strings(keys)
	return Pattern[S]{
		desc: strings.Join(descs, " | "),
		key:  "oneof:" + strings.Join(keys, ","),
		match: func(s S) bool {
			_, ok := set[s]
			return ok
		},
	}
}

// Field matches when the sub-field extracted by get satisfies p. name is
// used for diagnostics and duplicate detection only.
//
// The bound value is never used to choose type arguments.
func Field[S, F any](name string, get func(S) F, p Pattern[F]) Pattern[S] {
	if get == nil || p.match == nil {
		return Pattern[S]{}
	}
	inner := p.match
	return Pattern[S]{
		desc:     fmt.Sprintf("{%s: %s}", name, p.desc),
		key:      name + "=" + p.key,
		wildcard: p.wildcard,
		match:    func(s S) bool { return inner(get(s)) },
	}
}

// All matches when every pattern in ps matches. All() is a wildcard.
func All[S any](ps ...Pattern[S]) Pattern[S] {
	if len(ps) == 0 {
		return Any[S]()
	}
	if len(ps) == 1 {
		return ps[0]
	}
	descs := make([]string, len(ps))
	keys := make([]string, len(ps))
	matchers := make([]func(S) bool, len(ps))
	wildcard := true
	for i, p := range ps {
		if p.match == nil {
			return Pattern[S]{}
		}
		descs[i] = p.desc
		keys[i] = p.key
		matchers[i] = p.match
		wildcard = wildcard && p.wildcard
	}
	return Pattern[S]{
		desc:     strings.Join(descs, " && "),
		key:      "all(" + strings.Join(keys, "&") + ")",
		wildcard: wildcard,
		match: func(s S) bool {
			for _, m := range matchers {
				if !m(s) {
					return false
				}
			}
			return true
		},
	}
}

// Where matches selectors for which fn returns true. desc identifies the
// predicate; two Where patterns with the same desc are treated as
// duplicates.
func Where[S any](desc string, fn func(S) bool) Pattern[S] {
	if fn == nil {
		return Pattern[S]{}
	}
	return Pattern[S]{
		desc:  desc,
		key:   "where:" + desc,
		match: fn,
	}
}

// Matches reports whether s satisfies the pattern.
func (p Pattern[S]) Matches(s S) bool {
	return p.match != nil && p.match(s)
}

// IsWildcard reports whether the pattern matches every selector.
func (p Pattern[S]) IsWildcard() bool { return p.wildcard }

// Key returns the structural identity of the pattern.
func (p Pattern[S]) Key() string { return p.key }

func (p Pattern[S]) String() string {
	if p.match == nil {
		return "<invalid>"
	}
	return p.desc
}

func (p Pattern[S]) valid() bool { return p.match != nil }
