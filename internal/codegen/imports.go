package codegen

import (
	"fmt"
	"go/token"
	"sort"
	"strings"
	"unicode"
)

type importEntry struct {
	Path  string
	Alias string
}

// importSet assigns file-scope names to imported packages.
type importSet struct {
	byPath map[string]string
	byName map[string]string
	actual map[string]string // path to declared package name
	taken  func(name string) bool
}

func newImportSet(taken func(string) bool) *importSet {
	return &importSet{
		byPath: make(map[string]string),
		byName: make(map[string]string),
		actual: make(map[string]string),
		taken:  taken,
	}
}

// bind records that expressions refer to path as name. Names written in
// the table are fixed, so a conflicting binding is an error.
func (s *importSet) bind(name, path, pkgName string) error {
	if prev, ok := s.byName[name]; ok && prev != path {
		return fmt.Errorf("name %s refers to both %s and %s", name, prev, path)
	}
	if prev, ok := s.byPath[path]; ok && prev != name {
		return fmt.Errorf("package %s is referred to as both %s and %s", path, prev, name)
	}
	if s.taken(name) {
		return fmt.Errorf("package name %s is shadowed in the generated code", name)
	}
	s.byName[name] = path
	s.byPath[path] = name
	s.actual[path] = pkgName
	return nil
}

// use returns the name for path, choosing a free one on first use.
func (s *importSet) use(path, pkgName string) string {
	if name, ok := s.byPath[path]; ok {
		return name
	}
	base := pkgName
	if !token.IsIdentifier(base) {
		base = ImportAlias(path)
	}
	name := base
	for i := 2; s.byName[name] != "" || s.taken(name) || goReservedWords[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	s.byName[name] = path
	s.byPath[path] = name
	s.actual[path] = pkgName
	return name
}

func (s *importSet) sorted() []importEntry {
	entries := make([]importEntry, 0, len(s.byPath))
	for path, name := range s.byPath {
		e := importEntry{Path: path}
		if name != s.actual[path] {
			e.Alias = name
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries
}

// goReservedWords are Go keywords that cannot be used as import names.
var goReservedWords = map[string]bool{
	"break": true, "default": true, "func": true, "interface": true, "select": true,
	"case": true, "defer": true, "go": true, "map": true, "struct": true,
	"chan": true, "else": true, "goto": true, "package": true, "switch": true,
	"const": true, "fallthrough": true, "if": true, "range": true, "type": true,
	"continue": true, "for": true, "import": true, "return": true, "var": true,
}

// ImportAlias returns a valid Go identifier for an import path.
// Handles hyphens (go-cmp → gocmp), versioned paths (v2 → parent),
// and reserved words (go → pkgGo).
func ImportAlias(pkgPath string) string {
	parts := strings.Split(pkgPath, "/")
	last := parts[len(parts)-1]
	if len(last) > 1 && last[0] == 'v' && len(parts) > 1 && strings.Trim(last[1:], "0123456789") == "" {
		last = parts[len(parts)-2]
	}

	alias := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return -1
	}, last)
	if alias == "" || unicode.IsDigit(rune(alias[0])) {
		alias = "pkg" + alias
	}
	if goReservedWords[alias] {
		alias = "pkg" + strings.ToUpper(alias[:1]) + alias[1:]
	}
	return alias
}
