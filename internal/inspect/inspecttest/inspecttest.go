// Package inspecttest builds type-checked packages from in-memory sources
// so that generator stages can be tested without invoking the go command.
package inspecttest

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"path/filepath"
	"sort"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Package parses and type-checks files (name to source) as the package
// path located in dir. Imports are satisfied from deps first and from
// GOROOT sources otherwise.
func Package(t testing.TB, dir, path string, files map[string]string, deps ...*packages.Package) *packages.Package {
	t.Helper()

	fset := token.NewFileSet()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var syntax []*ast.File
	var goFiles []string
	for _, name := range names {
		filename := filepath.Join(dir, name)
		f, err := parser.ParseFile(fset, filename, files[name], parser.ParseComments)
		if err != nil {
			t.Fatalf("parsing %s: %v", filename, err)
		}
		syntax = append(syntax, f)
		goFiles = append(goFiles, filename)
	}

	imports := make(map[string]*packages.Package)
	byPath := make(map[string]*types.Package)
	for _, d := range deps {
		imports[d.PkgPath] = d
		byPath[d.PkgPath] = d.Types
	}
	fallback := importer.ForCompiler(fset, "source", nil)
	conf := types.Config{
		Importer: importerFunc(func(p string) (*types.Package, error) {
			if pkg, ok := byPath[p]; ok {
				return pkg, nil
			}
			return fallback.Import(p)
		}),
	}
	info := &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Instances:  make(map[*ast.Ident]types.Instance),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Implicits:  make(map[ast.Node]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
		Scopes:     make(map[ast.Node]*types.Scope),
	}
	tpkg, err := conf.Check(path, fset, syntax, info)
	if err != nil {
		t.Fatalf("type-checking %s: %v", path, err)
	}

	return &packages.Package{
		ID:        path,
		Name:      tpkg.Name(),
		PkgPath:   path,
		GoFiles:   goFiles,
		Fset:      fset,
		Syntax:    syntax,
		Types:     tpkg,
		TypesInfo: info,
		Imports:   imports,
	}
}

// Loader returns a fixed package set and records the patterns it was
// asked for.
type Loader struct {
	Pkgs  []*packages.Package
	Err   error
	Calls [][]string
}

// Load implements inspect.Loader.
func (l *Loader) Load(dir string, patterns ...string) ([]*packages.Package, error) {
	l.Calls = append(l.Calls, append([]string{dir}, patterns...))
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Pkgs, nil
}

type importerFunc func(path string) (*types.Package, error)

func (f importerFunc) Import(path string) (*types.Package, error) { return f(path) }

