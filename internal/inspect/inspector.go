// Package inspect resolves the Go side of a dispatch table: the package the
// table lives in, the generic operation, and the type and value expressions
// written in the table.
//
// Expressions are evaluated with go/types in the scope of the table's
// package, extended with the package names imported by its files and the
// names of packages that hold operations. "Small", "ops.Small",
// "[]byte" and "Vec[int]" are all valid type arguments.
package inspect

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/tools/go/packages"
)

// Inspector loads the table's package and the operation packages it
// references, and evaluates table expressions against them.
type Inspector struct {
	loader  Loader
	dir     string
	ignored map[string]bool
	log     zerolog.Logger

	target *packages.Package
	pkgs   map[string]*packages.Package
	scope  *types.Package
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithIgnoredFile excludes errors reported in path, typically the
// previously generated output that is about to be replaced.
func WithIgnoredFile(path string) Option {
	return func(ins *Inspector) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		ins.ignored[path] = true
	}
}

// WithLogger sets the logger used for load progress.
func WithLogger(l zerolog.Logger) Option {
	return func(ins *Inspector) { ins.log = l }
}

// New creates an Inspector for the package in dir.
func New(dir string, loader Loader, opts ...Option) *Inspector {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	ins := &Inspector{
		loader:  loader,
		dir:     dir,
		ignored: make(map[string]bool),
		log:     zerolog.Nop(),
		pkgs:    make(map[string]*packages.Package),
	}
	for _, opt := range opts {
		opt(ins)
	}
	return ins
}

// Load loads the package in the inspector's directory plus the given
// operation packages.
func (ins *Inspector) Load(opPkgPaths ...string) error {
	patterns := []string{"."}
	seen := map[string]bool{}
	for _, p := range opPkgPaths {
		if p != "" && !seen[p] {
			seen[p] = true
			patterns = append(patterns, p)
		}
	}
	sort.Strings(patterns[1:])

	ins.log.Debug().Str("dir", ins.dir).Strs("patterns", patterns).Msg("loading packages")
	pkgs, err := ins.loader.Load(ins.dir, patterns...)
	if err != nil {
		return err
	}

	var errs []string
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			if ins.isIgnored(e.Pos) {
				ins.log.Debug().Str("error", e.Msg).Msg("ignoring error in generated file")
				continue
			}
			errs = append(errs, fmt.Sprintf("%s: %s", pkg.PkgPath, e.Error()))
		}
		ins.pkgs[pkg.PkgPath] = pkg
		if ins.target == nil && ins.inDir(pkg) {
			ins.target = pkg
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("package errors:\n  %s", strings.Join(errs, "\n  "))
	}
	if ins.target == nil && len(pkgs) == 1 {
		ins.target = pkgs[0]
	}
	if ins.target == nil || ins.target.Types == nil {
		return fmt.Errorf("no Go package found in %s", ins.dir)
	}
	for p := range seen {
		if _, ok := ins.pkgs[p]; !ok {
			return fmt.Errorf("package %s not loaded", p)
		}
	}

	ins.scope = ins.buildScope()
	return nil
}

// Target returns the package the table lives in. Valid after Load.
func (ins *Inspector) Target() *types.Package {
	if ins.target == nil {
		return nil
	}
	return ins.target.Types
}

// SourceFiles returns the target package's Go files, excluding ignored
// files, sorted.
func (ins *Inspector) SourceFiles() []string {
	if ins.target == nil {
		return nil
	}
	var files []string
	for _, f := range ins.target.GoFiles {
		if !ins.ignored[f] {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	return files
}

// Operation resolves the generic function name in pkgPath. An empty
// pkgPath means the target package.
func (ins *Inspector) Operation(pkgPath, name string) (*Operation, error) {
	if ins.target == nil {
		return nil, errors.New("inspector not loaded")
	}
	pkg := ins.target
	if pkgPath != "" && pkgPath != ins.target.PkgPath {
		p, ok := ins.pkgs[pkgPath]
		if !ok {
			return nil, fmt.Errorf("package %s not loaded", pkgPath)
		}
		pkg = p
	}

	obj := pkg.Types.Scope().Lookup(name)
	if obj == nil {
		return nil, fmt.Errorf("function %q not found in package %s", name, pkg.PkgPath)
	}
	fn, ok := obj.(*types.Func)
	if !ok {
		return nil, fmt.Errorf("%q is not a function in package %s", name, pkg.PkgPath)
	}
	if pkg != ins.target && !fn.Exported() {
		return nil, fmt.Errorf("function %q is not exported from package %s", name, pkg.PkgPath)
	}
	return newOperation(fn, pkg.Types, pkg == ins.target)
}

// EvalType evaluates a Go type expression in the table's scope.
func (ins *Inspector) EvalType(expr string) (types.Type, error) {
	tv, err := ins.eval(expr)
	if err != nil {
		return nil, err
	}
	if !tv.IsType() {
		return nil, fmt.Errorf("%s is not a type", expr)
	}
	if isGenericType(tv.Type) {
		return nil, fmt.Errorf("%s is generic and needs type arguments", expr)
	}
	return tv.Type, nil
}

// EvalValue evaluates a Go value expression in the table's scope.
func (ins *Inspector) EvalValue(expr string) (types.TypeAndValue, error) {
	tv, err := ins.eval(expr)
	if err != nil {
		return types.TypeAndValue{}, err
	}
	if !tv.IsValue() {
		return types.TypeAndValue{}, fmt.Errorf("%s is not a value", expr)
	}
	return tv, nil
}

// PackageRef is an imported package an expression refers to by name.
type PackageRef struct {
	Name string // name used in the expression
	Path string
	Pkg  *types.Package
}

// PackageRefs returns the packages expr refers to through qualified
// identifiers, in order of first use.
func (ins *Inspector) PackageRefs(expr string) ([]PackageRef, error) {
	if ins.scope == nil {
		return nil, errors.New("inspector not loaded")
	}
	e, err := parser.ParseExpr(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", expr, err)
	}
	var refs []PackageRef
	seen := make(map[string]bool)
	ast.Inspect(e, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		id, ok := sel.X.(*ast.Ident)
		if !ok || seen[id.Name] {
			return true
		}
		if pn, ok := ins.scope.Scope().Lookup(id.Name).(*types.PkgName); ok {
			seen[id.Name] = true
			refs = append(refs, PackageRef{Name: id.Name, Path: pn.Imported().Path(), Pkg: pn.Imported()})
		}
		return true
	})
	return refs, nil
}

func (ins *Inspector) eval(expr string) (types.TypeAndValue, error) {
	if ins.scope == nil {
		return types.TypeAndValue{}, errors.New("inspector not loaded")
	}
	tv, err := types.Eval(token.NewFileSet(), ins.scope, token.NoPos, expr)
	if err != nil {
		return types.TypeAndValue{}, fmt.Errorf("evaluating %q: %w", expr, err)
	}
	return tv, nil
}

// buildScope returns a package that shares the target's path and objects
// and additionally declares the package names its files import, so that
// qualified identifiers resolve without a file position.
func (ins *Inspector) buildScope() *types.Package {
	orig := ins.target.Types
	synth := types.NewPackage(orig.Path(), orig.Name())
	scope := synth.Scope()
	for _, name := range orig.Scope().Names() {
		scope.Insert(orig.Scope().Lookup(name))
	}

	addPkgName := func(name string, imported *types.Package) {
		if name == "_" || name == "." || imported == nil || scope.Lookup(name) != nil {
			return
		}
		scope.Insert(types.NewPkgName(token.NoPos, synth, name, imported))
	}
	if info := ins.target.TypesInfo; info != nil {
		for _, f := range ins.target.Syntax {
			for _, imp := range f.Imports {
				if pn := info.PkgNameOf(imp); pn != nil {
					addPkgName(pn.Name(), pn.Imported())
				}
			}
		}
	}
	paths := make([]string, 0, len(ins.pkgs))
	for p := range ins.pkgs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if pkg := ins.pkgs[p]; pkg != ins.target && pkg.Types != nil {
			addPkgName(pkg.Types.Name(), pkg.Types)
		}
	}
	return synth
}

func (ins *Inspector) inDir(pkg *packages.Package) bool {
	files := pkg.GoFiles
	if len(files) == 0 {
		files = pkg.CompiledGoFiles
	}
	for _, f := range files {
		if filepath.Dir(f) == ins.dir {
			return true
		}
	}
	return false
}

// isIgnored reports whether a go/packages error position ("file:line:col")
// lies in an ignored file.
func (ins *Inspector) isIgnored(pos string) bool {
	if pos == "" || len(ins.ignored) == 0 {
		return false
	}
	file := pos
	for range 2 {
		if i := strings.LastIndex(file, ":"); i > 0 {
			file = file[:i]
		}
	}
	return ins.ignored[file]
}
