package inspect

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/tools/go/packages"
)

//go:generate mockgen -destination=mocks/mock_loader.go -package=mocks github.com/funvibe/specialize/internal/inspect Loader

// Loader loads Go packages with syntax and type information.
type Loader interface {
	Load(dir string, patterns ...string) ([]*packages.Package, error)
}

// LoadMode is the go/packages mode the inspector needs.
const LoadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedTypes |
	packages.NeedTypesInfo |
	packages.NeedSyntax |
	packages.NeedImports |
	packages.NeedDeps

// PackagesLoader loads packages with golang.org/x/tools/go/packages,
// which runs the go command.
type PackagesLoader struct {
	// Tags are build tags passed as -tags.
	Tags []string

	// Env overrides the environment; nil means os.Environ() with
	// workspaces disabled.
	Env []string
}

// Load loads patterns relative to dir.
func (l PackagesLoader) Load(dir string, patterns ...string) ([]*packages.Package, error) {
	env := l.Env
	if env == nil {
		env = append(os.Environ(), "GOWORK=off")
	}
	cfg := &packages.Config{
		Mode: LoadMode,
		Dir:  dir,
		Env:  env,
	}
	if len(l.Tags) > 0 {
		cfg.BuildFlags = []string{"-tags=" + strings.Join(l.Tags, ",")}
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading packages: %w", err)
	}
	return pkgs, nil
}
