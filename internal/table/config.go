// Package table reads dispatch table files.
//
// A table file declares one or more dispatchers. Each dispatcher names a
// generic Go function (the operation), the selector type, and an ordered
// list of rules mapping selector patterns to type argument tuples:
//
//	output: sizeclass_dispatch.go
//	dispatchers:
//	  - name: EncodeBySize
//	    operation: Encode
//	    selector: {type: Class}
//	    rules:
//	      - match: ClassSmall
//	        type: Small
//	      - match: _
//	        type: Large
//
// This package only checks the file's shape. Type arguments, patterns and
// arity are checked by the compiler package against the loaded Go code.
package table

import (
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileNames are the table file names FindConfig looks for.
var DefaultFileNames = []string{"dispatch.yaml", "dispatch.yml"}

// LoadConfig reads and parses a table file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses table file content from bytes.
// The path argument is used for error messages and the default output name.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Path = path
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig looks for a table file in dir. Unlike project-level config
// files it does not walk up: a table belongs to the package in its own
// directory. Returns "" and nil error if none is found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for _, name := range DefaultFileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", nil
}

// Dir returns the directory of the table file.
func (c *Config) Dir() string {
	return filepath.Dir(c.Path)
}

// OutputPath returns the generated file path.
func (c *Config) OutputPath() string {
	if filepath.IsAbs(c.Output) {
		return c.Output
	}
	return filepath.Join(c.Dir(), c.Output)
}

// validate checks the file's shape. Rule contents are left to the compiler
// so that every bad rule can be reported with its type information.
func (c *Config) validate(path string) error {
	if len(c.Dispatchers) == 0 {
		return fmt.Errorf("%s: no dispatchers defined", path)
	}
	if c.Package != "" && !isIdentifier(c.Package) {
		return fmt.Errorf("%s: package %q is not a Go identifier", path, c.Package)
	}
	if c.Output != "" && !strings.HasSuffix(c.Output, ".go") {
		return fmt.Errorf("%s: output %q must be a .go file", path, c.Output)
	}

	seen := make(map[string]int)
	for i := range c.Dispatchers {
		d := &c.Dispatchers[i]
		at := fmt.Sprintf("%s: dispatchers[%d]", path, i)

		if d.Name == "" {
			return fmt.Errorf("%s: name is required", at)
		}
		if !isIdentifier(d.Name) {
			return fmt.Errorf("%s: name %q is not a Go identifier", at, d.Name)
		}
		if prev, ok := seen[d.Name]; ok {
			return fmt.Errorf("%s: name %q already used by dispatchers[%d]", at, d.Name, prev)
		}
		seen[d.Name] = i
		at = fmt.Sprintf("%s (%s)", at, d.Name)

		if _, name := d.OperationRef(); !isIdentifier(name) {
			return fmt.Errorf("%s: operation %q must name a function", at, d.Operation)
		}

		switch {
		case d.Selector != nil && len(d.Dimensions) > 0:
			return fmt.Errorf("%s: selector/rules and dimensions are mutually exclusive", at)
		case d.Selector == nil && len(d.Dimensions) == 0:
			if len(d.Rules) > 0 {
				return fmt.Errorf("%s: selector is required", at)
			}
			return fmt.Errorf("%s: either selector/rules or dimensions is required", at)
		case d.Selector == nil && len(d.Rules) > 0:
			return fmt.Errorf("%s: rules require a selector; use dimensions[].rules for multi-dimensional tables", at)
		}

		names := make(map[string]bool)
		for k, dim := range d.Dims() {
			dimAt := at
			if len(d.Dimensions) > 0 {
				dimAt = fmt.Sprintf("%s.dimensions[%d]", at, k)
			}
			if strings.TrimSpace(dim.Selector.Type) == "" {
				return fmt.Errorf("%s: selector.type is required", dimAt)
			}
			if n := dim.Selector.Name; n != "" {
				if !isIdentifier(n) || n == "args" {
					return fmt.Errorf("%s: selector.name %q is not a usable parameter name", dimAt, n)
				}
				if names[n] {
					return fmt.Errorf("%s: selector.name %q is used by another dimension", dimAt, n)
				}
				names[n] = true
			}
			for j, r := range dim.Rules {
				if err := r.validateShape(); err != nil {
					return fmt.Errorf("%s.rules[%d] (line %d): %w", dimAt, j, r.Line, err)
				}
			}
		}
	}
	return nil
}

func (r Rule) validateShape() error {
	forms := 0
	if r.Type != "" {
		forms++
	}
	if len(r.TypeArgs) > 0 {
		forms++
	}
	if len(r.Candidates) > 0 {
		forms++
	}
	if forms > 1 {
		return fmt.Errorf("type, type_args and candidates are mutually exclusive")
	}
	return nil
}

// setDefaults fills in default values for omitted fields.
func (c *Config) setDefaults() {
	if c.Output == "" {
		base := strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path))
		c.Output = base + "_gen.go"
	}
	for i := range c.Dispatchers {
		dims := c.Dispatchers[i].Dims()
		for k := range dims {
			if dims[k].Selector.Name != "" {
				continue
			}
			name := "sel"
			if len(dims) > 1 {
				name = fmt.Sprintf("sel%d", k)
			}
			if c.Dispatchers[i].Selector != nil {
				c.Dispatchers[i].Selector.Name = name
			} else {
				c.Dispatchers[i].Dimensions[k].Selector.Name = name
			}
		}
	}
}

func isIdentifier(s string) bool {
	return token.IsIdentifier(s) && s != "_"
}
