// Package codegen renders checked dispatch plans as Go source.
//
// Each plan becomes one function holding a switch over the reachable
// rules. A case evaluates the argument thunk, calls the operation
// instantiated with the rule's type arguments and wraps the result in
// dispatch.Option. Unreachable rules are listed in the doc comment only.
package codegen

import (
	"fmt"
	"go/types"
	"strings"
	"text/template"

	"golang.org/x/tools/imports"

	"github.com/funvibe/specialize/internal/compiler"
	"github.com/funvibe/specialize/internal/inspect"
)

// Version changes whenever the generated code changes shape, so that
// cached outputs from an older generator are regenerated.
const Version = "1"

// DispatchPath is the import path of the runtime package generated code uses.
const DispatchPath = "github.com/funvibe/specialize/pkg/dispatch"

// Resolver reports the packages an expression written in the table refers
// to. *inspect.Inspector implements it.
type Resolver interface {
	PackageRefs(expr string) ([]inspect.PackageRef, error)
}

// Input is everything needed to render one table.
type Input struct {
	// Package is the package the file is generated into.
	Package *types.Package

	// Source is the table file name written in the header.
	Source string

	// Fingerprint identifies the inputs the file was generated from.
	Fingerprint string

	// Filename is used for formatting diagnostics only.
	Filename string

	Plans []*compiler.Plan
}

// Generator renders dispatch files.
type Generator struct {
	dispatchPath string
}

// New creates a Generator importing the runtime package from DispatchPath.
func New() *Generator {
	return &Generator{dispatchPath: DispatchPath}
}

// Generate renders and formats the file for in.
func (g *Generator) Generate(in Input, res Resolver) ([]byte, error) {
	fc := &fileContext{
		in:  in,
		res: res,
	}
	fc.imports = newImportSet(fc.taken)

	if err := fc.bindRefs(); err != nil {
		return nil, err
	}
	dispatchName := fc.imports.use(g.dispatchPath, "dispatch")

	data := fileData{
		Source:      in.Source,
		Fingerprint: in.Fingerprint,
		Package:     in.Package.Name(),
	}
	for _, p := range in.Plans {
		data.Funcs = append(data.Funcs, fc.function(p, dispatchName))
	}
	data.Imports = fc.imports.sorted()

	tmpl, err := template.New("file").Parse(fileTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing template: %w", err)
	}

	out, err := imports.Process(in.Filename, []byte(buf.String()), &imports.Options{
		FormatOnly: true,
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
	})
	if err != nil {
		return nil, fmt.Errorf("formatting generated code: %w\n%s", err, buf.String())
	}
	return out, nil
}

type fileContext struct {
	in      Input
	res     Resolver
	imports *importSet
}

// taken reports names an import cannot use: package-level names of the
// target package and the generated functions' parameter names.
func (fc *fileContext) taken(name string) bool {
	if fc.in.Package.Scope().Lookup(name) != nil {
		return true
	}
	if name == "args" || name == "r" || name == "err" || isArgName(name) {
		return true
	}
	for _, p := range fc.in.Plans {
		if name == p.Name {
			return true
		}
		for _, d := range p.Dims {
			if name == d.Name {
				return true
			}
		}
	}
	return false
}

func isArgName(name string) bool {
	if len(name) < 2 || name[0] != 'a' {
		return false
	}
	return strings.Trim(name[1:], "0123456789") == ""
}

// bindRefs records the package names written in selector types,
// conditions and type arguments.
func (fc *fileContext) bindRefs() error {
	var exprs []string
	for _, p := range fc.in.Plans {
		for _, d := range p.Dims {
			exprs = append(exprs, d.TypeExpr)
		}
		for _, r := range p.Reachable() {
			exprs = append(exprs, r.TypeArgs...)
			for _, s := range r.Steps {
				if s.Cond != "" {
					exprs = append(exprs, s.Cond)
				}
			}
		}
	}
	for _, e := range exprs {
		refs, err := fc.res.PackageRefs(e)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if err := fc.imports.bind(ref.Name, ref.Path, ref.Pkg.Name()); err != nil {
				return fmt.Errorf("%s: %w", e, err)
			}
		}
	}
	return nil
}

func (fc *fileContext) qualifier(p *types.Package) string {
	if p == nil || p.Path() == fc.in.Package.Path() {
		return ""
	}
	return fc.imports.use(p.Path(), p.Name())
}

func (fc *fileContext) typeString(t types.Type) string {
	return types.TypeString(t, fc.qualifier)
}

type fileData struct {
	Source      string
	Fingerprint string
	Package     string
	Imports     []importEntry
	Funcs       []funcData
}

type funcData struct {
	Doc      []string
	Name     string
	Params   string
	Returns  string
	Cases    []caseData
	Fallback *caseData
	Absent   string
}

type caseData struct {
	Cond string
	Body []string
}

func (fc *fileContext) function(p *compiler.Plan, dispatchName string) funcData {
	f := funcData{Name: p.Name}

	var resultType string
	switch p.Result {
	case compiler.ResultNone:
		resultType = "struct{}"
	default:
		resultType = fc.typeString(p.ResultType)
	}
	option := fmt.Sprintf("%s.Option[%s]", dispatchName, resultType)
	absent := fmt.Sprintf("%s.Absent[%s]()", dispatchName, resultType)
	if p.Result == compiler.ResultValueError {
		f.Returns = "(" + option + ", error)"
		f.Absent = "return " + absent + ", nil"
	} else {
		f.Returns = option
		f.Absent = "return " + absent
	}

	var params []string
	for _, d := range p.Dims {
		params = append(params, d.Name+" "+d.TypeExpr)
	}
	argNames := make([]string, len(p.Params))
	argTypes := make([]string, len(p.Params))
	for i, t := range p.Params {
		argNames[i] = fmt.Sprintf("a%d", i)
		argTypes[i] = fc.typeString(t)
	}
	switch len(p.Params) {
	case 0:
	case 1:
		params = append(params, "args func() "+argTypes[0])
	default:
		params = append(params, "args func() ("+strings.Join(argTypes, ", ")+")")
	}
	f.Params = strings.Join(params, ", ")

	opName := p.OpName
	if p.Op != nil && !p.Op.Local {
		opName = fc.imports.use(p.Op.Pkg.Path(), p.Op.Pkg.Name()) + "." + opName
	}

	for _, r := range p.Reachable() {
		c := caseData{Cond: r.Cond(), Body: fc.body(p, r, opName, argNames, dispatchName)}
		if c.Cond == "" {
			f.Fallback = &c
			break
		}
		f.Cases = append(f.Cases, c)
	}

	f.Doc = doc(p)
	return f
}

func (fc *fileContext) body(p *compiler.Plan, r *compiler.Rule, opName string, args []string, dispatchName string) []string {
	var lines []string
	if len(args) > 0 {
		lines = append(lines, strings.Join(args, ", ")+" := args()")
	}
	callArgs := strings.Join(args, ", ")
	if p.Variadic && len(args) > 0 {
		callArgs += "..."
	}
	call := fmt.Sprintf("%s[%s](%s)", opName, strings.Join(r.TypeArgs, ", "), callArgs)

	switch p.Result {
	case compiler.ResultNone:
		lines = append(lines, call, fmt.Sprintf("return %s.Present(struct{}{})", dispatchName))
	case compiler.ResultValueError:
		lines = append(lines, "r, err := "+call, fmt.Sprintf("return %s.Present(r), err", dispatchName))
	default:
		lines = append(lines, fmt.Sprintf("return %s.Present(%s)", dispatchName, call))
	}
	return lines
}

// doc renders the function's doc comment lines.
func doc(p *compiler.Plan) []string {
	var lines []string
	if p.Doc != "" {
		for _, l := range strings.Split(strings.TrimSpace(p.Doc), "\n") {
			lines = append(lines, "// "+strings.TrimSpace(l))
		}
	} else {
		names := make([]string, len(p.Dims))
		for i, d := range p.Dims {
			names[i] = d.Name
		}
		lines = append(lines, fmt.Sprintf("// %s calls %s instantiated for the first rule matching %s.",
			p.Name, p.OpName, strings.Join(names, ", ")))
	}
	if len(p.Rules) == 0 {
		lines = append(lines, "//", "// The table is empty; every call returns Absent.")
		return lines
	}
	lines = append(lines, "//", "// Rules, first match wins:", "//")
	for _, r := range p.Rules {
		line := fmt.Sprintf("//\t#%d %s => %s[%s]", r.Index, r.Pattern(), p.OpName, strings.Join(r.TypeArgs, ", "))
		if !r.Reachable() {
			line += fmt.Sprintf(" (unreachable: %s of #%d)", r.Reason, r.ShadowedBy)
		}
		lines = append(lines, line)
	}
	return lines
}

const fileTemplate = `// Code generated by specialize. DO NOT EDIT.
// Source: {{.Source}}
// Fingerprint: {{.Fingerprint}}

package {{.Package}}

import (
{{- range .Imports}}
	{{if .Alias}}{{.Alias}} {{end}}"{{.Path}}"
{{- end}}
)
{{range .Funcs}}
{{range .Doc}}{{.}}
{{end -}}
func {{.Name}}({{.Params}}) {{.Returns}} {
{{- if .Cases}}
	switch {
{{- range .Cases}}
	case {{.Cond}}:
{{- range .Body}}
		{{.}}
{{- end}}
{{- end}}
	}
{{- end}}
{{- with .Fallback}}
{{- range .Body}}
	{{.}}
{{- end}}
{{- else}}
	{{.Absent}}
{{- end}}
}
{{end -}}
`
