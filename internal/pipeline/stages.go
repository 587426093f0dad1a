package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/funvibe/specialize/internal/cache"
	"github.com/funvibe/specialize/internal/codegen"
	"github.com/funvibe/specialize/internal/compiler"
	"github.com/funvibe/specialize/internal/inspect"
	"github.com/funvibe/specialize/internal/log"
	"github.com/funvibe/specialize/internal/table"
)

// TableLoader reads and validates the table file.
type TableLoader struct{}

func (TableLoader) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Err != nil {
		return ctx
	}
	data, err := os.ReadFile(ctx.TablePath)
	if err != nil {
		ctx.Err = fmt.Errorf("reading table %s: %w", ctx.TablePath, err)
		return ctx
	}
	cfg, err := table.ParseConfig(data, ctx.TablePath)
	if err != nil {
		ctx.Err = err
		return ctx
	}
	ctx.TableData = data
	ctx.Table = cfg
	ctx.Output = cfg.OutputPath()
	if ctx.Options.Output != "" {
		ctx.Output = ctx.Options.Output
	}
	if abs, err := filepath.Abs(ctx.Output); err == nil {
		ctx.Output = abs
	}
	ctx.Log.Debug().Str("table", ctx.TablePath).Int("dispatchers", len(cfg.Dispatchers)).Msg("table loaded")
	return ctx
}

// Fingerprinter hashes the table, the package sources next to it and the
// generator version. Tables that refer to other packages, through the
// operation or a qualified name in a type or pattern, are not cacheable,
// since those packages are not part of the fingerprint.
type Fingerprinter struct{}

func (Fingerprinter) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.halted() {
		return ctx
	}
	sources, err := cache.SourceFiles(ctx.Table.Dir(), ctx.Output)
	if err != nil {
		ctx.Err = fmt.Errorf("listing sources: %w", err)
		return ctx
	}
	fp, err := cache.Fingerprint(ctx.TableData, sources,
		"codegen="+codegen.Version, "tags="+strings.Join(ctx.Options.Tags, ","))
	if err != nil {
		ctx.Err = fmt.Errorf("fingerprinting inputs: %w", err)
		return ctx
	}
	ctx.Fingerprint = fp

	ctx.Cacheable = true
	for i := range ctx.Table.Dispatchers {
		d := &ctx.Table.Dispatchers[i]
		if pkg, _ := d.OperationRef(); pkg != "" {
			ctx.Cacheable = false
			ctx.Log.Debug().Str("operation", d.Operation).
				Msg("operation outside the table's package; caching disabled")
			break
		}
		if q := d.Qualifiers(); len(q) > 0 {
			ctx.Cacheable = false
			ctx.Log.Debug().Str("dispatcher", d.Name).Strs("qualifiers", q).
				Msg("table refers to other packages; caching disabled")
			break
		}
	}
	return ctx
}

// CacheChecker marks the run up to date when the output already carries
// the current fingerprint. Strict runs always compile, since a cache hit
// carries no diagnostics to fail on.
type CacheChecker struct{}

func (CacheChecker) Process(ctx *PipelineContext) *PipelineContext {
	opts := ctx.Options
	if ctx.halted() || opts.Mode != ModeGenerate || opts.Force || opts.NoCache || opts.Strict || opts.Store == nil || !ctx.Cacheable {
		return ctx
	}
	entry, hit, err := opts.Store.Lookup(ctx.Output, ctx.Fingerprint)
	if err != nil {
		ctx.Log.Warn().Err(err).Msg("cache lookup failed")
		return ctx
	}
	if hit {
		ctx.UpToDate = true
		ctx.Entry = entry
		ctx.Log.Info().Str("output", ctx.Output).Str("run", entry.RunID).Msg("up to date")
	}
	return ctx
}

// PackageInspector loads the table's package and the operation packages.
type PackageInspector struct{}

func (PackageInspector) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.halted() {
		return ctx
	}
	loader := ctx.Options.Loader
	if loader == nil {
		loader = inspect.PackagesLoader{Tags: ctx.Options.Tags}
	}

	var opPkgs []string
	for i := range ctx.Table.Dispatchers {
		if pkg, _ := ctx.Table.Dispatchers[i].OperationRef(); pkg != "" {
			opPkgs = append(opPkgs, pkg)
		}
	}

	ins := inspect.New(ctx.Table.Dir(), loader,
		inspect.WithIgnoredFile(ctx.Output),
		inspect.WithLogger(log.Component(ctx.Log, "inspect")))
	if err := ins.Load(opPkgs...); err != nil {
		ctx.Err = fmt.Errorf("loading %s: %w", ctx.Table.Dir(), err)
		return ctx
	}
	if want := ctx.Table.Package; want != "" && want != ins.Target().Name() {
		ctx.Err = fmt.Errorf("%s: %w: table declares %q, directory holds %q",
			ctx.TablePath, ErrPackageMismatch, want, ins.Target().Name())
		return ctx
	}
	ctx.Inspector = ins
	return ctx
}

// Compiler normalizes and checks every dispatcher. Diagnostics from all
// dispatchers are collected before the run stops.
type Compiler struct{}

func (Compiler) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.halted() {
		return ctx
	}
	for i := range ctx.Table.Dispatchers {
		d := &ctx.Table.Dispatchers[i]
		op, err := ctx.Inspector.Operation(d.OperationRef())
		if err != nil {
			ctx.Diagnostics.Errorf(fmt.Sprintf("%s:%d: %s", ctx.TablePath, d.Line, d.Name), -1, "",
				"operation %s: %v", d.Operation, err)
			continue
		}
		plan, diags := compiler.Normalize(ctx.TablePath, d, op.Arity())
		if !diags.HasErrors() {
			diags.Append(compiler.Check(plan, op, ctx.Inspector))
		}
		ctx.Diagnostics.Append(diags)
		ctx.Plans = append(ctx.Plans, plan)
		ctx.Log.Debug().Str("dispatcher", d.Name).Int("rules", len(plan.Rules)).
			Int("reachable", len(plan.Reachable())).Msg("compiled")
	}
	return ctx
}

// Generator renders the output in memory.
type Generator struct{}

func (Generator) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.halted() || ctx.Diagnostics.Err(ctx.Options.Strict) != nil {
		return ctx
	}
	source, err := filepath.Rel(filepath.Dir(ctx.Output), ctx.TablePath)
	if err != nil || strings.HasPrefix(source, "..") {
		source = filepath.Base(ctx.TablePath)
	}
	out, err := codegen.New().Generate(codegen.Input{
		Package:     ctx.Inspector.Target(),
		Source:      filepath.ToSlash(source),
		Fingerprint: ctx.Fingerprint,
		Filename:    ctx.Output,
		Plans:       ctx.Plans,
	}, ctx.Inspector)
	if err != nil {
		ctx.Err = fmt.Errorf("generating %s: %w", ctx.Output, err)
		return ctx
	}
	ctx.Generated = out
	return ctx
}

// Writer writes the rendered file unless its contents are unchanged.
type Writer struct{}

func (Writer) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.halted() || ctx.Generated == nil {
		return ctx
	}
	if old, err := os.ReadFile(ctx.Output); err == nil && bytes.Equal(old, ctx.Generated) {
		ctx.Log.Info().Str("output", ctx.Output).Msg("unchanged")
		return ctx
	}
	if err := os.WriteFile(ctx.Output, ctx.Generated, 0o644); err != nil {
		ctx.Err = fmt.Errorf("writing %s: %w", ctx.Output, err)
		return ctx
	}
	ctx.Written = true
	ctx.Log.Info().Str("output", ctx.Output).Msg("generated")
	return ctx
}

// CacheRecorder records the generation in the index.
type CacheRecorder struct{}

func (CacheRecorder) Process(ctx *PipelineContext) *PipelineContext {
	opts := ctx.Options
	if ctx.halted() || ctx.Generated == nil || opts.NoCache || opts.Store == nil || !ctx.Cacheable {
		return ctx
	}
	rules := 0
	for _, p := range ctx.Plans {
		rules += len(p.Rules)
	}
	entry, err := opts.Store.Record(cache.Entry{
		Output:      ctx.Output,
		Table:       ctx.TablePath,
		Fingerprint: ctx.Fingerprint,
		Rules:       rules,
	})
	if err != nil {
		ctx.Log.Warn().Err(err).Msg("recording generation failed")
		return ctx
	}
	ctx.Entry = &entry
	return ctx
}
