// Package pipeline runs a dispatch table through the generator stages:
// load the table, fingerprint the inputs, consult the cache, inspect the
// Go package, compile the dispatchers, render, write and record.
package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/funvibe/specialize/internal/cache"
	"github.com/funvibe/specialize/internal/compiler"
	"github.com/funvibe/specialize/internal/diagnostics"
	"github.com/funvibe/specialize/internal/inspect"
	"github.com/funvibe/specialize/internal/table"
)

// Mode selects how far the pipeline goes.
type Mode int

const (
	ModeGenerate Mode = iota // write the output file
	ModeCheck                // render in memory, write nothing
	ModeList                 // stop after compiling the plans
)

// Options configures a run.
type Options struct {
	Mode    Mode
	Output  string // overrides the table's output file
	Force   bool   // regenerate even when the cache says up to date
	Strict  bool   // warnings fail the run
	NoCache bool
	Tags    []string

	// Loader loads Go packages; nil uses inspect.PackagesLoader.
	Loader inspect.Loader

	// Store is the generation index; nil disables caching.
	Store *cache.Store
}

// Processor is one pipeline stage.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// PipelineContext carries the state of one run between stages.
type PipelineContext struct {
	Context context.Context
	Options Options
	Log     zerolog.Logger

	TablePath string
	TableData []byte
	Table     *table.Config
	Output    string

	Fingerprint string
	Cacheable   bool
	UpToDate    bool

	Inspector   *inspect.Inspector
	Plans       []*compiler.Plan
	Diagnostics diagnostics.List

	Generated []byte
	Written   bool
	Entry     *cache.Entry

	// Err is a fatal error; later stages do nothing once it is set.
	Err error
}

// NewContext prepares a run for the table at tablePath.
func NewContext(ctx context.Context, tablePath string, opts Options, log zerolog.Logger) *PipelineContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &PipelineContext{
		Context:   ctx,
		Options:   opts,
		Log:       log,
		TablePath: tablePath,
	}
}

// halted reports whether later stages should skip their work.
func (c *PipelineContext) halted() bool {
	return c.Err != nil || c.UpToDate || c.Diagnostics.HasErrors()
}

// Result returns the fatal error, or an error built from the diagnostics.
func (c *PipelineContext) Result() error {
	if c.Err != nil {
		return c.Err
	}
	return c.Diagnostics.Err(c.Options.Strict)
}

// Pipeline represents a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// ForMode returns the standard pipeline for mode.
func ForMode(mode Mode) *Pipeline {
	stages := []Processor{
		&TableLoader{},
		&Fingerprinter{},
		&CacheChecker{},
		&PackageInspector{},
		&Compiler{},
	}
	switch mode {
	case ModeGenerate:
		stages = append(stages, &Generator{}, &Writer{}, &CacheRecorder{})
	case ModeCheck:
		stages = append(stages, &Generator{})
	}
	return New(stages...)
}

// Run executes the pipeline. Stages after a failure return early, so
// every stage runs even when an earlier one failed.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, processor := range p.processors {
		if err := ctx.Context.Err(); err != nil && ctx.Err == nil {
			ctx.Err = err
		}
		ctx = processor.Process(ctx)
	}
	return ctx
}

// ErrPackageMismatch is returned when the table names a package other
// than the one found in its directory.
var ErrPackageMismatch = errors.New("package name mismatch")
