// Package cli implements the specialize command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/funvibe/specialize/internal/cache"
	"github.com/funvibe/specialize/internal/config"
	"github.com/funvibe/specialize/internal/diagnostics"
	"github.com/funvibe/specialize/internal/inspect"
	"github.com/funvibe/specialize/internal/log"
)

// errReported is returned once diagnostics have been printed, so that
// Execute exits non-zero without printing them again.
var errReported = errors.New("generation failed")

type app struct {
	settingsPath string
	logLevel     string
	color        string
	strict       bool
	noCache      bool
	cacheDir     string
	tags         []string

	settings *config.Settings
	log      zerolog.Logger
	colorOut bool

	// loader replaces the go command in tests.
	loader inspect.Loader
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(root.ErrOrStderr(), "%s: %v\n", config.ToolName, err)
		}
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	return (&app{}).command()
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:   config.ToolName,
		Short: "Generate compile-time dispatch over generic Go functions",
		Long: `specialize reads a dispatch table (dispatch.yaml) that maps selector
patterns to type arguments of a generic function and generates one
dispatch function per table entry: the first matching rule wins, the
arguments are evaluated at most once, and a selector no rule matches
yields dispatch.Absent.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.settingsPath, "config", "c", "", "settings file (default "+config.SettingsFileName+" when present)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&a.color, "color", "", "colour output: auto, always or never")
	pf.BoolVar(&a.strict, "strict", false, "treat warnings as errors")
	pf.BoolVar(&a.noCache, "no-cache", false, "neither consult nor update the generation cache")
	pf.StringVar(&a.cacheDir, "cache-dir", "", "generation cache directory")
	pf.StringSliceVar(&a.tags, "tags", nil, "build tags used when loading packages")

	root.AddCommand(
		a.genCommand(),
		a.checkCommand(),
		a.listCommand(),
		a.cacheCommand(),
		versionCommand(),
	)
	return root
}

// setup layers command-line flags over the settings file and environment.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	s, err := config.Load(a.settingsPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		s.LogLevel = a.logLevel
	}
	if flags.Changed("color") {
		s.Color = a.color
	}
	if flags.Changed("strict") {
		s.Strict = a.strict
	}
	if flags.Changed("no-cache") {
		s.NoCache = a.noCache
	}
	if flags.Changed("cache-dir") {
		s.CacheDir = a.cacheDir
	}
	if flags.Changed("tags") {
		s.Tags = a.tags
	}
	if err := s.Validate(); err != nil {
		return err
	}
	a.settings = s

	errOut := cmd.ErrOrStderr()
	a.colorOut = diagnostics.UseColor(diagnostics.ColorMode(s.Color), errOut)
	a.log, err = log.New(errOut, s.LogLevel, a.colorOut)
	return err
}

func (a *app) openStore() (*cache.Store, error) {
	dir := a.settings.CacheDir
	if dir == "" {
		var err error
		if dir, err = cache.DefaultDir(); err != nil {
			return nil, err
		}
	}
	return cache.Open(dir)
}
