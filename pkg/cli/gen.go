package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/funvibe/specialize/internal/compiler"
	"github.com/funvibe/specialize/internal/diagnostics"
	"github.com/funvibe/specialize/internal/pipeline"
	"github.com/funvibe/specialize/internal/table"
)

func (a *app) genCommand() *cobra.Command {
	var file, output string
	var force bool
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate the dispatch file for a table",
		Long: `gen compiles the table and writes the generated file next to it.
Run it from a package directory or through //go:generate specialize gen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := a.run(cmd, file, pipeline.Options{
				Mode:   pipeline.ModeGenerate,
				Output: output,
				Force:  force,
			})
			if err != nil {
				return err
			}
			switch {
			case ctx.UpToDate:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: up to date\n", relPath(ctx.Output))
			case ctx.Written:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: generated\n", relPath(ctx.Output))
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: unchanged\n", relPath(ctx.Output))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "table file (default dispatch.yaml in the current directory)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "generated file (default from the table)")
	cmd.Flags().BoolVar(&force, "force", false, "regenerate even when the cache says the output is current")
	return cmd
}

func (a *app) checkCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a table without writing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := a.run(cmd, file, pipeline.Options{Mode: pipeline.ModeCheck})
			if err != nil {
				return err
			}
			state := "ok"
			if old, err := os.ReadFile(ctx.Output); err != nil || string(old) != string(ctx.Generated) {
				state = "ok, output needs regeneration"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d dispatchers, %d warnings)\n",
				relPath(ctx.TablePath), state, len(ctx.Plans), len(ctx.Diagnostics.Warnings()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "table file (default dispatch.yaml in the current directory)")
	return cmd
}

func (a *app) listCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the normalized rules of a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := a.run(cmd, file, pipeline.Options{Mode: pipeline.ModeList})
			if err != nil {
				return err
			}
			for _, p := range ctx.Plans {
				printPlan(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "table file (default dispatch.yaml in the current directory)")
	return cmd
}

// run executes one pipeline and prints its diagnostics.
func (a *app) run(cmd *cobra.Command, file string, opts pipeline.Options) (*pipeline.PipelineContext, error) {
	path, err := tablePath(file)
	if err != nil {
		return nil, err
	}

	opts.Strict = a.settings.Strict
	opts.NoCache = a.settings.NoCache
	opts.Tags = a.settings.Tags
	opts.Loader = a.loader
	if opts.Mode == pipeline.ModeGenerate && !opts.NoCache {
		store, err := a.openStore()
		if err != nil {
			a.log.Warn().Err(err).Msg("cache unavailable")
		} else {
			defer func() { _ = store.Close() }()
			opts.Store = store
		}
	}

	ctx := pipeline.ForMode(opts.Mode).Run(pipeline.NewContext(cmd.Context(), path, opts, a.log))
	if err := diagnostics.Render(cmd.ErrOrStderr(), ctx.Diagnostics, a.colorOut); err != nil {
		return ctx, err
	}
	if err := ctx.Result(); err != nil {
		if _, ok := diagnostics.AsList(err); ok {
			return ctx, errReported
		}
		return ctx, err
	}
	return ctx, nil
}

func tablePath(file string) (string, error) {
	if file != "" {
		return file, nil
	}
	path, err := table.FindConfig(".")
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("no %s in the current directory; use -f to name a table",
			strings.Join(table.DefaultFileNames, " or "))
	}
	return path, nil
}

func printPlan(w io.Writer, p *compiler.Plan) {
	op := p.OpName
	if p.OpPkgPath != "" {
		op = p.OpPkgPath + "." + op
	}
	if p.Op != nil {
		op = p.Op.String()
	}
	dims := make([]string, len(p.Dims))
	for i, d := range p.Dims {
		dims[i] = d.Name + " " + d.TypeExpr
	}
	fmt.Fprintf(w, "%s(%s) -> %s\n", p.Name, strings.Join(dims, ", "), op)
	if len(p.Rules) == 0 {
		fmt.Fprintln(w, "  (no rules)")
	}
	for _, r := range p.Rules {
		line := "  " + r.String()
		if !r.Reachable() {
			line += fmt.Sprintf("  unreachable: %s of #%d", r.Reason, r.ShadowedBy)
		}
		fmt.Fprintln(w, line)
	}
}

// relPath shortens path relative to the working directory when possible.
func relPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(wd, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
