package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/funvibe/specialize/internal/codegen"
	"github.com/funvibe/specialize/internal/config"
)

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s (codegen %s, %s)\n",
				config.ToolName, config.Version, codegen.Version, runtime.Version())
			return err
		},
	}
}
