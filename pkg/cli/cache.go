package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clean the generation cache",
	}

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List recorded generations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no generations recorded in %s\n", store.Dir())
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "OUTPUT\tRULES\tRUN\tGENERATED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Output, e.Rules, e.RunID, e.GeneratedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	var stale bool
	clean := &cobra.Command{
		Use:   "clean",
		Short: "Remove recorded generations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			n, err := store.Clean(stale)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
			return nil
		},
	}
	clean.Flags().BoolVar(&stale, "stale", false, "only remove entries whose output no longer matches")

	cmd.AddCommand(ls, clean)
	return cmd
}
