package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/funnel-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(newMigrateCmd())
}

func newMigrateCmd() *cobra.Command {
	var to int

	cmd := &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back schema migrations",
		ValidArgs: []string{"up", "down"},
		Long: `Apply (up) or roll back (down) the embedded schema migrations for the
configured database. With --to the schema moves to that exact version.

Migration 2 adds the reason, expires_at and metadata lock columns. A schema
left at version 1 still works: locks are written without expiry.
Migration 3 converts stored lock times from seconds to milliseconds.

Examples:
  funnel-goat migrate up
  funnel-goat migrate up --to 1
  FG_DB=postgres://localhost/funnel funnel-goat migrate up`,
		Args: cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("to") {
				if to < 1 {
					return fmt.Errorf("--to must be at least 1")
				}
				if err := store.MigrateTo(cfg.DB, uint(to)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d\n", to)
				return nil
			}

			if err := store.Migrate(cfg.DB, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s)\n", args[0])
			return nil
		},
	}

	cmd.Flags().IntVar(&to, "to", 0, "target schema version")
	return cmd
}
