package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/headline-goat/funnel-goat/internal/experiment"
	"github.com/headline-goat/funnel-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(newWinnerCmd())
}

func newWinnerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "winner <page>",
		Short: "Run the winner decision for a page",
		Long: `Run the same decision the /api/cta-winner endpoint makes: honor a valid
lock, otherwise pick a winner from test traffic and lock it when the
policy has locking enabled.

Example:
  funnel-goat winner sleep`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLStore) error {
				engine := experiment.NewEngine(s, s, s)
				engine.Timeout = cfg.RequestTimeout

				d, err := engine.Decide(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				printDecision(cmd.OutOrStdout(), d)
				return nil
			})
		},
	}

	return cmd
}

func printDecision(w io.Writer, d *experiment.Decision) {
	fmt.Fprintf(w, "PAGE: %s\n", d.Page)
	fmt.Fprintf(w, "STATE: %s\n", d.State)
	fmt.Fprintf(w, "REASON: %s\n", d.Reason)
	if d.TestID != "" {
		fmt.Fprintf(w, "TEST: %s\n", d.TestID)
	}
	if d.Winner != "" {
		fmt.Fprintf(w, "WINNER: %s\n", d.Winner)
	}

	if d.Lock != nil {
		expires := "never"
		if d.Lock.ExpiresAt != nil {
			expires = d.Lock.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")
		}
		fmt.Fprintf(w, "LOCKED: %s (expires %s)\n", d.Lock.LockedAt.UTC().Format("2006-01-02 15:04 MST"), expires)
	}

	if len(d.Metrics) > 0 {
		fmt.Fprintln(w)
		for _, m := range d.Metrics {
			fmt.Fprintf(w, "  %-12s enters=%-6d clicks=%-6d rate=%s\n", m.Variant, m.Enters, m.Clicks, formatPercent(m.Rate))
		}
	}

	if d.Debug != nil {
		switch d.Reason {
		case experiment.ReasonMinEntersNotMet:
			fmt.Fprintf(w, "\nNo variant has reached %d entering sessions yet.\n", d.Policy.MinEntersPerVariant)
		case experiment.ReasonMinAbsLiftNotMet:
			fmt.Fprintf(w, "\nLift %s is below the required %s.\n", formatPercent(d.Debug.AbsLift), formatPercent(d.Debug.MinAbsLift))
		}
	}

	if lw := d.LockWrite; lw != nil {
		fmt.Fprintln(w)
		switch {
		case lw.OK:
			fmt.Fprintf(w, "Lock written (%s profile).\n", lw.Profile)
		case lw.Conflict:
			fmt.Fprintln(w, "Another writer locked this page first.")
		default:
			fmt.Fprintf(w, "Lock write failed: %s\n", lw.Error)
		}
	}
}
