package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/funnel-goat/internal/experiment"
	"github.com/headline-goat/funnel-goat/internal/stats"
	"github.com/headline-goat/funnel-goat/internal/store"
)

var resultsAll bool

var resultsCmd = &cobra.Command{
	Use:   "results <page>",
	Short: "Show variant results for a page",
	Long: `Show per-variant entering sessions, clicks, click rate and a 95% Wilson
interval. The interval is for reading only; winner selection uses the
policy thresholds.

By default only randomly assigned (test) traffic is counted, as in the
winner decision. Use --all to include every event.`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().BoolVar(&resultsAll, "all", false, "include traffic that was not randomly assigned")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	page := experiment.NormalizePage(args[0])

	return withStore(func(s *store.SQLStore) error {
		return printResults(cmd.Context(), s, cmd.OutOrStdout(), page, !resultsAll, time.Now())
	})
}

func printResults(ctx context.Context, s store.Store, w io.Writer, page string, testOnly bool, now time.Time) error {
	exp, err := findExperiment(ctx, s, page)
	if err != nil {
		return err
	}
	policy := experiment.NormalizePolicy(exp)

	metrics, err := s.VariantMetrics(ctx, page, policy.Variants, testOnly)
	if err != nil {
		return err
	}
	rows := stats.Summarize(policy.Variants, metrics)

	// Print header
	fmt.Fprintf(w, "PAGE: %s\n", policy.Page)
	fmt.Fprintf(w, "TEST: %s\n", policy.TestID)
	status := "ACTIVE"
	if !exp.Active {
		status = "DISABLED"
	}
	fmt.Fprintf(w, "STATUS: %s\n", status)
	fmt.Fprintf(w, "THRESHOLDS: %d enters per variant, %s absolute lift\n", policy.MinEntersPerVariant, formatPercent(policy.MinAbsLift))

	lock, err := s.LatestLock(ctx, page)
	switch {
	case err == nil && lock.Valid(now):
		fmt.Fprintf(w, "LOCKED: %s since %s\n", lock.Winner, lock.LockedAt.UTC().Format("2006-01-02"))
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return err
	}
	fmt.Fprintln(w)

	// Print table header
	fmt.Fprintln(w, "VARIANT           ENTERS   CLICKS       RATE     95% CI")
	fmt.Fprintln(w, strings.Repeat("─", 60))

	for _, r := range rows {
		indicator := ""
		if r.Leading && len(rows) > 1 {
			indicator = " ← LEADING"
		}

		ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", r.CILower*100, r.CIUpper*100)
		if r.Enters == 0 {
			ciStr = "N/A"
		}

		// Truncate name if too long
		name := r.Variant
		if len(name) > 16 {
			name = name[:13] + "..."
		}

		fmt.Fprintf(w, "%-16s  %-7d  %-11d  %-7s  %s%s\n",
			name,
			r.Enters,
			r.Clicks,
			formatPercent(r.Rate),
			ciStr,
			indicator,
		)
	}

	return nil
}
