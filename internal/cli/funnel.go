package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/headline-goat/funnel-goat/internal/funnel"
	"github.com/headline-goat/funnel-goat/internal/store"
)

var funnelSteps []string

var funnelCmd = &cobra.Command{
	Use:   "funnel",
	Short: "Show the funnel report",
	Long: `Show how many sessions entered each funnel page, the step-to-step rates
and where the biggest drop-off is.

Example:
  funnel-goat funnel
  funnel-goat funnel --steps sleep,joint,bp`,
	RunE: runFunnel,
}

func init() {
	funnelCmd.Flags().StringSliceVar(&funnelSteps, "steps", nil, "ordered funnel pages (defaults to funnel.steps)")
	rootCmd.AddCommand(funnelCmd)
}

func runFunnel(cmd *cobra.Command, args []string) error {
	steps := cfg.Funnel.Steps
	if len(funnelSteps) > 0 {
		steps = make([]string, len(funnelSteps))
		for i, s := range funnelSteps {
			steps[i] = strings.ToLower(strings.TrimSpace(s))
		}
	}

	return withStore(func(s *store.SQLStore) error {
		return printFunnel(cmd.Context(), s, cmd.OutOrStdout(), steps, cfg.Funnel.CompleteEvent)
	})
}

func printFunnel(ctx context.Context, src funnel.Source, w io.Writer, steps []string, completeEvent string) error {
	report, err := funnel.Build(ctx, src, steps, completeEvent)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tSESSIONS\tRATE\tLOST")
	for i, t := range report.Transitions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\n",
			t.From,
			t.To,
			report.Steps[i].Sessions,
			formatPercent(t.Rate),
			t.Lost,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Completed: %d (%s of first step)\n", report.Complete, formatPercent(report.CompleteRate))
	if report.TopDropoff != nil {
		fmt.Fprintf(w, "Top drop-off: %s → %s (%d lost)\n", report.TopDropoff.From, report.TopDropoff.To, report.TopDropoff.Lost)
	}
	fmt.Fprintf(w, "Priority: %s\n", report.Priority)
	fmt.Fprintf(w, "Recommendation: %s\n", report.Recommendation)
	return nil
}
