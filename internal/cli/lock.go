package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/headline-goat/funnel-goat/internal/experiment"
	"github.com/headline-goat/funnel-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(newLockCmd())
}

func newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect or clear winner locks",
	}

	cmd.AddCommand(newLockShowCmd(), newLockClearCmd())
	return cmd
}

func newLockShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <page>",
		Short: "Show lock history for a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page := experiment.NormalizePage(args[0])
			return withStore(func(s *store.SQLStore) error {
				return printLocks(cmd.Context(), s, cmd.OutOrStdout(), page, time.Now())
			})
		},
	}
}

func newLockClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear <page>",
		Short: "Delete every lock for a page",
		Long: `Delete every lock row for a page so the next decision can select
(and lock) a winner again.

Example:
  funnel-goat lock clear sleep --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page := experiment.NormalizePage(args[0])

			if !yes {
				ok, err := confirm(fmt.Sprintf("Delete all locks for '%s'", page))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			return withStore(func(s *store.SQLStore) error {
				return clearLocks(cmd.Context(), s, cmd.OutOrStdout(), page)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func printLocks(ctx context.Context, s store.LockStore, w io.Writer, page string, now time.Time) error {
	locks, err := s.ListLocks(ctx, page)
	if err != nil {
		return err
	}

	if len(locks) == 0 {
		fmt.Fprintf(w, "No locks for page '%s'.\n", page)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTEST ID\tWINNER\tREASON\tLOCKED AT\tEXPIRES\tSTATUS")

	for _, l := range locks {
		expires := "never"
		if l.ExpiresAt != nil {
			expires = l.ExpiresAt.UTC().Format(time.RFC3339)
		}

		reason := l.Reason
		if reason == "" {
			reason = "-"
		}

		status := "expired"
		if l.Valid(now) {
			status = "valid"
		}

		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID,
			l.TestID,
			l.Winner,
			reason,
			l.LockedAt.UTC().Format(time.RFC3339),
			expires,
			status,
		)
	}

	return tw.Flush()
}

func clearLocks(ctx context.Context, s store.LockStore, w io.Writer, page string) error {
	n, err := s.DeleteLocks(ctx, page)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Deleted %d lock(s) for page '%s'\n", n, page)
	return nil
}
