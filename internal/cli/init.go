package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/headline-goat/funnel-goat/internal/snippets"
	"github.com/headline-goat/funnel-goat/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Start funnel-goat server",
	Long: `Start the funnel-goat server and show integration instructions.

The server provides:
  - Tracker script at /ft.js
  - Event and winner endpoints under /api
  - Dashboard with the funnel report

Experiments are configured per page with 'funnel-goat policy set'.

Example:
  funnel-goat init
  funnel-goat init --port 8080`,
	RunE: runInit,
}

var frameworkLabels = []string{
	"HTML (vanilla JavaScript)",
	"React",
	"Next.js",
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	// Prompt for framework to show appropriate instructions
	framework, err := promptFramework()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withStore(func(s *store.SQLStore) error {
		srv, cleanup := newServer(s, cfg)
		defer cleanup()

		// Print startup message with instructions
		printStartupInstructions(cmd.OutOrStdout(), framework, cfg.Port, srv.Token())

		// Start server quietly (we printed our own message)
		return srv.StartQuiet(ctx)
	})
}

func promptFramework() (snippets.Framework, error) {
	prompt := promptui.Select{
		Label: "Your framework",
		Items: frameworkLabels,
		Size:  len(frameworkLabels),
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			os.Exit(0)
		}
		return "", err
	}
	return frameworkFromIndex(idx), nil
}

func frameworkFromIndex(idx int) snippets.Framework {
	switch idx {
	case 1:
		return snippets.FrameworkReact
	case 2:
		return snippets.FrameworkNextJS
	default:
		return snippets.FrameworkHTML
	}
}

func printStartupInstructions(w io.Writer, framework snippets.Framework, port int, token string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Server running at http://localhost:%d\n", port)
	fmt.Fprintf(w, "Dashboard: http://localhost:%d/dashboard?token=%s\n", port, token)
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintln(w)

	// Step 1: Policy
	fmt.Fprintln(w, "1. Configure an experiment for a page")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   funnel-goat policy set sleep --test-id sleep-cta-1 --variants a,b --lock")
	fmt.Fprintln(w)

	// Step 2: Add script
	fmt.Fprintln(w, "2. Add the tracker to the landing page")
	fmt.Fprintln(w)
	fmt.Fprintln(w, `   <script src="https://YOUR-URL/ft.js" data-page="sleep" defer></script>`)
	fmt.Fprintln(w)

	// Step 3: Mark the CTA
	fmt.Fprintln(w, "3. Mark the CTA with its variant texts")
	fmt.Fprintln(w)
	printFrameworkSnippet(w, framework)
	fmt.Fprintln(w)

	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  policy list      List configured experiments")
	fmt.Fprintln(w, "  results <page>   Show variant statistics")
	fmt.Fprintln(w, "  winner <page>    Run the winner decision")
	fmt.Fprintln(w, "  funnel           Show the funnel report")
	fmt.Fprintln(w, "  token            Show dashboard URL")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop")
}

func printFrameworkSnippet(w io.Writer, framework snippets.Framework) {
	switch framework {
	case snippets.FrameworkReact, snippets.FrameworkNextJS:
		fmt.Fprintln(w, `   <button
     data-fg-cta="sleep"
     data-fg-variants={JSON.stringify({a: "Get My Sleep Plan", b: "Start Sleeping Better"})}
   >
     Get My Sleep Plan
   </button>`)
	default:
		fmt.Fprintln(w, `   <button data-fg-cta="sleep" data-fg-variants='{"a":"Get My Sleep Plan","b":"Start Sleeping Better"}'>
     Get My Sleep Plan
   </button>`)
	}
}
