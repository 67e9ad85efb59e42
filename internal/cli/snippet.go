package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/headline-goat/funnel-goat/internal/experiment"
	"github.com/headline-goat/funnel-goat/internal/snippets"
	"github.com/headline-goat/funnel-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(newSnippetCmd())
}

func newSnippetCmd() *cobra.Command {
	var (
		framework string
		serverURL string
		texts     map[string]string
	)

	cmd := &cobra.Command{
		Use:   "snippet <page>",
		Short: "Generate integration code for a page",
		Long: `Generate copy-paste-ready code that loads the tracker and marks the CTA
for a page's experiment. Once the page has a valid lock the snippet shows
only the winning text.

Example:
  funnel-goat snippet sleep -f html --text a="Get My Sleep Plan" --text b="Start Sleeping Better"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page := experiment.NormalizePage(args[0])

			fw := snippets.Framework(framework)
			if framework == "" {
				var err error
				fw, err = promptFramework()
				if err != nil {
					return err
				}
			}

			url := serverURL
			if url == "" {
				var err error
				url, err = promptServerURL()
				if err != nil {
					return err
				}
			}

			return withStore(func(s *store.SQLStore) error {
				config, err := snippetConfig(cmd.Context(), s, page, time.Now())
				if err != nil {
					return err
				}
				config.ServerURL = url
				config.CTAText = texts

				files, err := snippets.Generate(fw, *config)
				if err != nil {
					return fmt.Errorf("failed to generate snippet: %w", err)
				}

				printSnippets(cmd.OutOrStdout(), files)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&framework, "framework", "f", "", "framework (html, nextjs, react)")
	cmd.Flags().StringVarP(&serverURL, "server-url", "s", "", "server URL (e.g., https://fg.example.com)")
	cmd.Flags().StringToStringVar(&texts, "text", nil, "CTA text per variant, e.g. --text a=\"Get My Plan\"")

	return cmd
}

// findExperiment returns the policy row for page whether or not it is active.
func findExperiment(ctx context.Context, s store.ExperimentStore, page string) (*store.Experiment, error) {
	exps, err := s.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}
	for _, exp := range exps {
		if exp.Page == page {
			return exp, nil
		}
	}
	return nil, fmt.Errorf("no policy for page '%s'", page)
}

type snippetSource interface {
	store.ExperimentStore
	LatestLock(ctx context.Context, page string) (*store.WinnerLock, error)
}

func snippetConfig(ctx context.Context, s snippetSource, page string, now time.Time) (*snippets.Config, error) {
	exp, err := findExperiment(ctx, s, page)
	if err != nil {
		return nil, err
	}
	policy := experiment.NormalizePolicy(exp)

	config := &snippets.Config{
		Page:     policy.Page,
		Variants: policy.Variants,
	}

	lock, err := s.LatestLock(ctx, page)
	switch {
	case err == nil:
		if lock.Valid(now) {
			config.Winner = lock.Winner
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, err
	}

	return config, nil
}

func promptServerURL() (string, error) {
	defaultURL := os.Getenv("FG_SERVER_URL")
	if defaultURL == "" {
		defaultURL = serverURLOrDefault("")
	}

	prompt := promptui.Prompt{
		Label:   "Server URL",
		Default: defaultURL,
	}

	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			os.Exit(0)
		}
		return "", err
	}

	return strings.TrimRight(result, "/"), nil
}

func printSnippets(w io.Writer, files []snippets.SnippetFile) {
	for i, file := range files {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, strings.Repeat("=", 62))
		fmt.Fprintf(w, " %s\n", file.Filename)
		fmt.Fprintln(w, strings.Repeat("=", 62))
		fmt.Fprintln(w)
		fmt.Fprintln(w, file.Content)
	}
}
