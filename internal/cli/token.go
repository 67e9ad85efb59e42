package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var tokenServerURL string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show dashboard URL with access token",
	Long: `Show the dashboard URL with your access token.

Use this when you've scrolled past the startup message or need to
share the dashboard link.

Example:
  funnel-goat token
  funnel-goat token --server-url https://fg.example.com`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenServerURL, "server-url", "s", "", "public server URL (defaults to http://localhost:<port>)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	token, err := readToken(tokenFilePath())
	if err != nil {
		return err
	}

	printDashboardURL(cmd.OutOrStdout(), serverURLOrDefault(strings.TrimRight(tokenServerURL, "/")), token)
	return nil
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("no server running. Start with: funnel-goat serve")
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file is empty. Restart the server with: funnel-goat serve")
	}
	return token, nil
}

func printDashboardURL(w io.Writer, serverURL, token string) {
	fmt.Fprintf(w, "Dashboard: %s/dashboard?token=%s\n", serverURL, token)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Tip: Bookmark this URL or run 'funnel-goat token' anytime.")
}
