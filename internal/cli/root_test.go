package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands_PolicyWinnerLock(t *testing.T) {
	db := filepath.Join(t.TempDir(), "funnel.db")
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	out, err := execute(t, "--db", db, "policy", "set", "sleep",
		"--test-id", "sleep-cta-1", "--variants", "a,b", "--min-enters", "2", "--min-lift", "0.1", "--lock")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved policy 'sleep' (sleep-cta-1) with 2 variants: [a b]")
	assert.Equal(t, db, cfg.DB)

	out, err = execute(t, "--db", db, "winner", "sleep")
	require.NoError(t, err)
	assert.Contains(t, out, "STATE: NO_WINNER")
	assert.Contains(t, out, "REASON: MIN_ENTERS_PER_VARIANT_NOT_MET")

	out, err = execute(t, "--db", db, "lock", "show", "sleep")
	require.NoError(t, err)
	assert.Contains(t, out, "No locks for page 'sleep'.")

	out, err = execute(t, "--db", db, "policy", "disable", "sleep")
	require.NoError(t, err)
	assert.Contains(t, out, "Disabled policy for page 'sleep'")

	out, err = execute(t, "--db", db, "winner", "sleep")
	require.NoError(t, err)
	assert.Contains(t, out, "STATE: NO_EXPERIMENT")

	_, err = execute(t, "--db", db, "policy", "disable", "joint")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no policy for page 'joint'")
}

func TestCommands_InvalidArgs(t *testing.T) {
	db := filepath.Join(t.TempDir(), "funnel.db")
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	_, err := execute(t, "--db", db, "migrate", "sideways")
	require.Error(t, err)

	_, err = execute(t, "--db", db, "--log-format", "xml", "funnel")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log.format")

	// Reset the bound flag for later tests.
	require.NoError(t, rootCmd.PersistentFlags().Set("log-format", "console"))
}

func TestCommands_Migrate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "funnel.db")
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	out, err := execute(t, "--db", db, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations applied (up)")

	out, err = execute(t, "--db", db, "migrate", "down", "--to", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema at version 1")

	out, err = execute(t, "--db", db, "migrate", "up", "--to", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema at version 2")
}
