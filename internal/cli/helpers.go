package cli

import (
	"fmt"
	"path/filepath"

	"github.com/headline-goat/funnel-goat/internal/store"
)

const tokenFileName = ".funnel-goat-token"

// withStore opens the database, executes the function, and handles cleanup.
// The schema is migrated first unless auto_migrate is off.
func withStore(fn func(*store.SQLStore) error) error {
	open := store.OpenExisting
	if cfg.AutoMigrate {
		open = store.Open
	}

	s, err := open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// tokenFilePath returns the configured token file, or one next to the SQLite
// database. Postgres deployments without token_file use the working directory.
func tokenFilePath() string {
	if cfg.TokenFile != "" {
		return cfg.TokenFile
	}
	if store.IsPostgresDSN(cfg.DB) {
		return tokenFileName
	}
	return filepath.Join(filepath.Dir(cfg.DB), tokenFileName)
}

func formatPercent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}
