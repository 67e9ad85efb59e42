package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/headline-goat/funnel-goat/internal/config"
)

var (
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "funnel-goat",
	Short: "Funnel Goat - CTA experiments and winner locking for landing page funnels",
	Long: `Funnel Goat records landing page events, picks CTA winners per page and
locks them so the funnel stops flipping once a variant has won.
SQLite by default, Postgres when --db is a postgres:// URL.

Running without a subcommand starts the server (same as 'funnel-goat init').`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runInit, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	v = config.New()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML)")
	flags.String("db", "./funnel-goat.db", "SQLite path or postgres:// URL")
	flags.IntP("port", "p", 8080, "port to listen on")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console or json)")

	_ = v.BindPFlag("db", flags.Lookup("db"))
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = c
	setupLogging(cfg.Log)
	return nil
}

func setupLogging(lc config.LogConfig) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if lc.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}
