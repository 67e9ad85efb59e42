package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/headline-goat/funnel-goat/internal/config"
	"github.com/headline-goat/funnel-goat/internal/publish"
	"github.com/headline-goat/funnel-goat/internal/ratelimit"
	"github.com/headline-goat/funnel-goat/internal/server"
	"github.com/headline-goat/funnel-goat/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the funnel-goat HTTP server.

The server provides:
  - Event endpoint for the tracker (POST /api/event)
  - Winner endpoint for CTA decisions (GET /api/cta-winner)
  - Dashboard with the funnel report
  - Health check and Prometheus metrics

Example:
  funnel-goat serve --port 8080
  FG_DB=postgres://localhost/funnel funnel-goat serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withStore(func(s *store.SQLStore) error {
		srv, cleanup := newServer(s, cfg)
		defer cleanup()

		return srv.Start(ctx)
	})
}

// newServer wires the optional rate limiter and event mirror from cfg.
// cleanup releases their connections.
func newServer(s store.Store, cfg *config.Config) (*server.Server, func()) {
	opts := server.Options{
		Port:           cfg.Port,
		TokenFile:      tokenFilePath(),
		RequestTimeout: cfg.RequestTimeout,
		FunnelSteps:    cfg.Funnel.Steps,
		CompleteEvent:  cfg.Funnel.CompleteEvent,
	}

	var closers []func() error

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts.Limiter = ratelimit.NewRedisLimiter(client, cfg.RateLimit.PerSecond)
		closers = append(closers, client.Close)
		log.Info().Str("addr", cfg.Redis.Addr).Int("per_second", cfg.RateLimit.PerSecond).Msg("event rate limiting enabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p := publish.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		opts.Publisher = p
		closers = append(closers, p.Close)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("event mirror enabled")
	}

	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Err(err).Msg("failed to close client")
			}
		}
	}

	return server.New(s, opts), cleanup
}

func serverURLOrDefault(url string) string {
	if url != "" {
		return url
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Port)
}
