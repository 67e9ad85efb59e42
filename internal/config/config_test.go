package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/funnel-goat/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "./funnel-goat.db", cfg.DB)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 20, cfg.RateLimit.PerSecond)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"sleep", "joint", "fatigue", "bp"}, cfg.Funnel.Steps)
	assert.Equal(t, "complete", cfg.Funnel.CompleteEvent)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("FG_DB", "postgres://localhost/funnel")
	t.Setenv("FG_PORT", "9090")
	t.Setenv("FG_REQUEST_TIMEOUT", "750ms")
	t.Setenv("FG_LOG_FORMAT", "json")
	t.Setenv("FG_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("FG_RATE_LIMIT_PER_SECOND", "5")

	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/funnel", cfg.DB)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 750*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5, cfg.RateLimit.PerSecond)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "funnel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: /var/lib/funnel.db
redis:
  addr: localhost:6379
funnel:
  steps: [Sleep, Joint]
  complete_event: purchase
`), 0644))

	cfg, err := config.Load(config.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/funnel.db", cfg.DB)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"sleep", "joint"}, cfg.Funnel.Steps)
	assert.Equal(t, "purchase", cfg.Funnel.CompleteEvent)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "funnel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7000\n"), 0644))
	t.Setenv("FG_PORT", "7001")

	cfg, err := config.Load(config.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(config.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"empty db", "db", ""},
		{"bad port", "port", 0},
		{"zero timeout", "request_timeout", "0s"},
		{"unknown log format", "log.format", "xml"},
		{"negative rate limit", "rate_limit.per_second", -1},
		{"no funnel steps", "funnel.steps", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := config.New()
			v.Set(tt.key, tt.val)
			_, err := config.Load(v, "")
			assert.Error(t, err)
		})
	}
}

func TestLoad_KafkaNeedsTopic(t *testing.T) {
	v := config.New()
	v.Set("kafka.brokers", []string{"a:9092"})
	v.Set("kafka.topic", "")

	_, err := config.Load(v, "")
	assert.Error(t, err)
}
