// Package config builds the process configuration from defaults, an optional
// YAML file, FG_* environment variables and command-line flags using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. FG_DB, FG_LOG_LEVEL.
const EnvPrefix = "FG"

type Config struct {
	// DB is a SQLite file path or a postgres:// URL.
	DB             string        `mapstructure:"db"`
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// TokenFile stores the dashboard token; defaults to a file next to the SQLite database.
	TokenFile   string `mapstructure:"token_file"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`

	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Funnel    FunnelConfig    `mapstructure:"funnel"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// RedisConfig enables the event rate limiter when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	PerSecond int `mapstructure:"per_second"`
}

// KafkaConfig enables the event mirror when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type FunnelConfig struct {
	Steps         []string `mapstructure:"steps"`
	CompleteEvent string   `mapstructure:"complete_event"`
}

// New returns a Viper instance with defaults and environment binding set up.
// Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("db", "./funnel-goat.db")
	v.SetDefault("port", 8080)
	v.SetDefault("request_timeout", 5*time.Second)
	v.SetDefault("token_file", "")
	v.SetDefault("auto_migrate", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rate_limit.per_second", 20)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "funnel-events")
	v.SetDefault("funnel.steps", []string{"sleep", "joint", "fatigue", "bp"})
	v.SetDefault("funnel.complete_event", "complete")

	return v
}

// Load reads the optional config file and decodes v into a validated Config.
// A missing file is an error only when configFile is set explicitly.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Funnel.Steps = splitList(cfg.Funnel.Steps)
	for i, s := range cfg.Funnel.Steps {
		cfg.Funnel.Steps[i] = strings.ToLower(s)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DB) == "" {
		return errors.New("config: db must be set")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: request_timeout must be positive")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	if c.RateLimit.PerSecond < 0 {
		return errors.New("config: rate_limit.per_second must not be negative")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("config: kafka.topic must be set when kafka.brokers is")
	}
	if len(c.Funnel.Steps) == 0 {
		return errors.New("config: funnel.steps must not be empty")
	}
	return nil
}

// splitList flattens comma-separated entries, so env values like
// "a:9092,b:9092" and YAML lists decode the same way.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
