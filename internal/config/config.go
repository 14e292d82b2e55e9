package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// History backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config struct for environment variables.
type Config struct {
	DownloadDir       string        `envconfig:"DOWNLOAD_DIR" default:"Downloads"`
	HistoryBackend    string        `envconfig:"HISTORY_BACKEND" default:"file"`
	HistoryFile       string        `envconfig:"HISTORY_FILE" default:"downloaded_urls.txt"`
	DBPath            string        `envconfig:"DB_PATH" default:"history.db"`
	RedisURL          string        `envconfig:"REDIS_URL"`
	MaxParallel       int           `envconfig:"MAX_PARALLEL" default:"5"`
	Proxies           []string      `envconfig:"PROXIES"`
	AllowedPrefix     string        `envconfig:"ALLOWED_PREFIX" default:"https://ibb.co/"`
	UserAgent         string        `envconfig:"USER_AGENT"`
	LinkSelector      string        `envconfig:"LINK_SELECTOR" default:"a.btn.btn-download.default"`
	ResolveTimeout    time.Duration `envconfig:"RESOLVE_TIMEOUT" default:"15s"`
	ResolveRateLimit  float64       `envconfig:"RESOLVE_RATE_LIMIT" default:"0"`
	StaticDir         string        `envconfig:"STATIC_DIR"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	WS struct {
		PingInterval time.Duration `split_words:"true" default:"30s"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:3000"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig loads an optional .env file, then reads environment variables
// and populates the Config struct. Variables already set in the environment win.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.MaxParallel < 1 || c.MaxParallel > 100 {
		return fmt.Errorf("MAX_PARALLEL must be between 1 and 100, got %d", c.MaxParallel)
	}

	switch c.HistoryBackend {
	case BackendFile, BackendSQLite:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis history backend")
		}
	default:
		return fmt.Errorf("invalid HISTORY_BACKEND %q", c.HistoryBackend)
	}

	if c.ResolveRateLimit < 0 {
		return fmt.Errorf("RESOLVE_RATE_LIMIT must not be negative, got %v", c.ResolveRateLimit)
	}

	if strings.TrimSpace(c.AllowedPrefix) == "" {
		return errors.New("ALLOWED_PREFIX must not be empty")
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
