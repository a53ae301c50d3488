// Package config resolves configuration once — defaults, then an optional
// YAML file, then environment overrides — into an immutable value handed to
// constructors. No other package reads the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int    `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	NatsURL     string `yaml:"nats_url"`
	LogLevel    string `yaml:"log_level"`

	Provider     string `yaml:"provider"` // "gemini" or "ollama"
	Model        string `yaml:"model"`
	GeminiAPIKey string `yaml:"gemini_api_key"`
	OllamaHost   string `yaml:"ollama_host"`

	ChunkSizeLines           int `yaml:"chunk_size_lines"`
	MaxRetryAttempts         int `yaml:"max_retry_attempts"`
	CorrelationWindowMinutes int `yaml:"correlation_window_minutes"`

	SlackBotToken     string `yaml:"slack_bot_token"`
	SlackAlertChannel string `yaml:"slack_alert_channel"`
}

// CorrelationWindow returns the configured window as a duration.
func (c Config) CorrelationWindow() time.Duration {
	return time.Duration(c.CorrelationWindowMinutes) * time.Minute
}

// Load resolves the configuration. File path comes from SCRIBE_CONFIG,
// falling back to ~/.scribe/config.yaml; a missing file is not an error.
func Load() (Config, error) {
	cfg := defaults()

	path := os.Getenv("SCRIBE_CONFIG")
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".scribe", "config.yaml")
		}
	}
	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if cfg.Provider != "gemini" && cfg.Provider != "ollama" {
		return Config{}, fmt.Errorf("invalid provider %q (want gemini or ollama)", cfg.Provider)
	}

	return cfg, nil
}

func defaults() Config {
	return Config{
		Port:                     8710,
		NatsURL:                  "nats://localhost:4222",
		LogLevel:                 "info",
		Provider:                 "gemini",
		OllamaHost:               "http://localhost:11434",
		ChunkSizeLines:           10000,
		MaxRetryAttempts:         3,
		CorrelationWindowMinutes: 30,
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	envStr(&cfg.DatabaseURL, "DATABASE_URL")
	envStr(&cfg.NatsURL, "NATS_URL")
	envStr(&cfg.LogLevel, "SCRIBE_LOG_LEVEL")
	envStr(&cfg.Provider, "SCRIBE_PROVIDER")
	envStr(&cfg.Model, "SCRIBE_MODEL")
	envStr(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envStr(&cfg.OllamaHost, "OLLAMA_HOST")
	envStr(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envStr(&cfg.SlackAlertChannel, "SLACK_ALERT_CHANNEL")

	envInt(&cfg.Port, "SCRIBE_PORT")
	envInt(&cfg.ChunkSizeLines, "SCRIBE_CHUNK_SIZE_LINES")
	envInt(&cfg.MaxRetryAttempts, "SCRIBE_MAX_RETRY_ATTEMPTS")
	envInt(&cfg.CorrelationWindowMinutes, "SCRIBE_CORRELATION_WINDOW_MINUTES")
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
