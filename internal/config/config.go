package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/joshsymonds/mailrag/internal/llm"
)

// Config is the process configuration, read from the environment.
type Config struct {
	// Directory holding credentials.json, the keyring file store and history.
	ConfigDir string `env:"MAILRAG_CONFIG_DIR"`

	// Model
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-lite"`
	Language     string `env:"MAILRAG_LANGUAGE" envDefault:"English"`

	// Retrieval
	SearchLimit int    `env:"MAILRAG_SEARCH_LIMIT" envDefault:"10"`
	FetchLimit  int    `env:"MAILRAG_FETCH_LIMIT" envDefault:"10"`
	RPS         int    `env:"MAILRAG_RPS" envDefault:"4"`
	FetchFormat string `env:"MAILRAG_FETCH_FORMAT" envDefault:"full"` // "full" or "raw"

	// HTTP surface
	HTTPAddr   string `env:"MAILRAG_HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	CORSOrigin string `env:"MAILRAG_CORS_ORIGIN"`

	// Storage and auth
	HistoryPath string `env:"MAILRAG_HISTORY_PATH"`
	OAuthListen string `env:"MAILRAG_OAUTH_LISTEN" envDefault:"127.0.0.1:0"`
	KeyringDir  string `env:"MAILRAG_KEYRING_DIR"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(env.Options{})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.ConfigDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		c.ConfigDir = filepath.Join(home, ".mailrag")
	}
	if c.HistoryPath == "" {
		c.HistoryPath = filepath.Join(c.ConfigDir, "history.db")
	}
	if c.KeyringDir == "" {
		c.KeyringDir = filepath.Join(c.ConfigDir, "keyring")
	}
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)
	c.FetchFormat = strings.ToLower(strings.TrimSpace(c.FetchFormat))
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.SearchLimit < 1 || c.SearchLimit > 500 {
		errs = append(errs, fmt.Errorf("MAILRAG_SEARCH_LIMIT must be between 1 and 500, got %d", c.SearchLimit))
	}
	if c.FetchLimit < 1 {
		errs = append(errs, fmt.Errorf("MAILRAG_FETCH_LIMIT must be positive, got %d", c.FetchLimit))
	}
	if c.RPS < 1 {
		errs = append(errs, fmt.Errorf("MAILRAG_RPS must be positive, got %d", c.RPS))
	}
	if c.FetchFormat != "full" && c.FetchFormat != "raw" {
		errs = append(errs, fmt.Errorf("MAILRAG_FETCH_FORMAT must be full or raw, got %q", c.FetchFormat))
	}
	if c.GeminiAPIKey != "" {
		if err := llm.ValidateKey(c.GeminiAPIKey); err != nil {
			errs = append(errs, fmt.Errorf("GEMINI_API_KEY: %w", err))
		}
	}
	return errors.Join(errs...)
}

// CredentialsFile is the OAuth client secret downloaded from the Google
// Cloud console.
func (c *Config) CredentialsFile() string {
	return filepath.Join(c.ConfigDir, "credentials.json")
}
