// Package config loads environment variables and provides a typed Config used across the service.
// Defaults let the binary run locally with minimal setup. A YAML file named by CONFIG_FILE may
// supply values too; environment variables always win over the file.
// For required Twitch credentials, use ValidateTwitchReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/onnwee/streamwatch/db"
	"github.com/onnwee/streamwatch/twitchapi"
)

type Config struct {
	// Twitch
	TwitchClientID        string `yaml:"twitch_client_id"`
	TwitchClientSecret    string `yaml:"twitch_client_secret"`
	TwitchTokenURL        string `yaml:"twitch_token_url"`
	TwitchHelixURL        string `yaml:"twitch_helix_url"`
	TwitchInvalidateOn401 bool   `yaml:"twitch_invalidate_on_401"`

	// Outbound HTTP
	HTTPClientTimeout time.Duration `yaml:"http_client_timeout"`

	// Cron trigger
	CronSecret string `yaml:"cron_secret"`

	// Database
	DBDsn string `yaml:"db_dsn"`

	// HTTP server
	HTTPAddr string `yaml:"http_addr"`

	// Reconciliation
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	PersistWorkers    int           `yaml:"persist_workers"`
	PersistQueueSize  int           `yaml:"persist_queue_size"`
	UpdateConcurrency int           `yaml:"update_concurrency"`
}

// Load reads CONFIG_FILE (if set) and environment variables and applies defaults. It doesn't fail
// if Twitch creds are missing; status fetches then fail open. Use ValidateTwitchReady when they're required.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML path; empty skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{
		TwitchTokenURL:    twitchapi.DefaultTokenURL,
		TwitchHelixURL:    twitchapi.DefaultHelixURL,
		HTTPClientTimeout: 10 * time.Second,
		DBDsn:             db.DefaultDSN,
		HTTPAddr:          ":8080",
		PersistWorkers:    2,
		PersistQueueSize:  256,
		UpdateConcurrency: 8,
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	setString(&cfg.TwitchClientID, "TWITCH_CLIENT_ID")
	setString(&cfg.TwitchClientSecret, "TWITCH_CLIENT_SECRET")
	setString(&cfg.TwitchTokenURL, "TWITCH_TOKEN_URL")
	setString(&cfg.TwitchHelixURL, "TWITCH_HELIX_URL")
	setString(&cfg.CronSecret, "CRON_SECRET")
	setString(&cfg.DBDsn, "DB_DSN")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")

	if v := os.Getenv("TWITCH_INVALIDATE_ON_401"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TWITCH_INVALIDATE_ON_401: %w", err)
		}
		cfg.TwitchInvalidateOn401 = b
	}
	if err := setDuration(&cfg.HTTPClientTimeout, "HTTP_CLIENT_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.ReconcileInterval, "RECONCILE_INTERVAL"); err != nil {
		return nil, err
	}
	if err := setPositiveInt(&cfg.PersistWorkers, "PERSIST_WORKERS"); err != nil {
		return nil, err
	}
	if err := setPositiveInt(&cfg.PersistQueueSize, "PERSIST_QUEUE_SIZE"); err != nil {
		return nil, err
	}
	if err := setPositiveInt(&cfg.UpdateConcurrency, "UPDATE_CONCURRENCY"); err != nil {
		return nil, err
	}

	if cfg.HTTPClientTimeout <= 0 {
		return nil, fmt.Errorf("http client timeout must be positive, got %s", cfg.HTTPClientTimeout)
	}
	if cfg.ReconcileInterval < 0 {
		return nil, fmt.Errorf("reconcile interval must not be negative, got %s", cfg.ReconcileInterval)
	}
	return cfg, nil
}

// ValidateTwitchReady checks the client-credentials pair needed for live status.
func (c *Config) ValidateTwitchReady() error {
	if c.TwitchClientID == "" || c.TwitchClientSecret == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET")
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s (duration, e.g. 30s): %w", key, err)
	}
	*dst = d
	return nil
}

func setPositiveInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid %s: must be a positive integer, got %q", key, v)
	}
	*dst = n
	return nil
}
