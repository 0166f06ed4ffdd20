// Package config defines the top-level configuration for the stats engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"nftstats/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by NFTSTATS_* environment variables.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Coingecko CoingeckoConfig `toml:"coingecko"`
	OpenSea   OpenSeaConfig   `toml:"opensea"`
	MagicEden MagicEdenConfig `toml:"magiceden"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// StoreConfig holds the statistics store parameters. Backend selects between
// DynamoDB and the in-process memory store (local development only).
type StoreConfig struct {
	Backend   string `toml:"backend"`
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Table     string `toml:"table"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// RedisConfig holds Redis connection parameters. Redis backs the distributed
// switchover lock, the outbound rate limiter, and the sync cursor cache; with
// Enabled false all three degrade to their in-process fallbacks.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for sale exports.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// CoingeckoConfig holds the historical price source parameters.
type CoingeckoConfig struct {
	BaseURL string `toml:"base_url"`
	ApiKey  string `toml:"api_key"`
}

// OpenSeaConfig holds the OpenSea adapter parameters. Chains selects which
// EVM chains the adapter polls.
type OpenSeaConfig struct {
	Enabled    bool     `toml:"enabled"`
	BaseURL    string   `toml:"base_url"`
	ApiKey     string   `toml:"api_key"`
	Chains     []string `toml:"chains"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	StreamURL  string   `toml:"stream_url"`
	// Stream enables the live websocket feed alongside polling.
	Stream bool `toml:"stream"`
}

// MagicEdenConfig holds the Magic Eden adapter parameters.
type MagicEdenConfig struct {
	Enabled    bool     `toml:"enabled"`
	BaseURL    string   `toml:"base_url"`
	ApiKey     string   `toml:"api_key"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// PipelineConfig holds ingest loop and export parameters.
type PipelineConfig struct {
	SyncInterval  duration `toml:"sync_interval"`
	ExportEnabled bool     `toml:"export_enabled"`
	ExportCron    string   `toml:"export_cron"`
	ExportPrefix  string   `toml:"export_prefix"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Store: StoreConfig{
			Backend: "dynamo",
			Region:  "us-east-1",
			Table:   "nftstats",
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "nftstats-exports",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Coingecko: CoingeckoConfig{
			BaseURL: "https://api.coingecko.com/api/v3",
		},
		OpenSea: OpenSeaConfig{
			Enabled:    true,
			Chains:     []string{"ethereum", "polygon"},
			RateLimit:  4,
			RateWindow: duration{time.Second},
			Stream:     false,
		},
		MagicEden: MagicEdenConfig{
			Enabled:    true,
			RateLimit:  2,
			RateWindow: duration{time.Second},
		},
		Pipeline: PipelineConfig{
			SyncInterval:  duration{5 * time.Minute},
			ExportEnabled: false,
			ExportCron:    "30 0 * * *",
			ExportPrefix:  "exports/sales",
		},
		Notify: NotifyConfig{
			Events: []string{"switchover", "ingest_failure", "export_failure"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"ingest": true,
	"export": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validStoreBackends enumerates the accepted values for StoreConfig.Backend.
var validStoreBackends = map[string]bool{
	"dynamo": true,
	"memory": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: ingest, export, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Store
	if !validStoreBackends[strings.ToLower(c.Store.Backend)] {
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: dynamo, memory)", c.Store.Backend))
	}
	if strings.ToLower(c.Store.Backend) == "dynamo" {
		if c.Store.Table == "" {
			errs = append(errs, "store: table must not be empty for the dynamo backend")
		}
		if c.Store.Region == "" {
			errs = append(errs, "store: region must not be empty for the dynamo backend")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Coingecko
	if c.Coingecko.BaseURL == "" {
		errs = append(errs, "coingecko: base_url must not be empty")
	}

	// Marketplaces — at least one adapter must be enabled for ingest modes.
	needsIngest := c.Mode == "ingest" || c.Mode == "full"
	if needsIngest && !c.OpenSea.Enabled && !c.MagicEden.Enabled {
		errs = append(errs, "at least one marketplace must be enabled for mode "+c.Mode)
	}
	if c.OpenSea.Enabled {
		if len(c.OpenSea.Chains) == 0 {
			errs = append(errs, "opensea: chains must not be empty when enabled")
		}
		for _, ch := range c.OpenSea.Chains {
			if !domain.Chain(ch).Valid() {
				errs = append(errs, fmt.Sprintf("opensea: unknown chain %q", ch))
			}
		}
		if c.OpenSea.Stream && c.OpenSea.ApiKey == "" {
			errs = append(errs, "opensea: api_key is required when stream is enabled")
		}
		if c.OpenSea.RateLimit > 0 && c.OpenSea.RateWindow.Duration <= 0 {
			errs = append(errs, "opensea: rate_window must be > 0 when rate_limit is set")
		}
	}
	if c.MagicEden.Enabled {
		if c.MagicEden.RateLimit > 0 && c.MagicEden.RateWindow.Duration <= 0 {
			errs = append(errs, "magiceden: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Pipeline
	if needsIngest && c.Pipeline.SyncInterval.Duration <= 0 {
		errs = append(errs, "pipeline: sync_interval must be > 0")
	}
	needsExport := c.Pipeline.ExportEnabled || c.Mode == "export"
	if needsExport {
		if c.Pipeline.ExportCron == "" {
			errs = append(errs, "pipeline: export_cron must not be empty when export is enabled")
		}
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when export is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when export is enabled")
		}
	}

	// Notify — Telegram credentials must be set together.
	tk := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tk != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// OpenSeaChains converts the configured chain names to domain chains.
// Validate has already rejected unknown names.
func (c *Config) OpenSeaChains() []domain.Chain {
	chains := make([]domain.Chain, 0, len(c.OpenSea.Chains))
	for _, ch := range c.OpenSea.Chains {
		chains = append(chains, domain.Chain(ch))
	}
	return chains
}
