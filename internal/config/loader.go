package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies NFTSTATS_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known NFTSTATS_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Store ──
	setStr(&cfg.Store.Backend, "NFTSTATS_STORE_BACKEND")
	setStr(&cfg.Store.Endpoint, "NFTSTATS_STORE_ENDPOINT")
	setStr(&cfg.Store.Region, "NFTSTATS_STORE_REGION")
	setStr(&cfg.Store.Table, "NFTSTATS_STORE_TABLE")
	setStr(&cfg.Store.AccessKey, "NFTSTATS_STORE_ACCESS_KEY")
	setStr(&cfg.Store.SecretKey, "NFTSTATS_STORE_SECRET_KEY")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "NFTSTATS_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "NFTSTATS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NFTSTATS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NFTSTATS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NFTSTATS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "NFTSTATS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "NFTSTATS_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "NFTSTATS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NFTSTATS_S3_REGION")
	setStr(&cfg.S3.Bucket, "NFTSTATS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NFTSTATS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NFTSTATS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "NFTSTATS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "NFTSTATS_S3_FORCE_PATH_STYLE")

	// ── Coingecko ──
	setStr(&cfg.Coingecko.BaseURL, "NFTSTATS_COINGECKO_BASE_URL")
	setStr(&cfg.Coingecko.ApiKey, "NFTSTATS_COINGECKO_API_KEY")

	// ── OpenSea ──
	setBool(&cfg.OpenSea.Enabled, "NFTSTATS_OPENSEA_ENABLED")
	setStr(&cfg.OpenSea.BaseURL, "NFTSTATS_OPENSEA_BASE_URL")
	setStr(&cfg.OpenSea.ApiKey, "NFTSTATS_OPENSEA_API_KEY")
	setStringSlice(&cfg.OpenSea.Chains, "NFTSTATS_OPENSEA_CHAINS")
	setInt(&cfg.OpenSea.RateLimit, "NFTSTATS_OPENSEA_RATE_LIMIT")
	setDuration(&cfg.OpenSea.RateWindow, "NFTSTATS_OPENSEA_RATE_WINDOW")
	setStr(&cfg.OpenSea.StreamURL, "NFTSTATS_OPENSEA_STREAM_URL")
	setBool(&cfg.OpenSea.Stream, "NFTSTATS_OPENSEA_STREAM")

	// ── Magic Eden ──
	setBool(&cfg.MagicEden.Enabled, "NFTSTATS_MAGICEDEN_ENABLED")
	setStr(&cfg.MagicEden.BaseURL, "NFTSTATS_MAGICEDEN_BASE_URL")
	setStr(&cfg.MagicEden.ApiKey, "NFTSTATS_MAGICEDEN_API_KEY")
	setInt(&cfg.MagicEden.RateLimit, "NFTSTATS_MAGICEDEN_RATE_LIMIT")
	setDuration(&cfg.MagicEden.RateWindow, "NFTSTATS_MAGICEDEN_RATE_WINDOW")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.SyncInterval, "NFTSTATS_PIPELINE_SYNC_INTERVAL")
	setBool(&cfg.Pipeline.ExportEnabled, "NFTSTATS_PIPELINE_EXPORT_ENABLED")
	setStr(&cfg.Pipeline.ExportCron, "NFTSTATS_PIPELINE_EXPORT_CRON")
	setStr(&cfg.Pipeline.ExportPrefix, "NFTSTATS_PIPELINE_EXPORT_PREFIX")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NFTSTATS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NFTSTATS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NFTSTATS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NFTSTATS_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "NFTSTATS_MODE")
	setStr(&cfg.LogLevel, "NFTSTATS_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
