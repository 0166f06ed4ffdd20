package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Store
	out.Store = cfg.Store
	redact(&out.Store.AccessKey)
	redact(&out.Store.SecretKey)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// API keys
	out.Coingecko = cfg.Coingecko
	redact(&out.Coingecko.ApiKey)
	out.OpenSea = cfg.OpenSea
	redact(&out.OpenSea.ApiKey)
	out.MagicEden = cfg.MagicEden
	redact(&out.MagicEden.ApiKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.OpenSea.Chains != nil {
		out.OpenSea.Chains = make([]string, len(cfg.OpenSea.Chains))
		copy(out.OpenSea.Chains, cfg.OpenSea.Chains)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
