package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "nftstats/internal/blob/s3"
	"nftstats/internal/cache/redis"
	"nftstats/internal/config"
	"nftstats/internal/domain"
	"nftstats/internal/notify"
	"nftstats/internal/platform/coingecko"
	"nftstats/internal/store/dynamo"
	"nftstats/internal/store/memory"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Store
	Store domain.Store

	// Price source
	PriceSource domain.PriceSource

	// Redis-backed coordination (nil when redis is disabled)
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	CursorCache domain.CursorCache

	// Blob storage (nil unless export is enabled)
	BlobWriter domain.BlobWriter

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 returns true for modes that require object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Pipeline.ExportEnabled || strings.ToLower(cfg.Mode) == "export"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Store ---
	switch strings.ToLower(cfg.Store.Backend) {
	case "memory":
		deps.Store = memory.New()
		logger.Warn("using in-memory store; data is lost on shutdown")
	default:
		dynamoClient, err := dynamo.New(ctx, dynamo.ClientConfig{
			Endpoint:  cfg.Store.Endpoint,
			Region:    cfg.Store.Region,
			Table:     cfg.Store.Table,
			AccessKey: cfg.Store.AccessKey,
			SecretKey: cfg.Store.SecretKey,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: dynamo: %w", err)
		}
		deps.Store = dynamo.NewStore(dynamoClient)
	}

	// --- Price source ---
	deps.PriceSource = coingecko.NewClient(cfg.Coingecko.BaseURL, cfg.Coingecko.ApiKey)

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.CursorCache = redis.NewCursorCache(redisClient)
	}

	// --- S3 blob storage (only when export is enabled) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
