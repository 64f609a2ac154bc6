// Package app assembles the digest pipeline from configuration.
package app

import (
	"context"
	"log"

	"coin-digest/internal/bot"
	"coin-digest/internal/cache"
	"coin-digest/internal/config"
	"coin-digest/internal/db"
	"coin-digest/internal/digest"
	"coin-digest/internal/domain"
	"coin-digest/internal/provider"
	"coin-digest/internal/repository"
	"coin-digest/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

var (
	initRedisFunc     = cache.InitRedis
	initPostgresFunc  = db.InitPostgres
	newTelegramSink   = bot.NewTelegramSink
	runMigrationsFunc = func(ctx context.Context, repo *repository.DeliveryRepository) error {
		return repo.RunMigrations(ctx)
	}
)

// Stores holds the optional backends. Nil fields mean the feature is off.
type Stores struct {
	Redis      *redis.Client
	Pool       *pgxpool.Pool
	Deliveries *repository.DeliveryRepository
}

// Close releases whatever was opened.
func (s Stores) Close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Printf("Warning: closing redis: %v", err)
		}
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// OpenStores connects to Redis and Postgres when configured. Connection
// failures are logged and leave the corresponding feature disabled.
func OpenStores(ctx context.Context, cfg *config.Config, tracer trace.Tracer) Stores {
	var stores Stores

	if cfg.RedisURL != "" {
		client, err := initRedisFunc(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: %v, last-digest cache disabled", err)
		} else {
			stores.Redis = client
		}
	}

	if cfg.DatabaseURL != "" {
		pool, err := initPostgresFunc(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: %v, delivery log disabled", err)
			return stores
		}
		repo := repository.NewDeliveryRepository(pool, tracer)
		if err := runMigrationsFunc(ctx, repo); err != nil {
			log.Printf("Warning: delivery log migrations failed: %v", err)
			pool.Close()
			return stores
		}
		stores.Pool = pool
		stores.Deliveries = repo
	}

	return stores
}

// NewSink returns the Telegram sink, or nil when no bot token is configured.
func NewSink(cfg *config.Config) service.Sink {
	if cfg.TelegramBotToken == "" {
		return nil
	}
	sink, err := newTelegramSink(cfg.TelegramBotToken, cfg.TelegramParseMode)
	if err != nil {
		log.Printf("Warning: telegram sink disabled: %v", err)
		return nil
	}
	return sink
}

// NewDigestService wires providers, composer and stores into a DigestService.
// markup overrides the markup derived from TELEGRAM_PARSE_MODE when non-nil.
func NewDigestService(cfg *config.Config, tracer trace.Tracer, stores Stores, sink service.Sink, markup digest.Markup) (*service.DigestService, error) {
	query, err := domain.NewPriceQuery(cfg.AssetIDs, cfg.Currency)
	if err != nil {
		return nil, err
	}
	if markup == nil {
		markup = digest.MarkupFor(cfg.TelegramParseMode)
	}

	composer := digest.NewComposer(markup, cfg.Location())
	fetcher := provider.NewCoinGeckoProvider(tracer, cfg.CoinGeckoBaseURL, cfg.CoinGeckoAPIKey)

	var redisClient service.RedisClient
	if stores.Redis != nil {
		redisClient = stores.Redis
	}

	svc := service.NewDigestService(tracer, fetcher, composer, sink, redisClient, service.DigestOptions{
		Query:            query,
		ChatID:           cfg.TelegramChatID,
		TrendingEnabled:  cfg.TrendingEnabled,
		FearGreedEnabled: cfg.FearGreedEnabled,
	})
	if cfg.FearGreedEnabled {
		svc.SetSentimentFetcher(provider.NewFearGreedProvider(tracer))
	}
	if stores.Deliveries != nil {
		svc.SetDeliveryRecorder(stores.Deliveries)
	}
	return svc, nil
}
