package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"coin-digest/internal/digest"
	"coin-digest/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	lastDigestKey = "digest:last"
	lastDigestTTL = 24 * time.Hour
)

var ErrNoDestination = errors.New("no destination chat configured")

// MarketDataFetcher is the upstream pricing API.
type MarketDataFetcher interface {
	FetchPrices(ctx context.Context, query domain.PriceQuery) (domain.PriceResult, error)
	FetchTrending(ctx context.Context) ([]domain.TrendingCoin, error)
}

type SentimentFetcher interface {
	FetchFearGreed(ctx context.Context) (domain.FearGreed, error)
}

// Sink delivers one formatted message to a chat.
type Sink interface {
	Send(ctx context.Context, chatID, text string) error
}

type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, rec domain.DeliveryRecord) error
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// DigestOptions selects what a run fetches and where it is delivered.
type DigestOptions struct {
	Query            domain.PriceQuery
	ChatID           string
	TrendingEnabled  bool
	FearGreedEnabled bool
}

// DigestService runs the fetch, compose and deliver pipeline once per call.
type DigestService struct {
	tracer     trace.Tracer
	fetcher    MarketDataFetcher
	composer   *digest.Composer
	sink       Sink
	redis      RedisClient
	sentiment  SentimentFetcher
	deliveries DeliveryRecorder
	opts       DigestOptions
	now        func() time.Time
}

func NewDigestService(
	tracer trace.Tracer,
	fetcher MarketDataFetcher,
	composer *digest.Composer,
	sink Sink,
	redisClient RedisClient,
	opts DigestOptions,
) *DigestService {
	return &DigestService{
		tracer:   tracer,
		fetcher:  fetcher,
		composer: composer,
		sink:     sink,
		redis:    redisClient,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *DigestService) SetSentimentFetcher(f SentimentFetcher) {
	s.sentiment = f
}

func (s *DigestService) SetDeliveryRecorder(r DeliveryRecorder) {
	s.deliveries = r
}

// Build fetches prices and the optional sections concurrently and composes
// them. A failed fetch only degrades its own section.
func (s *DigestService) Build(ctx context.Context) (domain.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "digest-service.build")
	defer span.End()

	var (
		prices    domain.PriceResult
		priceErr  error
		coins     []domain.TrendingCoin
		trendErr  error
		sentiment domain.FearGreed
		sentErr   error
	)

	var g errgroup.Group
	g.Go(func() error {
		prices, priceErr = s.fetcher.FetchPrices(ctx, s.opts.Query)
		return nil
	})
	if s.opts.TrendingEnabled {
		g.Go(func() error {
			coins, trendErr = s.fetcher.FetchTrending(ctx)
			return nil
		})
	}
	if s.opts.FearGreedEnabled && s.sentiment != nil {
		g.Go(func() error {
			sentiment, sentErr = s.sentiment.FetchFearGreed(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}

	if priceErr != nil {
		log.Printf("digest: price fetch failed, rendering placeholder: %v", priceErr)
	}
	if trendErr != nil {
		log.Printf("digest: trending fetch failed, rendering placeholder: %v", trendErr)
	}
	if sentErr != nil {
		log.Printf("digest: fear & greed fetch failed, rendering placeholder: %v", sentErr)
	}

	now := s.now()
	n := domain.Notification{CreatedAt: now}
	n.Sections = append(n.Sections, domain.Section{
		Name: domain.SectionPrices,
		Body: s.composer.ComposePriceSection(s.opts.Query, prices, priceErr, now),
	})
	if s.opts.TrendingEnabled {
		n.Sections = append(n.Sections, domain.Section{
			Name: domain.SectionTrending,
			Body: s.composer.ComposeTrendingSection(coins, trendErr),
		})
	}
	if s.opts.FearGreedEnabled && s.sentiment != nil {
		n.Sections = append(n.Sections, domain.Section{
			Name: domain.SectionFearGreed,
			Body: s.composer.ComposeFearGreedSection(sentiment, sentErr),
		})
	}

	span.SetAttributes(
		attribute.Bool("prices.failed", priceErr != nil),
		attribute.Bool("trending.failed", trendErr != nil),
		attribute.Int("sections", len(n.Sections)),
	)
	return n, nil
}

// Preview composes the digest without delivering it.
func (s *DigestService) Preview(ctx context.Context) (string, error) {
	n, err := s.Build(ctx)
	if err != nil {
		return "", err
	}
	return n.Text(), nil
}

// Run builds one digest and hands it to the sink. Only a delivery failure is
// returned as an error, wrapped in *domain.DeliveryError.
func (s *DigestService) Run(ctx context.Context) (domain.DeliveryRecord, error) {
	ctx, span := s.tracer.Start(ctx, "digest-service.run")
	defer span.End()

	rec := domain.DeliveryRecord{RunID: uuid.New(), ChatID: s.opts.ChatID}
	span.SetAttributes(attribute.String("run_id", rec.RunID.String()))

	if s.sink == nil || s.opts.ChatID == "" {
		return s.fail(ctx, span, rec, ErrNoDestination)
	}

	n, err := s.Build(ctx)
	if err != nil {
		return s.fail(ctx, span, rec, err)
	}
	text := n.Text()
	rec.MessageChars = len([]rune(text))

	if err := s.sink.Send(ctx, s.opts.ChatID, text); err != nil {
		return s.fail(ctx, span, rec, err)
	}

	rec.Status = domain.DeliverySent
	rec.CreatedAt = s.now()
	s.cacheLast(ctx, domain.DigestSnapshot{RunID: rec.RunID, Message: text, CreatedAt: rec.CreatedAt})
	s.record(ctx, rec)

	log.Printf("Digest %s delivered to %s (%d chars)", rec.RunID, rec.ChatID, rec.MessageChars)
	return rec, nil
}

// DryRun composes the digest without sending it and logs a dry_run delivery.
func (s *DigestService) DryRun(ctx context.Context) (domain.DeliveryRecord, string, error) {
	ctx, span := s.tracer.Start(ctx, "digest-service.dry-run")
	defer span.End()

	rec := domain.DeliveryRecord{RunID: uuid.New(), ChatID: s.opts.ChatID}
	n, err := s.Build(ctx)
	if err != nil {
		span.RecordError(err)
		return rec, "", err
	}
	text := n.Text()
	rec.Status = domain.DeliveryDryRun
	rec.MessageChars = len([]rune(text))
	rec.CreatedAt = s.now()
	s.record(ctx, rec)
	return rec, text, nil
}

func (s *DigestService) fail(ctx context.Context, span trace.Span, rec domain.DeliveryRecord, err error) (domain.DeliveryRecord, error) {
	deliveryErr := &domain.DeliveryError{ChatID: rec.ChatID, Err: err}
	rec.Status = domain.DeliveryFailed
	rec.Error = err.Error()
	rec.CreatedAt = s.now()
	s.record(ctx, rec)

	span.RecordError(deliveryErr)
	span.SetStatus(codes.Error, deliveryErr.Error())
	return rec, deliveryErr
}

// LastDigest returns the most recently delivered message, if cached.
func (s *DigestService) LastDigest(ctx context.Context) (domain.DigestSnapshot, bool, error) {
	_, span := s.tracer.Start(ctx, "digest-service.last-digest")
	defer span.End()

	if s.redis == nil {
		return domain.DigestSnapshot{}, false, nil
	}
	data, err := s.redis.Get(ctx, lastDigestKey).Bytes()
	if err == redis.Nil {
		return domain.DigestSnapshot{}, false, nil
	}
	if err != nil {
		return domain.DigestSnapshot{}, false, err
	}
	var snap domain.DigestSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.DigestSnapshot{}, false, fmt.Errorf("decode cached digest: %w", err)
	}
	return snap, true, nil
}

// Prices fetches ids, or the configured query when ids is empty.
func (s *DigestService) Prices(ctx context.Context, ids []string) (domain.PriceQuery, domain.PriceResult, error) {
	query := s.opts.Query
	if len(ids) > 0 {
		q, err := domain.NewPriceQuery(ids, s.opts.Query.Currency)
		if err != nil {
			return domain.PriceQuery{}, domain.PriceResult{}, err
		}
		query = q
	}
	result, err := s.fetcher.FetchPrices(ctx, query)
	return query, result, err
}

func (s *DigestService) Trending(ctx context.Context) ([]domain.TrendingCoin, error) {
	return s.fetcher.FetchTrending(ctx)
}

// Composer exposes the renderer so callers can format ad-hoc fetches the same way.
func (s *DigestService) Composer() *digest.Composer {
	return s.composer
}

func (s *DigestService) cacheLast(ctx context.Context, snap domain.DigestSnapshot) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("encode digest cache: %v", err)
		return
	}
	if err := s.redis.Set(ctx, lastDigestKey, data, lastDigestTTL).Err(); err != nil {
		log.Printf("redis cache write error for %s: %v", lastDigestKey, err)
	}
}

func (s *DigestService) record(ctx context.Context, rec domain.DeliveryRecord) {
	if s.deliveries == nil {
		return
	}
	// The audit row is written even when the run itself was cancelled.
	if err := s.deliveries.RecordDelivery(context.WithoutCancel(ctx), rec); err != nil {
		log.Printf("delivery log write error for run %s: %v", rec.RunID, err)
	}
}
