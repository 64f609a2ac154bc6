package bot

import (
	"context"
	"log"
	"time"

	"coin-digest/internal/digest"
	"coin-digest/internal/domain"
)

// DigestReader is what the command bot needs from the digest service.
type DigestReader interface {
	Preview(ctx context.Context) (string, error)
	Prices(ctx context.Context, ids []string) (domain.PriceQuery, domain.PriceResult, error)
	Trending(ctx context.Context) ([]domain.TrendingCoin, error)
	Composer() *digest.Composer
}

const commandTimeout = 45 * time.Second

func digestReply(ctx context.Context, reader DigestReader) string {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	text, err := reader.Preview(ctx)
	if err != nil {
		log.Printf("bot /digest error: %v", err)
		return "Digest is currently unavailable."
	}
	return text
}

// pricesReply prices the ids given as command arguments, or the configured
// assets when there are none.
func pricesReply(ctx context.Context, reader DigestReader, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	query, result, err := reader.Prices(ctx, args)
	if err != nil {
		log.Printf("bot /prices error: %v", err)
	}
	return reader.Composer().ComposePriceSection(query, result, err, time.Now())
}

func trendingReply(ctx context.Context, reader DigestReader) string {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	coins, err := reader.Trending(ctx)
	if err != nil {
		log.Printf("bot /trending error: %v", err)
	}
	return reader.Composer().ComposeTrendingSection(coins, err)
}
