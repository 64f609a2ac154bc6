package main

import (
	"context"
	"fmt"
	"time"

	"coin-digest/internal/domain"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultDeliveryLimit = 20

type digestBackend interface {
	Prices(ctx context.Context, ids []string) (domain.PriceQuery, domain.PriceResult, error)
	Trending(ctx context.Context) ([]domain.TrendingCoin, error)
	Preview(ctx context.Context) (string, error)
}

type deliveryLog interface {
	RecentDeliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)
}

// digestTools adapts the digest service to MCP tool handlers.
type digestTools struct {
	digest     digestBackend
	deliveries deliveryLog
}

type getPricesInput struct {
	IDs []string `json:"ids,omitempty" jsonschema:"CoinGecko coin ids such as bitcoin; defaults to the configured list"`
}

type pricePoint struct {
	ID        string   `json:"id"`
	Price     *float64 `json:"price,omitempty"`
	Available bool     `json:"available"`
}

type getPricesOutput struct {
	Currency string       `json:"currency"`
	Prices   []pricePoint `json:"prices"`
}

type getTrendingInput struct{}

type getTrendingOutput struct {
	Coins []domain.TrendingCoin `json:"coins"`
}

type previewInput struct{}

type previewOutput struct {
	Message string `json:"message"`
}

type recentDeliveriesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of records, newest first"`
}

type deliveryEntry struct {
	RunID        string `json:"run_id"`
	ChatID       string `json:"chat_id"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	MessageChars int    `json:"message_chars"`
	CreatedAt    string `json:"created_at"`
}

type recentDeliveriesOutput struct {
	Deliveries []deliveryEntry `json:"deliveries"`
}

func (t *digestTools) register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_prices",
		Description: "Current spot prices for a list of coin ids.",
	}, t.getPrices)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_trending",
		Description: "Top trending coins by search activity, at most 10.",
	}, t.getTrending)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_digest",
		Description: "Compose the market digest without sending it.",
	}, t.previewDigest)
	if t.deliveries != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "recent_deliveries",
			Description: "Recent digest delivery attempts from the delivery log.",
		}, t.recentDeliveries)
	}
}

func (t *digestTools) getPrices(ctx context.Context, req *mcp.CallToolRequest, in getPricesInput) (*mcp.CallToolResult, getPricesOutput, error) {
	query, result, err := t.digest.Prices(ctx, in.IDs)
	if err != nil {
		return nil, getPricesOutput{}, fmt.Errorf("fetch prices: %w", err)
	}

	out := getPricesOutput{Currency: query.Currency, Prices: make([]pricePoint, 0, len(query.IDs))}
	for _, id := range query.IDs {
		point := pricePoint{ID: id}
		if price, ok := result.Price(id); ok {
			point.Price = &price
			point.Available = true
		}
		out.Prices = append(out.Prices, point)
	}
	return nil, out, nil
}

func (t *digestTools) getTrending(ctx context.Context, req *mcp.CallToolRequest, _ getTrendingInput) (*mcp.CallToolResult, getTrendingOutput, error) {
	coins, err := t.digest.Trending(ctx)
	if err != nil {
		return nil, getTrendingOutput{}, fmt.Errorf("fetch trending: %w", err)
	}
	if coins == nil {
		coins = []domain.TrendingCoin{}
	}
	return nil, getTrendingOutput{Coins: coins}, nil
}

func (t *digestTools) previewDigest(ctx context.Context, req *mcp.CallToolRequest, _ previewInput) (*mcp.CallToolResult, previewOutput, error) {
	text, err := t.digest.Preview(ctx)
	if err != nil {
		return nil, previewOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, previewOutput{Message: text}, nil
}

func (t *digestTools) recentDeliveries(ctx context.Context, req *mcp.CallToolRequest, in recentDeliveriesInput) (*mcp.CallToolResult, recentDeliveriesOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultDeliveryLimit
	}
	records, err := t.deliveries.RecentDeliveries(ctx, limit)
	if err != nil {
		return nil, recentDeliveriesOutput{}, fmt.Errorf("read delivery log: %w", err)
	}
	out := recentDeliveriesOutput{Deliveries: make([]deliveryEntry, 0, len(records))}
	for _, rec := range records {
		out.Deliveries = append(out.Deliveries, deliveryEntry{
			RunID:        rec.RunID.String(),
			ChatID:       rec.ChatID,
			Status:       string(rec.Status),
			Error:        rec.Error,
			MessageChars: rec.MessageChars,
			CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}
