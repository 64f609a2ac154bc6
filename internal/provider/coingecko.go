package provider

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"coin-digest/internal/domain"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	CoinGeckoBaseURL    = "https://api.coingecko.com/api/v3"
	coingeckoProHost    = "pro-api.coingecko.com"
	demoAPIKeyHeader    = "x-cg-demo-api-key"
	proAPIKeyHeader     = "x-cg-pro-api-key"
	coingeckoEndpoint   = "coingecko"
	maxDescriptionRunes = 1000
)

// CoinGeckoProvider fetches simple prices and the trending ranking from CoinGecko.
type CoinGeckoProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	tracer  trace.Tracer
}

// NewCoinGeckoProvider returns a provider for baseURL. An empty baseURL selects
// the public API; an empty apiKey sends no key header.
func NewCoinGeckoProvider(tracer trace.Tracer, baseURL, apiKey string) *CoinGeckoProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = CoinGeckoBaseURL
	}
	return &CoinGeckoProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		tracer:  tracer,
	}
}

// FetchPrices prices every id of the query in a single API call.
func (p *CoinGeckoProvider) FetchPrices(ctx context.Context, query domain.PriceQuery) (domain.PriceResult, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-prices")
	defer span.End()
	span.SetAttributes(attribute.Int("ids", len(query.IDs)))

	if len(query.IDs) == 0 {
		return domain.PriceResult{}, domain.ErrEmptyQuery
	}
	currency := query.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	params := url.Values{}
	params.Set("ids", strings.Join(query.IDs, ","))
	params.Set("vs_currencies", currency)

	body, err := p.doRequest(ctx, "/simple/price?"+params.Encode())
	if err != nil {
		return domain.PriceResult{}, fmt.Errorf("fetch prices: %w", err)
	}

	prices, err := parseSimplePrices(body, currency)
	if err != nil {
		return domain.PriceResult{}, fmt.Errorf("parse prices: %w", err)
	}
	return domain.PriceResult{Currency: currency, Prices: prices}, nil
}

// FetchTrending returns at most domain.TrendingLimit coins in upstream order.
func (p *CoinGeckoProvider) FetchTrending(ctx context.Context) ([]domain.TrendingCoin, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-trending")
	defer span.End()

	body, err := p.doRequest(ctx, "/search/trending")
	if err != nil {
		return nil, fmt.Errorf("fetch trending: %w", err)
	}

	coins, err := parseTrending(body)
	if err != nil {
		return nil, fmt.Errorf("parse trending: %w", err)
	}
	span.SetAttributes(attribute.Int("coins", len(coins)))
	return coins, nil
}

func (p *CoinGeckoProvider) doRequest(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set(p.apiKeyHeader(), p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &domain.APIError{
			Endpoint:   coingeckoEndpoint,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	return io.ReadAll(resp.Body)
}

func (p *CoinGeckoProvider) apiKeyHeader() string {
	if strings.Contains(p.baseURL, coingeckoProHost) {
		return proAPIKeyHeader
	}
	return demoAPIKeyHeader
}

// parseSimplePrices reads {"bitcoin": {"usd": 97000}, ...}. Entries without a
// numeric price for currency are dropped and end up unavailable.
func parseSimplePrices(body []byte, currency string) (map[string]float64, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON response")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: price response is not an object", domain.ErrPartialData)
	}

	prices := make(map[string]float64)
	root.ForEach(func(key, value gjson.Result) bool {
		price := value.Map()[currency]
		if price.Type != gjson.Number {
			log.Printf("coingecko: no %s price for %s, marking unavailable", currency, key.String())
			return true
		}
		prices[key.String()] = price.Float()
		return true
	})
	return prices, nil
}

// parseTrending normalizes /search/trending. Missing nested fields become nil or
// their documented default instead of failing the call.
func parseTrending(body []byte) ([]domain.TrendingCoin, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON response")
	}
	list := gjson.GetBytes(body, "coins")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: trending response has no coins", domain.ErrPartialData)
	}

	entries := list.Array()
	if len(entries) > domain.TrendingLimit {
		entries = entries[:domain.TrendingLimit]
	}

	coins := make([]domain.TrendingCoin, 0, len(entries))
	for _, entry := range entries {
		item := entry.Get("item")
		coin := domain.TrendingCoin{
			Name:          strings.TrimSpace(item.Get("name").String()),
			Symbol:        strings.TrimSpace(item.Get("symbol").String()),
			MarketCapRank: optionalInt(item.Get("market_cap_rank")),
			PriceUSD:      optionalFloat(item.Get("data.price")),
			Change24hPct:  optionalFloat(item.Get("data.price_change_percentage_24h.usd")),
			MarketCap:     optionalText(item.Get("data.market_cap")),
			TotalVolume:   optionalText(item.Get("data.total_volume")),
			Description:   describe(item.Get("data.content.description")),
		}
		if coin.Name == "" {
			coin.Name = strings.TrimSpace(item.Get("id").String())
		}
		coins = append(coins, coin)
	}
	return coins, nil
}

func optionalInt(r gjson.Result) *int {
	if r.Type != gjson.Number {
		return nil
	}
	v := int(r.Int())
	return &v
}

// optionalFloat accepts numbers and numeric strings; CoinGecko has sent both.
func optionalFloat(r gjson.Result) *float64 {
	switch r.Type {
	case gjson.Number:
		v := r.Float()
		return &v
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return nil
		}
		return &v
	default:
		return nil
	}
}

func optionalText(r gjson.Result) *string {
	switch r.Type {
	case gjson.String, gjson.Number:
		v := strings.TrimSpace(r.String())
		if v == "" {
			return nil
		}
		return &v
	default:
		return nil
	}
}

func describe(r gjson.Result) string {
	desc := strings.TrimSpace(r.String())
	if desc == "" {
		return domain.DefaultDescription
	}
	if runes := []rune(desc); len(runes) > maxDescriptionRunes {
		desc = string(runes[:maxDescriptionRunes])
	}
	return desc
}
