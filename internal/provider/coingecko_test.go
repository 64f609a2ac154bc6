package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"coin-digest/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestCoinGecko(t *testing.T, baseURL, apiKey string, fn roundTripFunc) *CoinGeckoProvider {
	t.Helper()
	p := NewCoinGeckoProvider(trace.NewNoopTracerProvider().Tracer("test"), baseURL, apiKey)
	p.client = &http.Client{Transport: fn}
	return p
}

func TestCoinGeckoProviderFetchPrices(t *testing.T) {
	t.Parallel()

	var calls int
	provider := newTestCoinGecko(t, "http://example", "demo-key", func(req *http.Request) (*http.Response, error) {
		calls++
		if req.URL.Path != "/simple/price" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if got := req.URL.Query().Get("ids"); got != "bitcoin,ethereum,solana" {
			t.Fatalf("unexpected ids: %s", got)
		}
		if got := req.URL.Query().Get("vs_currencies"); got != "usd" {
			t.Fatalf("unexpected currency: %s", got)
		}
		if got := req.Header.Get("x-cg-demo-api-key"); got != "demo-key" {
			t.Fatalf("expected demo api key header, got %q", got)
		}
		return jsonResponse(http.StatusOK, `{"bitcoin":{"usd":50000},"ethereum":{"usd":3000}}`), nil
	})

	query, _ := domain.NewPriceQuery([]string{"bitcoin", "ethereum", "solana"}, "usd")
	result, err := provider.FetchPrices(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single batched request, got %d", calls)
	}
	if p, ok := result.Price("bitcoin"); !ok || p != 50000 {
		t.Fatalf("unexpected bitcoin price: %v %v", p, ok)
	}
	if p, ok := result.Price("ethereum"); !ok || p != 3000 {
		t.Fatalf("unexpected ethereum price: %v %v", p, ok)
	}
	if _, ok := result.Price("solana"); ok {
		t.Fatal("solana should be unavailable")
	}
}

func TestCoinGeckoProviderFetchPricesStatusError(t *testing.T) {
	t.Parallel()

	provider := newTestCoinGecko(t, "http://example", "", func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("x-cg-demo-api-key") != "" {
			t.Fatal("no api key header expected without a key")
		}
		return jsonResponse(http.StatusTooManyRequests, `{"status":{"error_code":429}}`), nil
	})

	query, _ := domain.NewPriceQuery([]string{"bitcoin"}, "")
	_, err := provider.FetchPrices(context.Background(), query)

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || !strings.Contains(apiErr.Body, "429") {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestCoinGeckoProviderTransportError(t *testing.T) {
	t.Parallel()

	provider := newTestCoinGecko(t, "http://example", "", func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	if _, err := provider.FetchTrending(context.Background()); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestCoinGeckoProviderProKeyHeader(t *testing.T) {
	t.Parallel()

	provider := newTestCoinGecko(t, "https://pro-api.coingecko.com/api/v3/", "pro-key", func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("x-cg-pro-api-key") != "pro-key" {
			t.Fatalf("expected pro api key header, got %v", req.Header)
		}
		if req.URL.Path != "/api/v3/simple/price" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{}`), nil
	})

	query, _ := domain.NewPriceQuery([]string{"bitcoin"}, "usd")
	if _, err := provider.FetchPrices(context.Background(), query); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseSimplePricesSkipsMalformedEntries(t *testing.T) {
	prices, err := parseSimplePrices([]byte(`{"bitcoin":{"usd":1.5},"ethereum":null,"solana":{"eur":3},"algorand":{"usd":"x"}}`), "usd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prices) != 1 || prices["bitcoin"] != 1.5 {
		t.Fatalf("unexpected prices: %+v", prices)
	}
}

func TestParseSimplePricesInvalidJSON(t *testing.T) {
	if _, err := parseSimplePrices([]byte(`not json`), "usd"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestCoinGeckoProviderFetchTrendingCapsAndDefaults(t *testing.T) {
	t.Parallel()

	var items []string
	items = append(items, `{"item":{"id":"pepe","name":"Pepe","symbol":"PEPE","market_cap_rank":35,
		"data":{"price":0.0000123,"price_change_percentage_24h":{"usd":5.25},
		"market_cap":"$5,123,456,789","total_volume":"$1,234,567",
		"content":{"title":"Pepe","description":"The most memeable memecoin."}}}}`)
	items = append(items, `{"item":{"id":"bare","name":"Bare","symbol":"BARE","data":{"price":"2.5","content":null}}}`)
	for i := 0; i < 10; i++ {
		items = append(items, fmt.Sprintf(`{"item":{"id":"coin-%d","name":"Coin %d","symbol":"C%d"}}`, i, i, i))
	}
	body := `{"coins":[` + strings.Join(items, ",") + `],"nfts":[]}`

	provider := newTestCoinGecko(t, "http://example", "", func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/search/trending" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, body), nil
	})

	coins, err := provider.FetchTrending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(coins) != domain.TrendingLimit {
		t.Fatalf("expected %d coins, got %d", domain.TrendingLimit, len(coins))
	}

	pepe := coins[0]
	if pepe.Name != "Pepe" || pepe.Symbol != "PEPE" || pepe.MarketCapRank == nil || *pepe.MarketCapRank != 35 {
		t.Fatalf("unexpected first coin: %+v", pepe)
	}
	if pepe.Change24hPct == nil || *pepe.Change24hPct != 5.25 {
		t.Fatalf("unexpected change: %+v", pepe.Change24hPct)
	}
	if pepe.MarketCap == nil || *pepe.MarketCap != "$5,123,456,789" {
		t.Fatalf("unexpected market cap: %+v", pepe.MarketCap)
	}
	if pepe.Description != "The most memeable memecoin." {
		t.Fatalf("unexpected description: %q", pepe.Description)
	}

	bare := coins[1]
	if bare.PriceUSD == nil || *bare.PriceUSD != 2.5 {
		t.Fatalf("numeric string price should parse, got %+v", bare.PriceUSD)
	}
	if bare.Change24hPct != nil || bare.MarketCapRank != nil || bare.MarketCap != nil || bare.TotalVolume != nil {
		t.Fatalf("missing fields should stay nil: %+v", bare)
	}
	if bare.Description != domain.DefaultDescription {
		t.Fatalf("expected default description, got %q", bare.Description)
	}
	if coins[9].Name != "Coin 7" {
		t.Fatalf("expected upstream order to be kept, got %s", coins[9].Name)
	}
}

func TestParseTrendingWithoutCoins(t *testing.T) {
	_, err := parseTrending([]byte(`{"nfts":[]}`))
	if !errors.Is(err, domain.ErrPartialData) {
		t.Fatalf("expected ErrPartialData, got %v", err)
	}
}

func TestParseTrendingFallsBackToID(t *testing.T) {
	coins, err := parseTrending([]byte(`{"coins":[{"item":{"id":"mystery","symbol":"MYS"}}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(coins) != 1 || coins[0].Name != "mystery" {
		t.Fatalf("expected id fallback for name, got %+v", coins)
	}
}
