package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCurrency is the only quote currency the digest renders.
const DefaultCurrency = "usd"

// TrendingLimit caps the number of trending coins kept from upstream.
const TrendingLimit = 10

// DefaultDescription replaces a missing or blank trending coin description.
const DefaultDescription = "No description available."

// DefaultAssetIDs are the CoinGecko identifiers tracked when none are configured.
var DefaultAssetIDs = []string{"bitcoin", "ethereum", "solana", "algorand"}

var ErrEmptyQuery = errors.New("price query has no asset identifiers")

// PriceQuery is an ordered set of CoinGecko asset identifiers priced in one currency.
type PriceQuery struct {
	IDs      []string
	Currency string
}

// NewPriceQuery normalizes ids (trimmed, lower-cased, first occurrence wins)
// and defaults the currency to usd.
func NewPriceQuery(ids []string, currency string) (PriceQuery, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.ToLower(strings.TrimSpace(raw))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return PriceQuery{}, ErrEmptyQuery
	}

	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return PriceQuery{IDs: out, Currency: currency}, nil
}

// PriceResult maps asset identifiers to their quoted price. Absent ids are unavailable.
type PriceResult struct {
	Currency string             `json:"currency"`
	Prices   map[string]float64 `json:"prices"`
}

func (r PriceResult) Price(id string) (float64, bool) {
	p, ok := r.Prices[id]
	return p, ok
}

// TrendingCoin is one entry of the upstream trending ranking. Nil pointers mean
// the field was absent upstream and render as N/A.
type TrendingCoin struct {
	Name          string   `json:"name"`
	Symbol        string   `json:"symbol"`
	MarketCapRank *int     `json:"market_cap_rank,omitempty"`
	PriceUSD      *float64 `json:"price_usd,omitempty"`
	Change24hPct  *float64 `json:"change_24h_pct,omitempty"`
	MarketCap     *string  `json:"market_cap,omitempty"`
	TotalVolume   *string  `json:"total_volume,omitempty"`
	Description   string   `json:"description"`
}

// FearGreed is the latest crypto Fear & Greed index reading.
type FearGreed struct {
	Value          int       `json:"value"`
	Classification string    `json:"classification"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	SectionPrices    = "prices"
	SectionTrending  = "trending"
	SectionFearGreed = "fear_greed"
)

type Section struct {
	Name string
	Body string
}

// Notification is the ordered set of rendered sections for one run.
type Notification struct {
	Sections  []Section
	CreatedAt time.Time
}

// Text joins the non-empty section bodies with a blank line.
func (n Notification) Text() string {
	parts := make([]string, 0, len(n.Sections))
	for _, s := range n.Sections {
		body := strings.TrimRight(s.Body, "\n")
		if body == "" {
			continue
		}
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n\n")
}

type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
	DeliveryDryRun DeliveryStatus = "dry_run"
)

// DeliveryRecord audits one attempt to hand a digest to the sink.
type DeliveryRecord struct {
	RunID        uuid.UUID      `json:"run_id"`
	ChatID       string         `json:"chat_id"`
	Status       DeliveryStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
	MessageChars int            `json:"message_chars"`
	CreatedAt    time.Time      `json:"created_at"`
}

// DigestSnapshot is the last delivered message as kept in the cache.
type DigestSnapshot struct {
	RunID     uuid.UUID `json:"run_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
