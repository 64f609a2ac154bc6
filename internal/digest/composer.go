// Package digest renders fetched market data into the text of one notification.
package digest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"coin-digest/internal/domain"
)

const (
	timestampLayout     = "2006-01-02 15:04:05"
	descriptionMaxRunes = 200
)

// Composer is a pure renderer; the same inputs always yield the same text.
type Composer struct {
	Markup   Markup
	Location *time.Location
}

func NewComposer(markup Markup, loc *time.Location) *Composer {
	if markup == nil {
		markup = HTMLMarkup{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Composer{Markup: markup, Location: loc}
}

// ComposePriceSection lists every queried id in order, or a single failure
// sentence when fetchErr is set.
func (c *Composer) ComposePriceSection(query domain.PriceQuery, result domain.PriceResult, fetchErr error, ts time.Time) string {
	m := c.Markup
	var b strings.Builder
	b.WriteString(m.Bold("Current Prices:"))
	b.WriteString("\n")
	b.WriteString(m.Italic("Updated on " + ts.In(c.Location).Format(timestampLayout)))
	b.WriteString("\n\n")

	if fetchErr != nil {
		b.WriteString(m.Italic(unavailableSentence("Price data", fetchErr)))
		b.WriteString("\n")
		return b.String()
	}

	for _, id := range query.IDs {
		line := displayName(id) + ": unavailable"
		if price, ok := result.Price(id); ok {
			line = displayName(id) + ": " + formatQuote(price, query.Currency)
		}
		b.WriteString(m.Code(line))
		b.WriteString("\n")
	}
	return b.String()
}

// ComposeTrendingSection renders one paragraph per coin, capped at
// domain.TrendingLimit.
func (c *Composer) ComposeTrendingSection(coins []domain.TrendingCoin, fetchErr error) string {
	m := c.Markup
	var b strings.Builder
	b.WriteString(m.Bold("Trending Coins:"))
	b.WriteString("\n\n")

	if fetchErr != nil {
		b.WriteString(m.Italic(unavailableSentence("Trending data", fetchErr)))
		b.WriteString("\n")
		return b.String()
	}
	if len(coins) == 0 {
		b.WriteString(m.Italic("No trending coins right now."))
		b.WriteString("\n")
		return b.String()
	}
	if len(coins) > domain.TrendingLimit {
		coins = coins[:domain.TrendingLimit]
	}

	paragraphs := make([]string, 0, len(coins))
	for i, coin := range coins {
		paragraphs = append(paragraphs, c.trendingParagraph(i+1, coin))
	}
	b.WriteString(strings.Join(paragraphs, "\n\n"))
	b.WriteString("\n")
	return b.String()
}

func (c *Composer) trendingParagraph(pos int, coin domain.TrendingCoin) string {
	m := c.Markup
	name := coin.Name
	if name == "" {
		name = notAvailable
	}
	title := fmt.Sprintf("%d. %s", pos, name)
	if coin.Symbol != "" {
		title += " (" + strings.ToUpper(coin.Symbol) + ")"
	}
	desc := strings.TrimSpace(coin.Description)
	if desc == "" {
		desc = domain.DefaultDescription
	}

	lines := []string{
		m.Bold(title),
		m.Text("Rank: " + formatRank(coin.MarketCapRank)),
		m.Text("Price: " + formatUSD(coin.PriceUSD)),
		m.Text("24h Change: " + formatPercent(coin.Change24hPct)),
		m.Text("Market Cap: " + formatMoneyText(coin.MarketCap)),
		m.Text("Volume: " + formatMoneyText(coin.TotalVolume)),
		m.Italic(truncateRunes(desc, descriptionMaxRunes)),
	}
	return strings.Join(lines, "\n")
}

// ComposeFearGreedSection renders the sentiment index reading.
func (c *Composer) ComposeFearGreedSection(point domain.FearGreed, fetchErr error) string {
	m := c.Markup
	var b strings.Builder
	b.WriteString(m.Bold("Fear & Greed Index:"))
	b.WriteString("\n")
	if fetchErr != nil {
		b.WriteString(m.Italic(unavailableSentence("Sentiment data", fetchErr)))
		b.WriteString("\n")
		return b.String()
	}
	label := point.Classification
	if label == "" {
		label = notAvailable
	}
	b.WriteString(m.Code(fmt.Sprintf("%d/100 (%s)", point.Value, label)))
	b.WriteString("\n")
	return b.String()
}

// ComposeMessage joins sections with a single blank line; empty sections are skipped.
func ComposeMessage(priceSection string, sections ...string) string {
	all := append([]string{priceSection}, sections...)
	parts := make([]string, 0, len(all))
	for _, s := range all {
		s = strings.TrimRight(s, "\n")
		if strings.TrimSpace(s) == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}

func unavailableSentence(subject string, err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s is currently unavailable (status %d).", subject, apiErr.StatusCode)
	}
	return subject + " is currently unavailable."
}
