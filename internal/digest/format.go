package digest

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"coin-digest/internal/domain"

	"github.com/shopspring/decimal"
)

const notAvailable = "N/A"

// displayName upper-cases the first letter of an asset id and lower-cases the rest.
func displayName(id string) string {
	if id == "" {
		return id
	}
	r, size := utf8.DecodeRuneInString(id)
	return string(unicode.ToUpper(r)) + strings.ToLower(id[size:])
}

// formatAmount renders a price with no float artifacts: 50000 stays 50000 and
// 0.0000123 keeps its digits.
func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// formatQuote prefixes usd prices with $ and suffixes any other currency code.
func formatQuote(v float64, currency string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" || currency == domain.DefaultCurrency {
		return "$" + formatAmount(v)
	}
	return formatAmount(v) + " " + strings.ToUpper(currency)
}

func formatUSD(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return "$" + formatAmount(*v)
}

func formatPercent(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return decimal.NewFromFloat(*v).StringFixed(2) + "%"
}

func formatRank(v *int) string {
	if v == nil {
		return notAvailable
	}
	return "#" + strconv.Itoa(*v)
}

// formatMoneyText handles CoinGecko's preformatted amounts ("$1,234") as well
// as bare numbers.
func formatMoneyText(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return notAvailable
	}
	s := strings.TrimSpace(*v)
	if strings.HasPrefix(s, "$") {
		return s
	}
	return "$" + s
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
