package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"coin-digest/internal/domain"
)

type Config struct {
	TelegramBotToken  string
	TelegramChatID    string
	TelegramParseMode string

	CoinGeckoAPIKey  string
	CoinGeckoBaseURL string

	AssetIDs          []string
	Currency          string
	TrendingEnabled   bool
	FearGreedEnabled  bool
	Timezone          string
	DigestIntervalSec int

	RedisURL    string
	DatabaseURL string

	HTTPPort   int
	HTTPAPIKey string

	MCPTransport string
	MCPHTTPBind  string
	MCPHTTPPort  int

	SSHPort                   int
	SSHHostKeyPath            string
	SSHAuthorizedFingerprints []string
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
		CoinGeckoAPIKey:  strings.TrimSpace(os.Getenv("COINGECKO_API_KEY")),
		RedisURL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		HTTPAPIKey:       strings.TrimSpace(os.Getenv("HTTP_API_KEY")),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.TelegramChatID == "" {
		log.Println("Warning: TELEGRAM_CHAT_ID not set")
	}
	if cfg.CoinGeckoAPIKey == "" {
		log.Println("Warning: COINGECKO_API_KEY not set, using the keyless public API")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, last-digest cache disabled")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set, delivery log disabled")
	}

	cfg.TelegramParseMode = strings.TrimSpace(os.Getenv("TELEGRAM_PARSE_MODE"))
	if cfg.TelegramParseMode == "" {
		cfg.TelegramParseMode = "HTML"
	}

	cfg.CoinGeckoBaseURL = strings.TrimSpace(os.Getenv("COINGECKO_BASE_URL"))
	if cfg.CoinGeckoBaseURL == "" {
		cfg.CoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	}

	cfg.AssetIDs = splitList(os.Getenv("DIGEST_ASSET_IDS"))
	if len(cfg.AssetIDs) == 0 {
		cfg.AssetIDs = append([]string(nil), domain.DefaultAssetIDs...)
	}

	cfg.Currency = strings.ToLower(strings.TrimSpace(os.Getenv("DIGEST_CURRENCY")))
	if cfg.Currency == "" {
		cfg.Currency = domain.DefaultCurrency
	}

	cfg.TrendingEnabled = true
	if v := strings.TrimSpace(os.Getenv("DIGEST_TRENDING_ENABLED")); v != "" {
		cfg.TrendingEnabled = !strings.EqualFold(v, "false")
	}

	cfg.FearGreedEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("DIGEST_FEAR_GREED_ENABLED")), "true")

	cfg.Timezone = strings.TrimSpace(os.Getenv("DIGEST_TIMEZONE"))
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		log.Printf("Warning: unknown DIGEST_TIMEZONE=%q, defaulting to UTC", cfg.Timezone)
		cfg.Timezone = "UTC"
	}

	cfg.DigestIntervalSec = 0
	if v := strings.TrimSpace(os.Getenv("DIGEST_INTERVAL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.DigestIntervalSec = n
		} else {
			log.Printf("Warning: invalid DIGEST_INTERVAL_SECS=%q, scheduler disabled", v)
		}
	}

	cfg.HTTPPort = 8080
	if v := strings.TrimSpace(os.Getenv("HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(os.Getenv("MCP_TRANSPORT")))
	if cfg.MCPTransport == "" {
		cfg.MCPTransport = "stdio"
	}
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Printf("Warning: unsupported MCP_TRANSPORT=%q, defaulting to stdio", cfg.MCPTransport)
		cfg.MCPTransport = "stdio"
	}

	cfg.MCPHTTPBind = strings.TrimSpace(os.Getenv("MCP_HTTP_BIND"))
	if cfg.MCPHTTPBind == "" {
		cfg.MCPHTTPBind = "127.0.0.1"
	}

	cfg.MCPHTTPPort = 8090
	if v := strings.TrimSpace(os.Getenv("MCP_HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MCPHTTPPort = n
		}
	}

	cfg.SSHPort = 2222
	if v := strings.TrimSpace(os.Getenv("SSH_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SSHPort = n
		}
	}

	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/coin_digest_ed25519"
	}

	cfg.SSHAuthorizedFingerprints = splitList(os.Getenv("SSH_AUTHORIZED_FINGERPRINTS"))

	return cfg
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
