package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"
)

// chatRecipient addresses a chat by numeric id or @channel username.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

// TelegramSink delivers digests through the Bot API sendMessage call.
type TelegramSink struct {
	bot       *tele.Bot
	parseMode tele.ParseMode
}

// NewTelegramSink creates a send-only bot. It does not poll for updates.
func NewTelegramSink(token, parseMode string) (*TelegramSink, error) {
	return newTelegramSink(tele.Settings{Token: token}, parseMode)
}

func newTelegramSink(pref tele.Settings, parseMode string) (*TelegramSink, error) {
	if strings.TrimSpace(pref.Token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	pref.Offline = true
	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramSink{bot: b, parseMode: toParseMode(parseMode)}, nil
}

func (s *TelegramSink) Send(ctx context.Context, chatID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return fmt.Errorf("empty chat id")
	}
	_, err := s.bot.Send(chatRecipient(chatID), text, &tele.SendOptions{
		ParseMode:             s.parseMode,
		DisableWebPagePreview: true,
	})
	return err
}

func toParseMode(mode string) tele.ParseMode {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "plain", "text", "none":
		return tele.ModeDefault
	default:
		return tele.ModeHTML
	}
}

// StartTelegramBot serves on-demand digest commands. It is a no-op without a token.
func StartTelegramBot(token, parseMode string, reader DigestReader) {
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Printf("failed to create Telegram bot: %v", err)
		return
	}

	mode := toParseMode(parseMode)
	reply := func(c tele.Context, text string) error {
		return c.Send(text, &tele.SendOptions{ParseMode: mode, DisableWebPagePreview: true})
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/digest", func(c tele.Context) error {
		return reply(c, digestReply(context.Background(), reader))
	})

	b.Handle("/prices", func(c tele.Context) error {
		return reply(c, pricesReply(context.Background(), reader, c.Args()))
	})

	b.Handle("/trending", func(c tele.Context) error {
		return reply(c, trendingReply(context.Background(), reader))
	})

	log.Println("Telegram bot started")
	go b.Start()
}
