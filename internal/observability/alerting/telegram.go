package alerting

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/inferloop/contentscore/pkg/errors"
)

// TelegramConfig configures the Telegram notifier
type TelegramConfig struct {
	Enabled    bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	BotToken   string        `json:"bot_token" yaml:"bot_token" mapstructure:"bot_token"`
	ChatID     string        `json:"chat_id" yaml:"chat_id" mapstructure:"chat_id"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`
}

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends alert digests to a Telegram chat
type TelegramNotifier struct {
	bot        messageSender
	chatID     int64
	maxRetries int
	retryDelay time.Duration
}

// NewTelegramNotifier creates a Telegram notifier
func NewTelegramNotifier(config *TelegramConfig) (*TelegramNotifier, error) {
	if config == nil || config.BotToken == "" {
		return nil, errors.NewConfigurationError(errors.CodeMissingField, "telegram bot token is required")
	}
	chatID, err := strconv.ParseInt(config.ChatID, 10, 64)
	if err != nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidFormat, "invalid telegram chat ID").WithCause(err)
	}

	bot, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeNetwork, errors.CodeConnectionFailed, "failed to create Telegram bot")
	}
	return newTelegramNotifier(bot, chatID, config.MaxRetries, config.RetryDelay), nil
}

func newTelegramNotifier(bot messageSender, chatID int64, maxRetries int, retryDelay time.Duration) *TelegramNotifier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &TelegramNotifier{
		bot:        bot,
		chatID:     chatID,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Name returns the notifier name
func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify sends all alerts as one message, retrying with linear backoff
func (n *TelegramNotifier) Notify(ctx context.Context, alerts []*Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, formatMessage(alerts))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < n.maxRetries; i++ {
		_, err := n.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.retryDelay * time.Duration(i+1)):
		}
	}

	return errors.WrapError(lastErr, errors.ErrorTypeNetwork, errors.CodeConnectionFailed,
		fmt.Sprintf("failed to send Telegram message after %d attempts", n.maxRetries))
}

func formatMessage(alerts []*Alert) string {
	var b strings.Builder
	b.WriteString("*Content alerts*\n\n")

	for i, a := range alerts {
		icon := "⚠️"
		if a.Severity == SeverityCritical {
			icon = "🚨"
		}
		fmt.Fprintf(&b, "%d\\. %s *%s* %s\n", i+1, icon, escapeMarkdownV2(a.ContentID), escapeMarkdownV2(a.Message))
		if !a.ObservedAt.IsZero() {
			fmt.Fprintf(&b, "   observed %s\n", escapeMarkdownV2(a.ObservedAt.UTC().Format("2006-01-02 15:04")))
		}
	}
	return b.String()
}

// escapeMarkdownV2 escapes the characters Telegram reserves in MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch r {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
