package alerting

import (
	"context"
	"fmt"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTelegramNotifierInvalidConfig(t *testing.T) {
	_, err := NewTelegramNotifier(nil)
	require.Error(t, err)

	_, err = NewTelegramNotifier(&TelegramConfig{BotToken: "token", ChatID: "not-a-number"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telegram chat ID")
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `score dropped 12\.5 points \(80 \-\> 67\.5\)`, escapeMarkdownV2("score dropped 12.5 points (80 -> 67.5)"))
	assert.Equal(t, "plain", escapeMarkdownV2("plain"))
}

func TestFormatMessage(t *testing.T) {
	msg := formatMessage([]*Alert{
		{ContentID: "post_1", Severity: SeverityCritical, Message: "health is critical", ObservedAt: day(2)},
		{ContentID: "post-2", Severity: SeverityWarning, Message: "anomaly"},
	})

	assert.Contains(t, msg, "1\\. 🚨 *post\\_1* health is critical")
	assert.Contains(t, msg, "observed 2024\\-01\\-03 00:00")
	assert.Contains(t, msg, "2\\. ⚠️ *post\\-2* anomaly")
}

func TestTelegramNotifierRetries(t *testing.T) {
	bot := &fakeBot{failures: 2}
	n := newTelegramNotifier(bot, 42, 3, time.Millisecond)

	require.NoError(t, n.Notify(context.Background(), []*Alert{{ContentID: "post-1", Message: "x"}}))
	assert.Equal(t, 3, bot.calls)
	assert.Equal(t, int64(42), bot.last.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, bot.last.ParseMode)
}

func TestTelegramNotifierGivesUp(t *testing.T) {
	bot := &fakeBot{failures: 10}
	n := newTelegramNotifier(bot, 42, 2, time.Millisecond)

	err := n.Notify(context.Background(), []*Alert{{ContentID: "post-1", Message: "x"}})
	require.Error(t, err)
	assert.Equal(t, 2, bot.calls)

	assert.NoError(t, n.Notify(context.Background(), nil))
	assert.Equal(t, 2, bot.calls)
}

// Helper functions

type fakeBot struct {
	failures int
	calls    int
	last     tgbotapi.MessageConfig
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.calls++
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		b.last = msg
	}
	if b.calls <= b.failures {
		return tgbotapi.Message{}, fmt.Errorf("telegram unavailable")
	}
	return tgbotapi.Message{MessageID: b.calls}, nil
}
