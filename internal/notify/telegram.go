package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"emission-service/internal/logging"
	"emission-service/internal/models"
	"emission-service/internal/utils"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// Telegram sends alerts to one operator chat.
type Telegram struct {
	sender   messageSender
	chatID   int64
	limiter  *rate.Limiter
	logger   *logging.Logger
	attempts int
	delay    time.Duration
}

// NewTelegram builds a notifier allowing ratePerSecond messages per second.
func NewTelegram(token string, chatID int64, ratePerSecond int, logger *logging.Logger) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("missing telegram bot token")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("missing telegram chat id")
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return newTelegram(b, chatID, ratePerSecond, logger), nil
}

func newTelegram(sender messageSender, chatID int64, ratePerSecond int, logger *logging.Logger) *Telegram {
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}
	return &Telegram{
		sender:   sender,
		chatID:   chatID,
		limiter:  rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:   logger,
		attempts: 3,
		delay:    time.Second,
	}
}

func (t *Telegram) Notify(ctx context.Context, alert models.Alert, reading models.Reading) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}
	params := &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   formatAlert(alert, reading),
	}
	return utils.Retry(ctx, t.logger, t.attempts, t.delay, func() error {
		if _, err := t.sender.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.chatID, err)
		}
		return nil
	})
}

func formatAlert(alert models.Alert, reading models.Reading) string {
	return fmt.Sprintf(
		"[%s] %s\n"+
			"Sensor: %s\n"+
			"Reading: %s at %s\n"+
			"Alert: %s",
		strings.ToUpper(string(alert.Severity)),
		alert.Message,
		reading.SensorID,
		reading.ID,
		reading.Timestamp.UTC().Format(time.RFC3339),
		alert.ID,
	)
}
