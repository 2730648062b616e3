package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"crypto-signal-scraper/internal/entity"
	"crypto-signal-scraper/pkg/logger"
)

// Notifier delivers a best-effort out-of-band alert for a signal. There is
// no retry queue: a failed delivery is logged by the caller and dropped.
type Notifier interface {
	SendSignalAlert(ctx context.Context, signal *entity.Signal) error
}

// client is the Telegram Bot API implementation of Notifier.
type client struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient creates a Telegram notifier. Sends are rate limited to stay
// inside the Bot API message budget.
func NewClient(botToken string, chatID int64, maxPerMinute int, log *logger.Logger) (Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	if maxPerMinute <= 0 {
		maxPerMinute = 20
	}
	return &client{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(float64(maxPerMinute)/60.0), 1),
		log:     log,
	}, nil
}

// SendSignalAlert formats and sends the alert for one signal.
func (c *client) SendSignalAlert(ctx context.Context, signal *entity.Signal) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(c.chatID, FormatSignalAlert(signal))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	c.log.InfoContext(ctx, "Alert sent",
		logger.StringField("pair", signal.Pair),
		logger.StringField("direction", string(signal.Direction)))
	return nil
}

// noopNotifier is used when alerting is not configured.
type noopNotifier struct {
	log *logger.Logger
}

// NewNoopNotifier returns a notifier that drops every alert.
func NewNoopNotifier(log *logger.Logger) Notifier {
	log.Warn("Alert notifier disabled, missing bot token or chat id")
	return &noopNotifier{log: log}
}

func (n *noopNotifier) SendSignalAlert(_ context.Context, signal *entity.Signal) error {
	n.log.Debug("Alert notifier disabled, dropping alert", logger.StringField("id", signal.ID))
	return nil
}
