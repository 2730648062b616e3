package feed

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/patrickmn/go-cache"

	"crypto-signal-scraper/pkg/logger"
)

// TelegramConfig holds the Telegram feed settings.
type TelegramConfig struct {
	BotToken    string
	PollTimeout int
}

// telegramSource delivers channel posts and channel post edits via the Bot
// API long-poll. The Bot API does not surface message deletions or history
// iteration; deletions arrive through the HTTP ingress instead and History
// reports ErrHistoryUnsupported.
type telegramSource struct {
	bot         *tgbotapi.BotAPI
	events      chan Event
	names       *cache.Cache
	log         *logger.Logger
	pollTimeout int
	connected   atomic.Bool
	cancel      context.CancelFunc
}

// NewTelegramSource authenticates against the Bot API and prepares the
// source. Start must be called before events flow.
func NewTelegramSource(cfg TelegramConfig, log *logger.Logger) (Source, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate telegram bot: %w", err)
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30
	}

	log.Info("Telegram feed authenticated", logger.StringField("username", bot.Self.UserName))

	return &telegramSource{
		bot:         bot,
		events:      make(chan Event, 64),
		names:       cache.New(24*time.Hour, time.Hour),
		log:         log,
		pollTimeout: pollTimeout,
	}, nil
}

func (s *telegramSource) Start(ctx context.Context) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = s.pollTimeout
	updateCfg.AllowedUpdates = []string{"channel_post", "edited_channel_post", "message", "edited_message"}

	updates := s.bot.GetUpdatesChan(updateCfg)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.connected.Store(true)

	go func() {
		defer close(s.events)
		defer s.connected.Store(false)
		for {
			select {
			case <-runCtx.Done():
				s.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				s.dispatch(runCtx, update)
			}
		}
	}()

	return nil
}

func (s *telegramSource) dispatch(ctx context.Context, update tgbotapi.Update) {
	var (
		msg  *tgbotapi.Message
		kind EventKind
	)
	switch {
	case update.ChannelPost != nil:
		msg, kind = update.ChannelPost, KindCreated
	case update.Message != nil:
		msg, kind = update.Message, KindCreated
	case update.EditedChannelPost != nil:
		msg, kind = update.EditedChannelPost, KindEdited
	case update.EditedMessage != nil:
		msg, kind = update.EditedMessage, KindEdited
	default:
		return
	}
	if msg.Text == "" || msg.Chat == nil {
		return
	}

	s.rememberName(msg.Chat)

	event := Event{
		Kind:      kind,
		SourceID:  msg.Chat.ID,
		MessageID: int64(msg.MessageID),
		Text:      msg.Text,
		SentAt:    msg.Time().UTC(),
	}

	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *telegramSource) rememberName(chat *tgbotapi.Chat) {
	name := chat.Title
	if name == "" {
		name = chat.UserName
	}
	if name == "" {
		return
	}
	s.names.Set(nameKey(chat.ID), name, cache.DefaultExpiration)
}

func (s *telegramSource) Events() <-chan Event {
	return s.events
}

// SourceName resolves a source id to its chat title, hitting the Bot API at
// most once per cache window.
func (s *telegramSource) SourceName(id int64) string {
	if name, ok := s.names.Get(nameKey(id)); ok {
		return name.(string)
	}

	chat, err := s.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: id}})
	if err != nil {
		s.log.Debug("Failed to resolve source name", logger.Int64Field("source_id", id), logger.ErrorField(err))
		return fmt.Sprintf("Source %d", id)
	}

	name := chat.Title
	if name == "" {
		name = chat.UserName
	}
	if name == "" {
		name = fmt.Sprintf("Source %d", id)
	}
	s.names.Set(nameKey(id), name, cache.DefaultExpiration)
	return name
}

func (s *telegramSource) History(context.Context, int64, int) ([]Event, error) {
	return nil, ErrHistoryUnsupported
}

func (s *telegramSource) Connected() bool {
	return s.connected.Load()
}

func (s *telegramSource) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func nameKey(id int64) string {
	return fmt.Sprintf("source:%d", id)
}
