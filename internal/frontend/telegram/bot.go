package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vadimtrunov/moviefinder/internal/core"
	"github.com/vadimtrunov/moviefinder/internal/voice"
)

// defaultRequestTimeout bounds a single command, catalog requests included.
const defaultRequestTimeout = 30 * time.Second

// sender is the part of the Bot API used to answer users.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot is the Telegram frontend: every user browses the catalog in their own
// session.
type Bot struct {
	client   *tgbotapi.BotAPI
	api      sender
	sessions *sessionManager
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a new Telegram Bot. Text that is not a command is handled as
// a spoken title by a voice search configured with vcfg.
func New(token string, allowedUserIDs []int64, catalog core.Catalog, vcfg voice.Config, logger *slog.Logger) (*Bot, error) {
	client, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	b := newBot(client, allowedUserIDs, catalog, vcfg, logger)
	b.client = client
	return b, nil
}

func newBot(api sender, allowedUserIDs []int64, catalog core.Catalog, vcfg voice.Config, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:      api,
		sessions: newSessionManager(allowedUserIDs, catalog, vcfg, logger),
		timeout:  defaultRequestTimeout,
		logger:   logger,
	}
}

// Name returns the frontend name.
func (b *Bot) Name() string { return "telegram" }

// Start starts the long-polling loop. It blocks until ctx is canceled.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("telegram bot started",
		slog.String("username", b.client.Self.UserName),
	)
	defer b.sessions.closeAll()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.client.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.client.StopReceivingUpdates()
			b.logger.Info("telegram bot stopped")
			return nil

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate dispatches an incoming Telegram update.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}
