// Package bot implements the Telegram command surface and sends sweep
// notifications to the configured chat.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedwatcher/internal/config"
	"feedwatcher/internal/matcher"
	"feedwatcher/internal/model"
	"feedwatcher/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// FeedFetcher downloads a feed document for /add.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, url string) ([]byte, error)
}

// Checker runs a sweep on demand for /check.
type Checker interface {
	CheckNow(ctx context.Context) (matcher.Report, error)
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	cfg     *config.Config
	fetcher FeedFetcher
	checker Checker
	log     *slog.Logger
	now     func() time.Time
	// pause between notification messages, Telegram allows about 20 per second
	sendInterval time.Duration

	mu sync.Mutex
	// pendingClear holds, per chat, the results listed when a clear was
	// requested and not yet confirmed or undone. They are hidden meanwhile;
	// results found later stay visible and survive the confirm.
	pendingClear map[int64][]model.ID
}

// New creates a Bot with the given Telegram token, storage, fetcher and config.
func New(token string, store storage.Storage, f FeedFetcher, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, store, f, cfg, log), nil
}

func newBot(api telegramAPI, store storage.Storage, f FeedFetcher, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:          api,
		store:        store,
		cfg:          cfg,
		fetcher:      f,
		log:          log,
		now:          time.Now,
		sendInterval: 50 * time.Millisecond,
		pendingClear: make(map[int64][]model.ID),
	}
}

// SetChecker enables /check.
func (b *Bot) SetChecker(c Checker) {
	b.checker = c
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "add":
		b.handleAdd(ctx, chatID, args)
	case "feeds":
		b.handleFeeds(ctx, chatID)
	case cmdRmFeed:
		b.handleRmFeed(ctx, chatID, args)
	case "queries":
		b.handleQueries(ctx, chatID)
	case "newquery":
		b.handleNewQuery(ctx, chatID, args)
	case "filter":
		b.handleFilter(ctx, chatID, args)
	case "rmquery":
		b.handleRmQuery(ctx, chatID, args)
	case "results":
		b.handleResults(ctx, chatID)
	case cmdDelete:
		b.handleDelete(ctx, chatID, args)
	case "clear":
		b.handleClear(ctx, chatID)
	case "check":
		b.handleCheck(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
