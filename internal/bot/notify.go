package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedwatcher/internal/matcher"
	"feedwatcher/internal/model"
)

// NotifyResults sends one message per result to the notification chat,
// each with a button that deletes the result.
func (b *Bot) NotifyResults(ctx context.Context, results []model.Result) {
	chatID := b.cfg.NotifyChatID
	if chatID == 0 {
		b.log.Debug("no notification chat configured", "results", len(results))
		return
	}
	for i, r := range results {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && b.sendInterval > 0 {
			time.Sleep(b.sendInterval)
		}
		msg := tgbotapi.NewMessage(chatID, FormatResult(r))
		msg.DisableWebPagePreview = true
		msg.ReplyMarkup = deleteButton(r.ID)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send result", "chat_id", chatID, "error", err)
		}
	}
}

// NotifyFailures tells the notification chat which feeds could not be checked.
func (b *Bot) NotifyFailures(_ context.Context, failures []matcher.FeedOutcome) {
	chatID := b.cfg.NotifyChatID
	if chatID == 0 {
		return
	}
	b.SendMessage(chatID, FormatFailures(failures))
}
