package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedwatcher/internal/model"
)

const (
	cmdRmFeed = "rmfeed"
	cmdDelete = "delete"

	actionClearConfirm = "clear_confirm"
	actionClearUndo    = "clear_undo"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, idStr, ok := strings.Cut(data, ":")
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdDelete:
		b.handleDelete(ctx, chatID, idStr)
	case cmdRmFeed:
		b.handleRmFeed(ctx, chatID, idStr)
	case actionClearConfirm:
		b.confirmClear(ctx, chatID)
	case actionClearUndo:
		b.undoClear(ctx, chatID)
	}
}

// handleClear hides all results until the user confirms or undoes the clear.
func (b *Bot) handleClear(ctx context.Context, chatID int64) {
	if _, ok := b.clearPending(chatID); ok {
		b.reply(chatID, "A clear is already pending. Confirm or undo it first.")
		return
	}
	results, err := b.store.ListResults(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(results) == 0 {
		b.reply(chatID, "No results to clear.")
		return
	}

	ids := make([]model.ID, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	b.setClearPending(chatID, ids)
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Cleared %d result(s).", len(results)))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Confirm", actionClearConfirm+":0"),
			tgbotapi.NewInlineKeyboardButtonData("Undo", actionClearUndo+":0"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send clear confirmation", "error", err)
	}
}

// confirmClear deletes the results the clear prompt counted.
func (b *Bot) confirmClear(ctx context.Context, chatID int64) {
	ids, ok := b.clearPending(chatID)
	if !ok {
		b.reply(chatID, "Nothing to confirm.")
		return
	}
	b.setClearPending(chatID, nil)
	n, err := b.store.DeleteResults(ctx, ids)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting results: %v", err))
		return
	}
	b.log.Info("results cleared", "chat_id", chatID, "deleted", n)
	b.reply(chatID, fmt.Sprintf("Deleted %d result(s).", n))
}

func (b *Bot) undoClear(ctx context.Context, chatID int64) {
	if _, ok := b.clearPending(chatID); !ok {
		b.reply(chatID, "Nothing to undo.")
		return
	}
	b.setClearPending(chatID, nil)
	b.handleResults(ctx, chatID)
}

func (b *Bot) clearPending(chatID int64) ([]model.ID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids, ok := b.pendingClear[chatID]
	return ids, ok
}

// setClearPending records ids as pending for chatID; nil drops the entry.
func (b *Bot) setClearPending(chatID int64, ids []model.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ids != nil {
		b.pendingClear[chatID] = ids
		return
	}
	delete(b.pendingClear, chatID)
}

func deleteButton(id model.ID) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Delete", fmt.Sprintf("%s:%d", cmdDelete, id)),
		),
	)
}
