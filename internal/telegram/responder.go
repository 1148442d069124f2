package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/joingate/internal/panel"
)

// Responder renders panel views as Telegram messages with inline keyboards.
type Responder struct {
	client botClient
	logger *slog.Logger
}

// NewResponder wraps a client.
func NewResponder(log *slog.Logger, client botClient) *Responder {
	if log == nil {
		log = slog.Default()
	}
	return &Responder{client: client, logger: log.With(slog.String("component", "responder"))}
}

// Send implements panel.Responder.
func (r *Responder) Send(ctx context.Context, chatID int64, view panel.View) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, view.Text)
	if len(view.Rows) > 0 {
		msg.ReplyMarkup = keyboard(view.Rows)
	}
	sent, err := r.client.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send view to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// Edit implements panel.Responder. Edits that change nothing are not errors.
func (r *Responder) Edit(ctx context.Context, chatID int64, messageID int, view panel.View) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var edit tgbotapi.EditMessageTextConfig
	if len(view.Rows) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, view.Text, keyboard(view.Rows))
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, view.Text)
	}
	if _, err := r.client.Request(edit); err != nil {
		if isNotModified(err) {
			return nil
		}
		return fmt.Errorf("edit message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// Answer implements panel.Responder.
func (r *Responder) Answer(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	if _, err := r.client.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func keyboard(rows [][]panel.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}
