// Package telegram connects the bot to the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/joingate/internal/channels"
)

// botClient is the subset of *tgbotapi.BotAPI the package uses.
type botClient interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// NewBot creates the Bot API client and routes library logging through log.
// An empty endpoint uses the public Bot API.
func NewBot(log *slog.Logger, token, endpoint string) (*tgbotapi.BotAPI, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := tgbotapi.SetLogger(&slogBotLogger{log: log.With(slog.String("component", "tgbotapi"))}); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return bot, nil
}

// Gateway implements the messaging capabilities on top of the Bot API.
type Gateway struct {
	client botClient
	selfID int64
	logger *slog.Logger
}

// NewGateway wraps a client. selfID is the bot's own user id.
func NewGateway(log *slog.Logger, client botClient, selfID int64) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		client: client,
		selfID: selfID,
		logger: log.With(slog.String("adapter", "telegram")),
	}
}

// NewGatewayFromBot wraps a live bot.
func NewGatewayFromBot(log *slog.Logger, bot *tgbotapi.BotAPI) *Gateway {
	return NewGateway(log, bot, bot.Self.ID)
}

// ChatInfo fetches title and username of a chat.
func (g *Gateway) ChatInfo(ctx context.Context, channelID string) (channels.ChatInfo, error) {
	if err := ctx.Err(); err != nil {
		return channels.ChatInfo{}, err
	}
	chatID, err := ParseChatID(channelID)
	if err != nil {
		return channels.ChatInfo{}, err
	}
	chat, err := g.client.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
	if err != nil {
		return channels.ChatInfo{}, fmt.Errorf("get chat %s: %w", channelID, err)
	}
	return channels.ChatInfo{
		ID:       FormatChatID(chat.ID),
		Title:    strings.TrimSpace(chat.Title),
		Username: strings.TrimSpace(chat.UserName),
	}, nil
}

// IsBotAdmin reports whether the bot is an administrator or the creator of the chat.
func (g *Gateway) IsBotAdmin(ctx context.Context, channelID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	chatID, err := ParseChatID(channelID)
	if err != nil {
		return false, err
	}
	member, err := g.client.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: g.selfID},
	})
	if err != nil {
		return false, fmt.Errorf("get bot membership in %s: %w", channelID, err)
	}
	return member.IsAdministrator() || member.IsCreator(), nil
}

// ApproveJoinRequest approves one pending join request.
func (g *Gateway) ApproveJoinRequest(ctx context.Context, channelID string, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := ParseChatID(channelID)
	if err != nil {
		return err
	}
	_, err = g.client.Request(tgbotapi.ApproveChatJoinRequestConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		UserID:     userID,
	})
	if err != nil {
		return fmt.Errorf("approve %d in %s: %w", userID, channelID, err)
	}
	return nil
}

// SendMessage sends an HTML formatted text message.
func (g *Gateway) SendMessage(ctx context.Context, recipientID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(recipientID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := g.client.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", recipientID, err)
	}
	return nil
}

func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.Message, "message is not modified")
	}
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
