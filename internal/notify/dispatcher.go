// Package notify records inbound join requests and tells operators about channels seen for the first time.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/memohai/joingate/internal/channels"
)

// Gateway is the messaging capability the dispatcher needs.
type Gateway interface {
	ChatInfo(ctx context.Context, channelID string) (channels.ChatInfo, error)
	IsBotAdmin(ctx context.Context, channelID string) (bool, error)
	SendMessage(ctx context.Context, recipientID int64, text string) error
}

// Ledger records join requests.
type Ledger interface {
	Record(ctx context.Context, userID int64, channelID string, at time.Time) error
}

// JoinRequest is one inbound request to join a channel.
type JoinRequest struct {
	UserID    int64
	UserName  string
	ChannelID string
	At        time.Time
}

// Outcome reports what Dispatch did besides recording.
type Outcome struct {
	Registered bool
	Notified   int
	Failed     int
}

// Dispatcher handles join-request events.
type Dispatcher struct {
	gateway   Gateway
	ledger    Ledger
	registry  channels.Store
	operators []int64
	limiter   *rate.Limiter
	now       func() time.Time
	logger    *slog.Logger
}

// NewDispatcher builds a dispatcher notifying operators. Sends are paced at ratePerSecond;
// zero or less disables pacing.
func NewDispatcher(log *slog.Logger, gateway Gateway, ledger Ledger, registry channels.Store, operators []int64, ratePerSecond float64) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Dispatcher{
		gateway:   gateway,
		ledger:    ledger,
		registry:  registry,
		operators: append([]int64(nil), operators...),
		limiter:   rate.NewLimiter(limit, 1),
		now:       time.Now,
		logger:    log.With(slog.String("service", "notify")),
	}
}

// Dispatch records req and, when its channel is not yet registered, registers it and
// notifies every operator. Only a failed ledger append is returned as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, req JoinRequest) (Outcome, error) {
	var out Outcome
	log := d.logger.With(
		slog.Int64("user_id", req.UserID),
		slog.String("channel_id", req.ChannelID))

	if err := d.ledger.Record(ctx, req.UserID, req.ChannelID, req.At); err != nil {
		log.Error("record join request failed", slog.Any("error", err))
		return out, err
	}

	_, found, err := d.registry.Load(ctx, req.ChannelID)
	if err != nil {
		log.Error("load channel failed", slog.Any("error", err))
		return out, nil
	}
	if found {
		return out, nil
	}

	info, err := d.gateway.ChatInfo(ctx, req.ChannelID)
	if err != nil {
		log.Error("fetch chat info failed", slog.Any("error", err))
		return out, nil
	}
	isAdmin, err := d.gateway.IsBotAdmin(ctx, req.ChannelID)
	if err != nil {
		log.Error("fetch bot rights failed", slog.Any("error", err))
		return out, nil
	}
	if info.ID == "" {
		info.ID = req.ChannelID
	}
	if err := d.registry.Save(ctx, channels.NewRecord(info, isAdmin, d.now())); err != nil {
		log.Error("register channel failed", slog.Any("error", err))
		return out, nil
	}
	out.Registered = true
	log.Info("channel registered", slog.String("title", info.Title), slog.Bool("is_bot_admin", isAdmin))

	out.Notified, out.Failed = d.broadcast(ctx, log, formatNotice(req, info))
	return out, nil
}

func (d *Dispatcher) broadcast(ctx context.Context, log *slog.Logger, text string) (sent, failed int) {
	id := uuid.NewString()
	for _, operator := range d.operators {
		if err := d.limiter.Wait(ctx); err != nil {
			failed++
			continue
		}
		if err := d.gateway.SendMessage(ctx, operator, text); err != nil {
			failed++
			log.Warn("notify operator failed",
				slog.String("notification_id", id),
				slog.Int64("operator_id", operator),
				slog.Any("error", err))
			continue
		}
		sent++
	}
	log.Debug("operators notified", slog.String("notification_id", id), slog.Int("sent", sent), slog.Int("failed", failed))
	return sent, failed
}

func formatNotice(req JoinRequest, info channels.ChatInfo) string {
	name := req.UserName
	if name == "" {
		name = strconv.FormatInt(req.UserID, 10)
	}
	title := info.Title
	if title == "" {
		title = "Unknown"
	}
	return fmt.Sprintf(
		"📥 New join request received:\n\n👤 User: <a href=\"tg://user?id=%d\">%s</a>\n📢 Channel: %s\n🆔 Channel ID: %s",
		req.UserID, html.EscapeString(name), html.EscapeString(title), html.EscapeString(req.ChannelID))
}
