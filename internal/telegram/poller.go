package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/joingate/internal/notify"
	"github.com/memohai/joingate/internal/panel"
)

// AllowedUpdates are the update types the poller subscribes to.
var AllowedUpdates = []string{"message", "callback_query", "chat_join_request"}

// JoinDispatcher receives join-request events.
type JoinDispatcher interface {
	Dispatch(ctx context.Context, req notify.JoinRequest) (notify.Outcome, error)
}

// OperatorPanel receives operator commands, replies and button presses.
type OperatorPanel interface {
	HandleCommand(ctx context.Context, msg panel.Message) error
	HandleText(ctx context.Context, msg panel.Message) error
	HandlePress(ctx context.Context, press panel.Press) error
}

type updateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poller long-polls for updates and hands each one to its handler on a separate goroutine.
type Poller struct {
	source     updateSource
	dispatcher JoinDispatcher
	panel      OperatorPanel
	timeout    int
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller builds a poller. timeout is the long-poll timeout in seconds.
func NewPoller(log *slog.Logger, source updateSource, dispatcher JoinDispatcher, p OperatorPanel, timeout int) *Poller {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30
	}
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		panel:      p,
		timeout:    timeout,
		logger:     log.With(slog.String("adapter", "telegram")),
	}
}

// Start begins receiving updates until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return fmt.Errorf("poller already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = p.timeout
	updateConfig.AllowedUpdates = AllowedUpdates
	updates := p.source.GetUpdatesChan(updateConfig)
	p.logger.Info("start", slog.Int("timeout", p.timeout))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				p.source.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					p.logger.Info("updates channel closed")
					return
				}
				p.wg.Add(1)
				go func() {
					defer p.wg.Done()
					p.Handle(runCtx, update)
				}()
			}
		}
	}()
	return nil
}

// Stop cancels polling and waits for in-flight handlers or ctx, whichever ends first.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	p.logger.Info("stop")
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle routes a single update. Panics are recovered and logged.
func (p *Poller) Handle(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("update handler panic",
				slog.Int("update_id", update.UpdateID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	var err error
	switch {
	case update.ChatJoinRequest != nil:
		err = p.handleJoinRequest(ctx, update.ChatJoinRequest)
	case update.CallbackQuery != nil:
		err = p.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		err = p.handleMessage(ctx, update.Message)
	default:
		return
	}
	if err != nil {
		p.logger.Error("handle update failed", slog.Int("update_id", update.UpdateID), slog.Any("error", err))
	}
}

func (p *Poller) handleJoinRequest(ctx context.Context, req *tgbotapi.ChatJoinRequest) error {
	event := notify.JoinRequest{
		UserID:    req.From.ID,
		UserName:  displayName(&req.From),
		ChannelID: FormatChatID(req.Chat.ID),
	}
	if req.Date > 0 {
		event.At = time.Unix(int64(req.Date), 0)
	}
	p.logger.Info("join request received",
		slog.String("channel_id", event.ChannelID),
		slog.Int64("user_id", event.UserID))
	_, err := p.dispatcher.Dispatch(ctx, event)
	return err
}

func (p *Poller) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q.From == nil {
		return nil
	}
	press := panel.Press{ID: q.ID, UserID: q.From.ID, Data: q.Data}
	if q.Message != nil {
		press.MessageID = q.Message.MessageID
		if q.Message.Chat != nil {
			press.ChatID = q.Message.Chat.ID
		}
	}
	if press.ChatID == 0 {
		press.ChatID = q.From.ID
	}
	return p.panel.HandlePress(ctx, press)
}

func (p *Poller) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.From == nil || m.Chat == nil || !m.Chat.IsPrivate() {
		return nil
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return nil
	}
	msg := panel.Message{ChatID: m.Chat.ID, UserID: m.From.ID, Text: text}
	if m.IsCommand() {
		return p.panel.HandleCommand(ctx, msg)
	}
	return p.panel.HandleText(ctx, msg)
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName + " " + u.LastName))
	if name == "" && u.UserName != "" {
		name = "@" + strings.TrimSpace(u.UserName)
	}
	return name
}
