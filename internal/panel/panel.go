// Package panel is the button-driven operator interface: channel management and approvals.
package panel

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/memohai/joingate/internal/approval"
	"github.com/memohai/joingate/internal/channels"
	"github.com/memohai/joingate/internal/ledger"
)

// Gateway is what the panel asks the messaging platform about a channel.
type Gateway interface {
	ChatInfo(ctx context.Context, channelID string) (channels.ChatInfo, error)
	IsBotAdmin(ctx context.Context, channelID string) (bool, error)
}

// Approver runs approval batches.
type Approver interface {
	ApproveAll(ctx context.Context, channelID string) (approval.Result, error)
	ApproveSample(ctx context.Context, channelID string, n int) (approval.Result, error)
}

// Stats summarises a channel's pending requests.
type Stats interface {
	Summarize(ctx context.Context, channelID string) (ledger.Summary, error)
}

// Responder delivers views back to the operator.
type Responder interface {
	// Send posts a new message and returns its id.
	Send(ctx context.Context, chatID int64, view View) (int, error)
	// Edit replaces an existing message.
	Edit(ctx context.Context, chatID int64, messageID int, view View) error
	// Answer acknowledges a callback query.
	Answer(ctx context.Context, callbackID, text string) error
}

// Message is an operator command or text reply.
type Message struct {
	ChatID int64
	UserID int64
	Text   string
}

// Press is an inline button press.
type Press struct {
	ID        string
	ChatID    int64
	MessageID int
	UserID    int64
	Data      string
}

// Deps groups the panel collaborators.
type Deps struct {
	Operators *Operators
	Registry  channels.Store
	Stats     Stats
	Approver  Approver
	Gateway   Gateway
	Responder Responder
}

// Panel routes operator events.
type Panel struct {
	deps     Deps
	sessions *sessions
	now      func() time.Time
	logger   *slog.Logger
}

// New builds a panel.
func New(log *slog.Logger, deps Deps) *Panel {
	if log == nil {
		log = slog.Default()
	}
	return &Panel{
		deps:     deps,
		sessions: newSessions(),
		now:      time.Now,
		logger:   log.With(slog.String("service", "panel")),
	}
}

// IsOperator reports whether userID may use the panel.
func (p *Panel) IsOperator(userID int64) bool {
	return p.deps.Operators.Contains(userID)
}

// HandleCommand handles a slash command. Only /start is known.
func (p *Panel) HandleCommand(ctx context.Context, msg Message) error {
	if !p.IsOperator(msg.UserID) {
		return p.reply(ctx, msg.ChatID, View{Text: textDenied})
	}
	name := strings.Fields(strings.TrimSpace(msg.Text))
	if len(name) == 0 {
		return nil
	}
	command, _, _ := strings.Cut(strings.TrimPrefix(name[0], "/"), "@")
	switch command {
	case "start":
		p.sessions.clear(msg.UserID)
		return p.reply(ctx, msg.ChatID, mainMenu(textWelcome))
	default:
		return nil
	}
}

// HandleText handles a free-text reply: a channel id for the add flow or a count for approve-N.
func (p *Panel) HandleText(ctx context.Context, msg Message) error {
	if !p.IsOperator(msg.UserID) {
		return p.reply(ctx, msg.ChatID, View{Text: textDenied})
	}
	text := strings.TrimSpace(msg.Text)
	switch {
	case looksLikeChannelID(text):
		return p.previewChannel(ctx, msg, text)
	case p.sessions.get(msg.UserID).countChannel != "":
		return p.approveCount(ctx, msg, text)
	case looksLikeCount(text):
		return p.reply(ctx, msg.ChatID, mainMenu(textNoSession))
	case strings.HasPrefix(text, "-"):
		return p.reply(ctx, msg.ChatID, withCancel(textInvalidChatID))
	default:
		return nil
	}
}

// HandlePress handles an inline button press.
func (p *Panel) HandlePress(ctx context.Context, press Press) error {
	if err := p.deps.Responder.Answer(ctx, press.ID, ""); err != nil {
		p.logger.Warn("answer callback failed", slog.Any("error", err))
	}
	if !p.IsOperator(press.UserID) {
		return p.edit(ctx, press, View{Text: textDenied})
	}
	action, channelID := ParseCallback(press.Data)
	switch action {
	case ActionCancel:
		p.sessions.clear(press.UserID)
		return p.edit(ctx, press, mainMenu(textCancelled))
	case ActionChannelsList:
		return p.showChannels(ctx, press)
	case ActionAddChannel:
		return p.edit(ctx, press, withCancel(textAddPrompt))
	case ActionChannel:
		return p.showChannel(ctx, press, channelID)
	case ActionConfirm:
		return p.confirmChannel(ctx, press, channelID)
	case ActionAcceptAll:
		return p.approveAll(ctx, press, channelID)
	case ActionAcceptCount:
		p.sessions.update(press.UserID, func(s *session) { s.countChannel = channelID })
		return p.edit(ctx, press, withCancel(textCountPrompt))
	case ActionRemove:
		return p.removeChannel(ctx, press, channelID)
	default:
		p.logger.Debug("unknown callback", slog.String("data", press.Data))
		return nil
	}
}

func (p *Panel) showChannels(ctx context.Context, press Press) error {
	records, err := p.deps.Registry.List(ctx)
	if err != nil {
		p.logger.Error("list channels failed", slog.Any("error", err))
		return p.edit(ctx, press, mainMenu(textInternalError))
	}
	return p.edit(ctx, press, channelListView(records))
}

func (p *Panel) previewChannel(ctx context.Context, msg Message, text string) error {
	channelID, err := ParseChannelID(text)
	if err != nil {
		return p.reply(ctx, msg.ChatID, withCancel(textInvalidChatID))
	}
	info, err := p.deps.Gateway.ChatInfo(ctx, channelID)
	if err != nil {
		p.logger.Warn("fetch chat info failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return p.reply(ctx, msg.ChatID, withCancel(textFetchFailed))
	}
	isAdmin, err := p.deps.Gateway.IsBotAdmin(ctx, channelID)
	if err != nil {
		p.logger.Warn("fetch bot rights failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return p.reply(ctx, msg.ChatID, withCancel(textFetchFailed))
	}
	if info.ID == "" {
		info.ID = channelID
	}
	p.sessions.update(msg.UserID, func(s *session) {
		s.preview = &preview{info: info, isAdmin: isAdmin}
	})
	return p.reply(ctx, msg.ChatID, previewView(info, isAdmin))
}

func (p *Panel) confirmChannel(ctx context.Context, press Press, channelID string) error {
	pending := p.sessions.get(press.UserID).preview
	if pending == nil || pending.info.ID != channelID {
		return p.edit(ctx, press, mainMenu(textPreviewMissing))
	}
	rec := channels.NewRecord(pending.info, pending.isAdmin, p.now())
	if err := p.deps.Registry.Save(ctx, rec); err != nil {
		p.logger.Error("save channel failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return p.edit(ctx, press, mainMenu(textInternalError))
	}
	p.sessions.update(press.UserID, func(s *session) { s.preview = nil })
	p.logger.Info("channel added", slog.String("channel_id", rec.ID), slog.Int64("operator_id", press.UserID))
	return p.edit(ctx, press, addedView(rec))
}

func (p *Panel) showChannel(ctx context.Context, press Press, channelID string) error {
	rec, found, err := p.deps.Registry.Load(ctx, channelID)
	if err != nil && !errors.Is(err, channels.ErrInvalidID) {
		p.logger.Error("load channel failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return p.edit(ctx, press, mainMenu(textInternalError))
	}
	if !found {
		return p.edit(ctx, press, mainMenu(textChannelNotFound))
	}
	sum, err := p.deps.Stats.Summarize(ctx, channelID)
	if err != nil {
		p.logger.Error("summarize channel failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return p.edit(ctx, press, mainMenu(textInternalError))
	}
	isAdmin, err := p.deps.Gateway.IsBotAdmin(ctx, channelID)
	if err != nil {
		p.logger.Warn("fetch bot rights failed", slog.String("channel_id", channelID), slog.Any("error", err))
		isAdmin = false
	} else if isAdmin != rec.IsBotAdmin {
		if _, err := p.deps.Registry.UpdateRights(ctx, channelID, isAdmin); err != nil {
			p.logger.Warn("store bot rights failed", slog.String("channel_id", channelID), slog.Any("error", err))
		}
	}
	return p.edit(ctx, press, detailView(rec, sum, isAdmin))
}

func (p *Panel) removeChannel(ctx context.Context, press Press, channelID string) error {
	if err := p.deps.Registry.Delete(ctx, channelID); err != nil {
		p.logger.Error("remove channel failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return p.edit(ctx, press, mainMenu(textInternalError))
	}
	p.logger.Info("channel removed", slog.String("channel_id", channelID), slog.Int64("operator_id", press.UserID))
	return p.edit(ctx, press, removedView(channelID))
}

func (p *Panel) approveAll(ctx context.Context, press Press, channelID string) error {
	if err := p.edit(ctx, press, progressView()); err != nil {
		p.logger.Warn("show progress failed", slog.Any("error", err))
	}
	res, err := p.deps.Approver.ApproveAll(ctx, channelID)
	if view, ok := p.approvalFailureView(channelID, res, err); ok {
		return p.edit(ctx, press, view)
	}
	return p.edit(ctx, press, approveAllResultView(res))
}

func (p *Panel) approveCount(ctx context.Context, msg Message, text string) error {
	channelID := p.sessions.get(msg.UserID).countChannel
	n, err := strconv.Atoi(text)
	if err != nil {
		return p.reply(ctx, msg.ChatID, withCancel(textCountInvalid))
	}
	if n <= 0 {
		return p.reply(ctx, msg.ChatID, withCancel(textCountNotPositive))
	}
	p.sessions.update(msg.UserID, func(s *session) { s.countChannel = "" })

	progressID, err := p.deps.Responder.Send(ctx, msg.ChatID, progressView())
	if err != nil {
		p.logger.Warn("show progress failed", slog.Any("error", err))
	}
	res, err := p.deps.Approver.ApproveSample(ctx, channelID, n)
	view, failed := p.approvalFailureView(channelID, res, err)
	if !failed {
		view = approveSampleResultView(res)
	}
	if progressID != 0 {
		return p.deps.Responder.Edit(ctx, msg.ChatID, progressID, view)
	}
	return p.reply(ctx, msg.ChatID, view)
}

func (p *Panel) approvalFailureView(channelID string, res approval.Result, err error) (View, bool) {
	switch {
	case errors.Is(err, approval.ErrInvalidCount):
		return withCancel(textCountNotPositive), true
	case errors.Is(err, approval.ErrNotChannelAdmin):
		return mainMenu(textNotAdmin), true
	case err != nil:
		p.logger.Error("approval failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return mainMenu(textAccessFailed), true
	case res.Empty:
		return mainMenu(textNoPending), true
	}
	return View{}, false
}

func (p *Panel) reply(ctx context.Context, chatID int64, view View) error {
	_, err := p.deps.Responder.Send(ctx, chatID, view)
	return err
}

func (p *Panel) edit(ctx context.Context, press Press, view View) error {
	return p.deps.Responder.Edit(ctx, press.ChatID, press.MessageID, view)
}
