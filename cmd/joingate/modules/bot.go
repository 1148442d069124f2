package modules

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/fx"

	"github.com/memohai/joingate/internal/approval"
	"github.com/memohai/joingate/internal/boot"
	"github.com/memohai/joingate/internal/channels"
	"github.com/memohai/joingate/internal/ledger"
	"github.com/memohai/joingate/internal/notify"
	"github.com/memohai/joingate/internal/panel"
	"github.com/memohai/joingate/internal/schedule"
	"github.com/memohai/joingate/internal/telegram"
)

// BotModule wires the Telegram client, the approval engine, the operator panel and the background workers.
var BotModule = fx.Module(
	"bot",
	fx.Provide(
		provideBot,
		provideGateway,
		provideResponder,
		provideEngine,
		provideDispatcher,
		providePanel,
		providePoller,
		provideRefresher,
	),
	fx.Invoke(
		startRefresher,
		startPoller,
	),
)

// ---------------------------------------------------------------------------
// telegram
// ---------------------------------------------------------------------------

func provideBot(log *slog.Logger, rc *boot.RuntimeConfig) (*tgbotapi.BotAPI, error) {
	bot, err := telegram.NewBot(log, rc.BotToken, rc.APIEndpoint)
	if err != nil {
		return nil, err
	}
	log.Info("authorized", slog.String("bot", bot.Self.UserName), slog.Int64("bot_id", bot.Self.ID))
	return bot, nil
}

func provideGateway(log *slog.Logger, bot *tgbotapi.BotAPI) *telegram.Gateway {
	return telegram.NewGatewayFromBot(log, bot)
}

func provideResponder(log *slog.Logger, bot *tgbotapi.BotAPI) *telegram.Responder {
	return telegram.NewResponder(log, bot)
}

// ---------------------------------------------------------------------------
// domain
// ---------------------------------------------------------------------------

func provideEngine(log *slog.Logger, gw *telegram.Gateway, l *ledger.Ledger, registry channels.Store, rc *boot.RuntimeConfig) *approval.Engine {
	return approval.NewEngine(log, gw, l, approval.Config{
		RatePerSecond: rc.RatePerSecond,
		Burst:         rc.RateBurst,
	}, approval.WithRegistry(registry))
}

func provideDispatcher(log *slog.Logger, gw *telegram.Gateway, l *ledger.Ledger, registry channels.Store, ops *panel.Operators, rc *boot.RuntimeConfig) *notify.Dispatcher {
	return notify.NewDispatcher(log, gw, l, registry, ops.IDs(), rc.RatePerSecond)
}

func providePanel(log *slog.Logger, ops *panel.Operators, registry channels.Store, l *ledger.Ledger, engine *approval.Engine, gw *telegram.Gateway, responder *telegram.Responder) *panel.Panel {
	return panel.New(log, panel.Deps{
		Operators: ops,
		Registry:  registry,
		Stats:     l,
		Approver:  engine,
		Gateway:   gw,
		Responder: responder,
	})
}

func providePoller(log *slog.Logger, bot *tgbotapi.BotAPI, dispatcher *notify.Dispatcher, p *panel.Panel, rc *boot.RuntimeConfig) *telegram.Poller {
	return telegram.NewPoller(log, bot, dispatcher, p, rc.PollTimeout)
}

func provideRefresher(log *slog.Logger, registry channels.Store, gw *telegram.Gateway, rc *boot.RuntimeConfig) (*schedule.Service, error) {
	return schedule.NewService(log, registry, gw, rc.RefreshSchedule)
}

func startPoller(lc fx.Lifecycle, poller *telegram.Poller) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return poller.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			return poller.Stop(ctx)
		},
	})
}

func startRefresher(lc fx.Lifecycle, refresher *schedule.Service, rc *boot.RuntimeConfig, logger *slog.Logger) {
	if rc.RefreshSchedule == "" {
		logger.Info("rights refresher disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return refresher.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			return refresher.Stop(ctx)
		},
	})
}
