package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/memohai/joingate/internal/approval"
	"github.com/memohai/joingate/internal/boot"
	"github.com/memohai/joingate/internal/channels"
	"github.com/memohai/joingate/internal/handlers"
	"github.com/memohai/joingate/internal/ledger"
	"github.com/memohai/joingate/internal/panel"
	"github.com/memohai/joingate/internal/server"
	"github.com/memohai/joingate/internal/version"
)

// ServerModule provides the HTTP admin API and starts it when server.addr is set.
var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(provideChannelsHandler),
		provideServerHandler(provideApprovalHandler),
		provideServer,
	),
	fx.Invoke(startServer),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideChannelsHandler(log *slog.Logger, registry channels.Store, l *ledger.Ledger, ops *panel.Operators) *handlers.ChannelsHandler {
	return handlers.NewChannelsHandler(log, registry, l, ops)
}

func provideApprovalHandler(log *slog.Logger, engine *approval.Engine, ops *panel.Operators) *handlers.ApprovalHandler {
	return handlers.NewApprovalHandler(log, engine, ops)
}

// ---------------------------------------------------------------------------
// server
// ---------------------------------------------------------------------------

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.RuntimeConfig.JwtSecret, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, rc *boot.RuntimeConfig, srv *server.Server, shutdowner fx.Shutdowner) {
	if rc.ServerAddr == "" {
		logger.Info("http api disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting http api", slog.String("version", version.GetInfo()))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
