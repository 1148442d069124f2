// Package modules groups the fx providers that assemble the joingate daemon.
package modules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/fx"

	"github.com/memohai/joingate/internal/boot"
	"github.com/memohai/joingate/internal/channels"
	"github.com/memohai/joingate/internal/config"
	"github.com/memohai/joingate/internal/db"
	"github.com/memohai/joingate/internal/ledger"
	"github.com/memohai/joingate/internal/logger"
	"github.com/memohai/joingate/internal/panel"
	"github.com/memohai/joingate/internal/storage"
)

// ConfigPath is the TOML file the daemon loads. Empty means config.DefaultConfigPath.
type ConfigPath string

// InfraModule provides configuration, logging and the storage backends.
var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		boot.ProvideRuntimeConfig,
		provideOperators,
		provideStores,
		provideLedger,
	),
)

// ---------------------------------------------------------------------------
// infrastructure providers
// ---------------------------------------------------------------------------

func provideConfig(path ConfigPath) (config.Config, error) {
	cfg, err := config.Load(string(path))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideOperators(rc *boot.RuntimeConfig) *panel.Operators {
	return panel.NewOperators(rc.AdminIDs)
}

type storesResult struct {
	fx.Out

	Registry channels.Store
	Ledger   ledger.Store
}

func provideStores(lc fx.Lifecycle, log *slog.Logger, rc *boot.RuntimeConfig) (storesResult, error) {
	stores, err := OpenStores(context.Background(), log, StorageOptions{
		Driver:     rc.StorageDriver,
		DataDir:    rc.DataDir,
		SQLitePath: rc.SQLitePath,
		MaxEntries: rc.MaxEntries,
	})
	if err != nil {
		return storesResult{}, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return stores.Close()
		},
	})
	return storesResult{Registry: stores.Registry, Ledger: stores.Ledger}, nil
}

func provideLedger(log *slog.Logger, store ledger.Store) *ledger.Ledger {
	return ledger.New(log, store)
}

// StorageOptions selects and configures the persistence backend.
type StorageOptions struct {
	Driver     string
	DataDir    string
	SQLitePath string
	MaxEntries int
}

// StorageOptionsFromConfig applies the same fallbacks as the daemon without requiring bot settings.
func StorageOptionsFromConfig(cfg config.Config) StorageOptions {
	opts := StorageOptions{
		Driver:     strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		DataDir:    cfg.Storage.DataDir,
		SQLitePath: cfg.Storage.SQLitePath,
		MaxEntries: cfg.Ledger.MaxEntries,
	}
	if opts.Driver == "" {
		opts.Driver = config.DefaultStorageDriver
	}
	if opts.DataDir == "" {
		opts.DataDir = config.DefaultDataDir
	}
	if opts.SQLitePath == "" {
		opts.SQLitePath = config.DefaultSQLitePath
	}
	return opts
}

// Stores bundles the channel registry and the request ledger backend.
type Stores struct {
	Registry channels.Store
	Ledger   ledger.Store
	close    func() error
}

// Close releases the backend.
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores opens the registry and ledger on the configured driver.
// The sqlite driver applies pending migrations first.
func OpenStores(ctx context.Context, log *slog.Logger, opts StorageOptions) (*Stores, error) {
	switch opts.Driver {
	case config.StorageDriverSQLite:
		conn, err := db.OpenMigrated(ctx, log, opts.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info("storage ready", slog.String("driver", opts.Driver), slog.String("path", opts.SQLitePath))
		return &Stores{
			Registry: channels.NewSQLStore(conn),
			Ledger:   ledger.NewSQLStore(conn, opts.MaxEntries),
			close:    conn.Close,
		}, nil
	case config.StorageDriverFile, "":
		provider, err := storage.NewLocal(opts.DataDir)
		if err != nil {
			return nil, err
		}
		log.Info("storage ready", slog.String("driver", config.StorageDriverFile), slog.String("dir", opts.DataDir))
		return &Stores{
			Registry: channels.NewFileStore(provider),
			Ledger:   ledger.NewFileStore(provider, opts.MaxEntries),
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", opts.Driver)
	}
}
