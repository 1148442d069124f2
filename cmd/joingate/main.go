package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/joingate/cmd/joingate/modules"
	dbfs "github.com/memohai/joingate/db"
	"github.com/memohai/joingate/internal/auth"
	"github.com/memohai/joingate/internal/channels"
	"github.com/memohai/joingate/internal/config"
	"github.com/memohai/joingate/internal/db"
	"github.com/memohai/joingate/internal/ledger"
	"github.com/memohai/joingate/internal/logger"
	"github.com/memohai/joingate/internal/version"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if strings.TrimSpace(defaultConfig) == "" {
		defaultConfig = config.DefaultConfigPath
	}

	root := &cobra.Command{
		Use:           "joingate",
		Short:         "Telegram join-request ledger and approval bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Path to config.toml")

	root.AddCommand(
		newServeCommand(),
		newVersionCommand(),
		newMigrateCommand(),
		newPendingCommand(),
		newChannelsCommand(),
		newTokenCommand(),
	)
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (and the HTTP API when server.addr is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				fx.Supply(modules.ConfigPath(configPath)),
				modules.InfraModule,
				modules.BotModule,
				modules.ServerModule,
				fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
					l := &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
					l.UseLogLevel(slog.LevelDebug)
					return l
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "joingate %s\n", version.GetInfo())
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down|version|force N",
		Short:     "Manage the sqlite schema",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{"up", "down", "version", "force"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			opts := modules.StorageOptionsFromConfig(cfg)
			return db.RunMigrate(log, opts.SQLitePath, dbfs.MigrationsFS, db.MigrationsDir, args[0], args[1:])
		},
	}
}

func newPendingCommand() *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "pending <channel-id>",
		Short: "List users with pending join requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			stores, err := modules.OpenStores(ctx, log, modules.StorageOptionsFromConfig(cfg))
			if err != nil {
				return err
			}
			defer stores.Close()

			channelID, err := channels.NormalizeID(args[0])
			if err != nil {
				return err
			}
			users, err := ledger.New(log, stores.Ledger).Pending(ctx, channelID, window)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range users {
				fmt.Fprintln(out, strconv.FormatInt(id, 10))
			}
			log.Info("pending listed", slog.Int("count", len(users)))
			return nil
		},
	}
	cmd.Flags().DurationVar(&window, "window", 0, "Only requests newer than this (0 = all time)")
	return cmd
}

func newChannelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "Print the channel registry as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			stores, err := modules.OpenStores(ctx, log, modules.StorageOptionsFromConfig(cfg))
			if err != nil {
				return err
			}
			defer stores.Close()

			records, err := stores.Registry.List(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		operatorID int64
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an HTTP API token for an operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			allowed := false
			for _, id := range cfg.Bot.AdminIDs {
				if id == operatorID {
					allowed = true
					break
				}
			}
			if !allowed {
				return fmt.Errorf("operator %d is not in bot.admin_ids", operatorID)
			}
			if ttl <= 0 {
				ttl, err = time.ParseDuration(cfg.Server.JWTExpiresIn)
				if err != nil {
					return fmt.Errorf("invalid jwt expires in: %w", err)
				}
			}
			token, expiresAt, err := auth.GenerateToken(operatorID, cfg.Server.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Int64Var(&operatorID, "operator", 0, "Operator Telegram user id")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to server.jwt_expires_in)")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	// Command output goes to stdout, so one-shot commands log to stderr.
	logger.InitWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, logger.L, nil
}
