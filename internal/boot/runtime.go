// Package boot provides runtime configuration and dependency wiring for the gateway.
package boot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/memohai/joingate/internal/config"
)

// RuntimeConfig holds validated, typed runtime settings derived from config.Config.
type RuntimeConfig struct {
	BotToken        string
	APIEndpoint     string
	PollTimeout     int
	AdminIDs        []int64
	StorageDriver   string
	DataDir         string
	SQLitePath      string
	MaxEntries      int
	RatePerSecond   float64
	RateBurst       int
	RefreshSchedule string
	ServerAddr      string
	JwtSecret       string
	JwtExpiresIn    time.Duration
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and validates it.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	token := strings.TrimSpace(cfg.Bot.Token)
	if token == "" {
		return nil, errors.New("bot token is required")
	}
	if len(cfg.Bot.AdminIDs) == 0 {
		return nil, errors.New("at least one admin id is required")
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch driver {
	case "":
		driver = config.DefaultStorageDriver
	case config.StorageDriverFile, config.StorageDriverSQLite:
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}

	ret := &RuntimeConfig{
		BotToken:        token,
		APIEndpoint:     strings.TrimSpace(cfg.Bot.APIEndpoint),
		PollTimeout:     cfg.Bot.PollTimeout,
		AdminIDs:        dedupeIDs(cfg.Bot.AdminIDs),
		StorageDriver:   driver,
		DataDir:         cfg.Storage.DataDir,
		SQLitePath:      cfg.Storage.SQLitePath,
		MaxEntries:      cfg.Ledger.MaxEntries,
		RatePerSecond:   cfg.Approval.RatePerSecond,
		RateBurst:       cfg.Approval.Burst,
		RefreshSchedule: strings.TrimSpace(cfg.Rights.RefreshSchedule),
		ServerAddr:      strings.TrimSpace(cfg.Server.Addr),
		JwtSecret:       cfg.Server.JWTSecret,
	}
	if ret.PollTimeout <= 0 {
		ret.PollTimeout = config.DefaultPollTimeout
	}
	if ret.DataDir == "" {
		ret.DataDir = config.DefaultDataDir
	}
	if ret.SQLitePath == "" {
		ret.SQLitePath = config.DefaultSQLitePath
	}
	if ret.MaxEntries <= 0 {
		ret.MaxEntries = config.DefaultMaxEntries
	}
	if ret.RateBurst <= 0 {
		ret.RateBurst = config.DefaultRateBurst
	}

	if ret.ServerAddr != "" {
		if strings.TrimSpace(ret.JwtSecret) == "" {
			return nil, errors.New("jwt secret is required when the http api is enabled")
		}
		expires := cfg.Server.JWTExpiresIn
		if strings.TrimSpace(expires) == "" {
			expires = config.DefaultJWTExpiresIn
		}
		d, err := time.ParseDuration(expires)
		if err != nil {
			return nil, fmt.Errorf("invalid jwt expires in: %w", err)
		}
		ret.JwtExpiresIn = d
	}
	return ret, nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
