// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath      = "config.toml"
	DefaultEnvPath         = ".env"
	DefaultDataDir         = "data"
	DefaultSQLitePath      = "data/joingate.db"
	DefaultStorageDriver   = StorageDriverFile
	DefaultMaxEntries      = 1000
	DefaultPollTimeout     = 30
	DefaultRatePerSecond   = 20.0
	DefaultRateBurst       = 1
	DefaultRefreshSchedule = "@every 30m"
	DefaultJWTExpiresIn    = "720h"
)

// Storage drivers accepted in [storage].driver.
const (
	StorageDriverFile   = "file"
	StorageDriverSQLite = "sqlite"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Bot      BotConfig      `toml:"bot"`
	Storage  StorageConfig  `toml:"storage"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Approval ApprovalConfig `toml:"approval"`
	Rights   RightsConfig   `toml:"rights"`
	Server   ServerConfig   `toml:"server"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// BotConfig holds the Telegram bot token and the operator allow-list.
type BotConfig struct {
	Token       string  `toml:"token"`
	AdminIDs    []int64 `toml:"admin_ids"`
	APIEndpoint string  `toml:"api_endpoint"`
	PollTimeout int     `toml:"poll_timeout"`
}

// StorageConfig selects the persistence backend for the registry and the ledger.
type StorageConfig struct {
	Driver     string `toml:"driver"`
	DataDir    string `toml:"data_dir"`
	SQLitePath string `toml:"sqlite_path"`
}

// LedgerConfig holds the per (user, channel) retention cap.
type LedgerConfig struct {
	MaxEntries int `toml:"max_entries"`
}

// ApprovalConfig paces approve calls against the platform rate limit.
type ApprovalConfig struct {
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
}

// RightsConfig holds the cron spec of the bot-rights refresher. Empty disables it.
type RightsConfig struct {
	RefreshSchedule string `toml:"refresh_schedule"`
}

// ServerConfig holds the HTTP admin API listen address and token settings.
// An empty Addr disables the HTTP API.
type ServerConfig struct {
	Addr         string `toml:"addr"`
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Bot: BotConfig{
			PollTimeout: DefaultPollTimeout,
		},
		Storage: StorageConfig{
			Driver:     DefaultStorageDriver,
			DataDir:    DefaultDataDir,
			SQLitePath: DefaultSQLitePath,
		},
		Ledger: LedgerConfig{
			MaxEntries: DefaultMaxEntries,
		},
		Approval: ApprovalConfig{
			RatePerSecond: DefaultRatePerSecond,
			Burst:         DefaultRateBurst,
		},
		Rights: RightsConfig{
			RefreshSchedule: DefaultRefreshSchedule,
		},
		Server: ServerConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
	}
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
// A .env file next to the working directory is loaded first and environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	// Missing .env is the normal case outside development.
	_ = godotenv.Load(DefaultEnvPath)

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if value := strings.TrimSpace(os.Getenv("BOT_TOKEN")); value != "" {
		cfg.Bot.Token = value
	}
	if value := strings.TrimSpace(os.Getenv("ADMIN_IDS")); value != "" {
		ids, err := ParseAdminIDs(value)
		if err != nil {
			return err
		}
		cfg.Bot.AdminIDs = ids
	}
	if value := os.Getenv("HTTP_ADDR"); value != "" {
		cfg.Server.Addr = value
	}
	if value := os.Getenv("JWT_SECRET"); value != "" {
		cfg.Server.JWTSecret = value
	}
	return nil
}

// ParseAdminIDs parses a comma separated list of operator ids, skipping empty items.
func ParseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, &AdminIDError{Value: part, Err: err}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AdminIDError reports an unparsable operator id in ADMIN_IDS.
type AdminIDError struct {
	Value string
	Err   error
}

func (e *AdminIDError) Error() string {
	return "invalid admin id " + strconv.Quote(e.Value) + ": " + e.Err.Error()
}

func (e *AdminIDError) Unwrap() error { return e.Err }
