// Package approval selects pending join requests and approves them through the messaging gateway.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/memohai/joingate/internal/channels"
	"github.com/memohai/joingate/internal/ledger"
)

var (
	// ErrInvalidCount is returned when a sample size is zero or negative.
	ErrInvalidCount = errors.New("approval: count must be positive")
	// ErrNotChannelAdmin is returned when the bot lacks admin rights in the channel.
	ErrNotChannelAdmin = errors.New("approval: bot is not an administrator of the channel")
)

// Gateway is the part of the messaging platform the engine drives.
type Gateway interface {
	IsBotAdmin(ctx context.Context, channelID string) (bool, error)
	ApproveJoinRequest(ctx context.Context, channelID string, userID int64) error
}

// Ledger is the subset of the request ledger the engine reads and updates.
type Ledger interface {
	Pending(ctx context.Context, channelID string, window time.Duration) ([]int64, error)
	Resolve(ctx context.Context, userID int64, channelID string, status ledger.Status, at time.Time) (int, error)
}

// Result summarises one batch.
type Result struct {
	BatchID   string `json:"batch_id"`
	ChannelID string `json:"channel_id"`
	Total     int    `json:"total"`
	Selected  int    `json:"selected"`
	Success   int    `json:"success"`
	Failure   int    `json:"failure"`
	Empty     bool   `json:"empty"`
}

// Config controls approval pacing.
type Config struct {
	RatePerSecond float64
	Burst         int
}

// Engine runs approve-all and approve-sample batches.
type Engine struct {
	gateway  Gateway
	ledger   Ledger
	registry channels.RightsStore
	limiter  *rate.Limiter
	logger   *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option customises an Engine.
type Option func(*Engine)

// WithRand sets the random source used for sampling.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithRegistry records every rights check on the channel's registry entry.
func WithRegistry(registry channels.RightsStore) Option {
	return func(e *Engine) {
		e.registry = registry
	}
}

// NewEngine builds an engine. A non-positive rate disables pacing.
func NewEngine(log *slog.Logger, gateway Gateway, l Ledger, cfg Config, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	e := &Engine{
		gateway: gateway,
		ledger:  l,
		limiter: rate.NewLimiter(limit, burst),
		logger:  log.With(slog.String("service", "approval")),
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApproveAll approves every pending user of the channel.
func (e *Engine) ApproveAll(ctx context.Context, channelID string) (Result, error) {
	res := Result{BatchID: uuid.NewString(), ChannelID: channelID}
	pending, err := e.ledger.Pending(ctx, channelID, 0)
	if err != nil {
		return res, err
	}
	res.Total = len(pending)
	if len(pending) == 0 {
		res.Empty = true
		return res, nil
	}
	if err := e.ensureAdmin(ctx, channelID); err != nil {
		return res, err
	}
	res.Selected = len(pending)
	e.run(ctx, &res, pending)
	return res, nil
}

// ApproveSample approves a uniformly random subset of n pending users. n larger than
// the pending set selects the whole set.
func (e *Engine) ApproveSample(ctx context.Context, channelID string, n int) (Result, error) {
	res := Result{BatchID: uuid.NewString(), ChannelID: channelID}
	if n <= 0 {
		return res, ErrInvalidCount
	}
	if err := e.ensureAdmin(ctx, channelID); err != nil {
		return res, err
	}
	pending, err := e.ledger.Pending(ctx, channelID, 0)
	if err != nil {
		return res, err
	}
	res.Total = len(pending)
	if len(pending) == 0 {
		res.Empty = true
		return res, nil
	}
	selected := e.sample(pending, n)
	res.Selected = len(selected)
	e.run(ctx, &res, selected)
	return res, nil
}

func (e *Engine) ensureAdmin(ctx context.Context, channelID string) error {
	ok, err := e.gateway.IsBotAdmin(ctx, channelID)
	if err != nil {
		return fmt.Errorf("check bot rights in %s: %w", channelID, err)
	}
	if e.registry != nil {
		changed, err := channels.SyncRights(ctx, e.registry, channelID, ok)
		if err != nil {
			e.logger.Warn("store bot rights failed", slog.String("channel_id", channelID), slog.Any("error", err))
		} else if changed {
			e.logger.Info("bot rights changed", slog.String("channel_id", channelID), slog.Bool("is_bot_admin", ok))
		}
	}
	if !ok {
		return ErrNotChannelAdmin
	}
	return nil
}

// sample draws min(n, len(users)) distinct users with a partial Fisher-Yates shuffle.
func (e *Engine) sample(users []int64, n int) []int64 {
	out := append([]int64(nil), users...)
	if n >= len(out) {
		return out
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	for i := 0; i < n; i++ {
		j := i + e.rng.IntN(len(out)-i)
		out[i], out[j] = out[j], out[i]
	}
	return out[:n]
}

func (e *Engine) run(ctx context.Context, res *Result, users []int64) {
	log := e.logger.With(
		slog.String("batch_id", res.BatchID),
		slog.String("channel_id", res.ChannelID))
	log.Info("approval batch started", slog.Int("selected", len(users)), slog.Int("total", res.Total))
	start := time.Now()

	for i, userID := range users {
		if err := e.limiter.Wait(ctx); err != nil {
			res.Failure += len(users) - i
			log.Warn("approval batch interrupted", slog.Int("remaining", len(users)-i), slog.Any("error", err))
			break
		}
		if err := e.gateway.ApproveJoinRequest(ctx, res.ChannelID, userID); err != nil {
			res.Failure++
			log.Error("approve join request failed", slog.Int64("user_id", userID), slog.Any("error", err))
			continue
		}
		res.Success++
		// The platform approval already happened; resolve even when ctx is done.
		if _, err := e.ledger.Resolve(context.WithoutCancel(ctx), userID, res.ChannelID, ledger.StatusApproved, time.Time{}); err != nil {
			log.Error("mark join request approved failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}

	log.Info("approval batch finished",
		slog.Int("success", res.Success),
		slog.Int("failure", res.Failure),
		slog.Duration("elapsed", time.Since(start)))
}
