package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Ledger is the request ledger used by the rest of the bot. It owns the clock
// that stamps new entries and anchors the pending window.
type Ledger struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// New wraps store.
func New(log *slog.Logger, store Store, opts ...Option) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	l := &Ledger{
		store:  store,
		now:    time.Now,
		logger: log.With(slog.String("service", "ledger")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger clock reading.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// Record appends a pending entry for the pair. A zero at means now.
func (l *Ledger) Record(ctx context.Context, userID int64, channelID string, at time.Time) error {
	if at.IsZero() {
		at = l.now()
	}
	if err := l.store.Append(ctx, userID, channelID, at); err != nil {
		return fmt.Errorf("record join request %d/%s: %w", userID, channelID, err)
	}
	l.logger.Debug("join request recorded",
		slog.Int64("user_id", userID),
		slog.String("channel_id", channelID))
	return nil
}

// Pending lists users with a pending entry for the channel inside [now-window, now].
// A window of zero or less is unbounded.
func (l *Ledger) Pending(ctx context.Context, channelID string, window time.Duration) ([]int64, error) {
	var since, until time.Time
	if window > 0 {
		until = l.now()
		since = until.Add(-window)
	}
	users, err := l.store.Pending(ctx, channelID, since, until)
	if err != nil {
		return nil, fmt.Errorf("pending for %s: %w", channelID, err)
	}
	return users, nil
}

// Resolve moves the pair's pending entries to status. A zero at means now.
func (l *Ledger) Resolve(ctx context.Context, userID int64, channelID string, status Status, at time.Time) (int, error) {
	if at.IsZero() {
		at = l.now()
	}
	n, err := l.store.Resolve(ctx, userID, channelID, status, at)
	if err != nil {
		return 0, fmt.Errorf("resolve %d/%s: %w", userID, channelID, err)
	}
	return n, nil
}

// Entries returns the stored sequence for the pair.
func (l *Ledger) Entries(ctx context.Context, userID int64, channelID string) ([]Entry, error) {
	return l.store.Entries(ctx, userID, channelID)
}

// Summary holds the pending counts shown on a channel's detail view.
type Summary struct {
	Pending   int `json:"pending"`
	LastDay   int `json:"last_day"`
	LastMonth int `json:"last_month"`
}

// Summarize counts pending users for the channel overall, in the last 24 hours and in the
// last 30 days, relative to now.
func Summarize(ctx context.Context, store Store, channelID string, now time.Time) (Summary, error) {
	var sum Summary
	all, err := store.Pending(ctx, channelID, time.Time{}, time.Time{})
	if err != nil {
		return sum, err
	}
	day, err := store.Pending(ctx, channelID, now.Add(-DayWindow), now)
	if err != nil {
		return sum, err
	}
	month, err := store.Pending(ctx, channelID, now.Add(-MonthWindow), now)
	if err != nil {
		return sum, err
	}
	sum.Pending = len(all)
	sum.LastDay = len(day)
	sum.LastMonth = len(month)
	return sum, nil
}

// Summarize runs Summarize against the ledger clock.
func (l *Ledger) Summarize(ctx context.Context, channelID string) (Summary, error) {
	sum, err := Summarize(ctx, l.store, channelID, l.now())
	if err != nil {
		return sum, fmt.Errorf("summarize %s: %w", channelID, err)
	}
	return sum, nil
}
