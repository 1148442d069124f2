// Package ledger is the durable log of join requests, keyed by user and channel.
package ledger

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/memohai/joingate/internal/isotime"
)

// DefaultMaxEntries caps the entries kept per (user, channel) pair.
const DefaultMaxEntries = 1000

// Lookback windows used by the channel statistics view.
const (
	DayWindow   = 24 * time.Hour
	MonthWindow = 30 * 24 * time.Hour
)

// Status is the lifecycle state of one join request entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDeclined:
		return true
	}
	return false
}

// Terminal reports whether s is a resolved status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDeclined
}

// Entry is one recorded join request.
type Entry struct {
	Timestamp  isotime.Time  `json:"timestamp"`
	Status     Status        `json:"status"`
	ResolvedAt *isotime.Time `json:"resolved_at,omitempty"`
}

// Store persists the ledger. Implementations cap each pair at their configured maximum.
type Store interface {
	// Append adds a pending entry for the pair at the given time.
	Append(ctx context.Context, userID int64, channelID string, at time.Time) error
	// Pending returns the distinct users, ascending, that have a pending entry for the channel
	// with a timestamp in [since, until]. A zero since or until leaves that side open.
	Pending(ctx context.Context, channelID string, since, until time.Time) ([]int64, error)
	// Resolve moves every pending entry of the pair to status and returns how many changed.
	Resolve(ctx context.Context, userID int64, channelID string, status Status, at time.Time) (int, error)
	// Entries returns the stored sequence for the pair, oldest first.
	Entries(ctx context.Context, userID int64, channelID string) ([]Entry, error)
}

// Root is the whole ledger document: user id -> channel id -> entries (oldest first).
type Root map[string]map[string][]Entry

// Append adds a pending entry and trims the pair to the newest max entries.
// A timestamp older than the previous entry is raised to it so sequences never go backwards.
func (r Root) Append(userID int64, channelID string, at time.Time, max int) {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	userKey := strconv.FormatInt(userID, 10)
	byChannel, ok := r[userKey]
	if !ok {
		byChannel = map[string][]Entry{}
		r[userKey] = byChannel
	}
	entries := byChannel[channelID]
	if n := len(entries); n > 0 && at.Before(entries[n-1].Timestamp.Time) {
		at = entries[n-1].Timestamp.Time
	}
	entries = append(entries, Entry{Timestamp: isotime.Of(at), Status: StatusPending})
	if len(entries) > max {
		entries = append([]Entry(nil), entries[len(entries)-max:]...)
	}
	byChannel[channelID] = entries
}

// Pending scans every user for the channel. See Store.Pending.
func (r Root) Pending(channelID string, since, until time.Time) []int64 {
	seen := map[int64]struct{}{}
	for userKey, byChannel := range r {
		entries, ok := byChannel[channelID]
		if !ok {
			continue
		}
		userID, err := strconv.ParseInt(userKey, 10, 64)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.Status != StatusPending {
				continue
			}
			if !inRange(entry.Timestamp.Time, since, until) {
				continue
			}
			seen[userID] = struct{}{}
			break
		}
	}
	users := make([]int64, 0, len(seen))
	for id := range seen {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// Resolve marks the pair's pending entries with status.
func (r Root) Resolve(userID int64, channelID string, status Status, at time.Time) int {
	entries := r[strconv.FormatInt(userID, 10)][channelID]
	changed := 0
	for i := range entries {
		if entries[i].Status != StatusPending {
			continue
		}
		resolvedAt := isotime.Of(at)
		entries[i].Status = status
		entries[i].ResolvedAt = &resolvedAt
		changed++
	}
	return changed
}

// Entries returns a copy of the pair's sequence.
func (r Root) Entries(userID int64, channelID string) []Entry {
	entries := r[strconv.FormatInt(userID, 10)][channelID]
	return append([]Entry(nil), entries...)
}

func inRange(t, since, until time.Time) bool {
	if !since.IsZero() && t.Before(since) {
		return false
	}
	if !until.IsZero() && t.After(until) {
		return false
	}
	return true
}
