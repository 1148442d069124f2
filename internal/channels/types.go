// Package channels is the channel registry: durable metadata for every managed channel.
package channels

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/memohai/joingate/internal/isotime"
)

// ErrInvalidID is returned for channel ids that are not signed integers.
var ErrInvalidID = errors.New("invalid channel id")

// Record is the stored metadata of one channel.
type Record struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Username   string       `json:"username"`
	AddedAt    isotime.Time `json:"added_date"`
	IsBotAdmin bool         `json:"is_bot_admin"`
}

// DisplayTitle returns the title or a placeholder for untitled channels.
func (r Record) DisplayTitle() string {
	if title := strings.TrimSpace(r.Title); title != "" {
		return title
	}
	return "Unknown"
}

// Handle returns "@username" or an empty string.
func (r Record) Handle() string {
	name := strings.TrimSpace(r.Username)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "@") {
		return name
	}
	return "@" + name
}

// ChatInfo is the channel metadata reported by the messaging platform.
type ChatInfo struct {
	ID       string
	Title    string
	Username string
}

// NewRecord builds the registry record for a freshly fetched channel.
func NewRecord(info ChatInfo, isBotAdmin bool, addedAt time.Time) Record {
	return Record{
		ID:         info.ID,
		Title:      info.Title,
		Username:   info.Username,
		AddedAt:    isotime.Of(addedAt),
		IsBotAdmin: isBotAdmin,
	}
}

// Store persists channel records. Concurrent writers to the same channel are last-write-wins.
type Store interface {
	// Save overwrites or creates the record with record.ID. No merge semantics.
	Save(ctx context.Context, record Record) error
	// Load returns the record and whether it exists. Absence is not an error.
	Load(ctx context.Context, channelID string) (Record, bool, error)
	// List returns every stored record ordered by ID.
	List(ctx context.Context) ([]Record, error)
	// Delete removes the record. Deleting an absent record is a no-op.
	Delete(ctx context.Context, channelID string) error
	// UpdateRights sets IsBotAdmin on an existing record and reports whether it existed.
	UpdateRights(ctx context.Context, channelID string, isAdmin bool) (bool, error)
}

// NormalizeID trims id and checks it is a signed integer chat id.
func NormalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidID
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return "", ErrInvalidID
	}
	return id, nil
}

// RightsStore is the part of Store that keeps IsBotAdmin current.
type RightsStore interface {
	Load(ctx context.Context, channelID string) (Record, bool, error)
	UpdateRights(ctx context.Context, channelID string, isAdmin bool) (bool, error)
}

// SyncRights stores a freshly checked rights flag when it differs from the stored one
// and reports whether the record changed. Unregistered channels are left alone.
func SyncRights(ctx context.Context, store RightsStore, channelID string, isAdmin bool) (bool, error) {
	rec, found, err := store.Load(ctx, channelID)
	if err != nil || !found || rec.IsBotAdmin == isAdmin {
		return false, err
	}
	if _, err := store.UpdateRights(ctx, channelID, isAdmin); err != nil {
		return false, err
	}
	return true, nil
}
