package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/memohai/joingate/internal/db"
	"github.com/memohai/joingate/internal/isotime"
)

// SQLStore keeps entries in the join_requests table, one row per entry.
type SQLStore struct {
	db         *sql.DB
	maxEntries int
}

// NewSQLStore returns a ledger backed by a migrated SQLite database.
func NewSQLStore(conn *sql.DB, maxEntries int) *SQLStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &SQLStore{db: conn, maxEntries: maxEntries}
}

// Append implements Store. The insert and the trim share one transaction.
func (s *SQLStore) Append(ctx context.Context, userID int64, channelID string, at time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var last string
	err = tx.QueryRowContext(ctx, `
		SELECT requested_at FROM join_requests
		WHERE user_id = ? AND channel_id = ?
		ORDER BY id DESC LIMIT 1`, userID, channelID).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		return fmt.Errorf("read last entry: %w", err)
	default:
		if prev, perr := db.ParseTime(last); perr == nil && at.Before(prev) {
			at = prev
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO join_requests (user_id, channel_id, requested_at, status)
		VALUES (?, ?, ?, ?)`, userID, channelID, db.FormatTime(at), string(StatusPending)); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		DELETE FROM join_requests
		WHERE user_id = ? AND channel_id = ? AND id NOT IN (
			SELECT id FROM join_requests
			WHERE user_id = ? AND channel_id = ?
			ORDER BY id DESC LIMIT ?
		)`, userID, channelID, userID, channelID, s.maxEntries); err != nil {
		return fmt.Errorf("trim entries: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// Pending implements Store.
func (s *SQLStore) Pending(ctx context.Context, channelID string, since, until time.Time) ([]int64, error) {
	var (
		where = []string{"channel_id = ?", "status = ?"}
		args  = []any{channelID, string(StatusPending)}
	)
	if !since.IsZero() {
		where = append(where, "requested_at >= ?")
		args = append(args, db.FormatTime(since))
	}
	if !until.IsZero() {
		where = append(where, "requested_at <= ?")
		args = append(args, db.FormatTime(until))
	}
	query := "SELECT DISTINCT user_id FROM join_requests WHERE " +
		strings.Join(where, " AND ") + " ORDER BY user_id"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()
	users := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// Resolve implements Store.
func (s *SQLStore) Resolve(ctx context.Context, userID int64, channelID string, status Status, at time.Time) (int, error) {
	if !status.Terminal() {
		return 0, fmt.Errorf("resolve: status %q is not terminal", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE join_requests SET status = ?, resolved_at = ?
		WHERE user_id = ? AND channel_id = ? AND status = ?`,
		string(status), db.FormatTime(at), userID, channelID, string(StatusPending))
	if err != nil {
		return 0, fmt.Errorf("resolve entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Entries implements Store.
func (s *SQLStore) Entries(ctx context.Context, userID int64, channelID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT requested_at, status, resolved_at FROM join_requests
		WHERE user_id = ? AND channel_id = ?
		ORDER BY id`, userID, channelID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var (
			requestedAt string
			status      string
			resolvedAt  sql.NullString
		)
		if err := rows.Scan(&requestedAt, &status, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		t, err := db.ParseTime(requestedAt)
		if err != nil {
			return nil, err
		}
		entry := Entry{Timestamp: isotime.Of(t), Status: Status(status)}
		if resolvedAt.Valid && resolvedAt.String != "" {
			rt, err := db.ParseTime(resolvedAt.String)
			if err != nil {
				return nil, err
			}
			r := isotime.Of(rt)
			entry.ResolvedAt = &r
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
