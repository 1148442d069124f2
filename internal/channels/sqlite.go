package channels

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/memohai/joingate/internal/db"
	"github.com/memohai/joingate/internal/isotime"
)

// SQLStore keeps channel records in the channels table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore returns a registry backed by a migrated SQLite database.
func NewSQLStore(conn *sql.DB) *SQLStore {
	return &SQLStore{db: conn}
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, record Record) error {
	id, err := NormalizeID(record.ID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO channels (id, title, username, added_at, is_bot_admin)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			username = excluded.username,
			added_at = excluded.added_at,
			is_bot_admin = excluded.is_bot_admin`,
		id, record.Title, record.Username, db.FormatTime(record.AddedAt.Time), record.IsBotAdmin)
	if err != nil {
		return fmt.Errorf("save channel %s: %w", id, err)
	}
	return nil
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, channelID string) (Record, bool, error) {
	id, err := NormalizeID(channelID)
	if err != nil {
		return Record{}, false, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, username, added_at, is_bot_admin FROM channels WHERE id = ?`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("load channel %s: %w", id, err)
	}
	return record, true, nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, username, added_at, is_bot_admin FROM channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list channels: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, channelID string) error {
	id, err := NormalizeID(channelID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete channel %s: %w", id, err)
	}
	return nil
}

// UpdateRights implements Store.
func (s *SQLStore) UpdateRights(ctx context.Context, channelID string, isAdmin bool) (bool, error) {
	id, err := NormalizeID(channelID)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE channels SET is_bot_admin = ? WHERE id = ?`, isAdmin, id)
	if err != nil {
		return false, fmt.Errorf("update rights %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		record  Record
		addedAt string
	)
	if err := row.Scan(&record.ID, &record.Title, &record.Username, &addedAt, &record.IsBotAdmin); err != nil {
		return Record{}, err
	}
	t, err := db.ParseTime(addedAt)
	if err != nil {
		return Record{}, err
	}
	record.AddedAt = isotime.Of(t)
	return record, nil
}
