package channels

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/joingate/internal/db"
	"github.com/memohai/joingate/internal/isotime"
	"github.com/memohai/joingate/internal/logger"
	"github.com/memohai/joingate/internal/storage"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	p, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return NewFileStore(p)
}

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	conn, err := db.OpenMigrated(context.Background(), logger.Discard(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewSQLStore(conn)
}

func storesUnderTest(t *testing.T) map[string]Store {
	return map[string]Store{
		"file":   newFileStore(t),
		"sqlite": newSQLStore(t),
	}
}

func sampleRecord(id string) Record {
	return Record{
		ID:         id,
		Title:      "News " + id,
		Username:   "news",
		AddedAt:    isotime.Of(time.Date(2024, 3, 4, 5, 6, 7, 800, time.UTC)),
		IsBotAdmin: true,
	}
}

func TestStoreSaveLoadDelete(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sampleRecord("-100123")

			require.NoError(t, store.Save(ctx, rec))
			got, ok, err := store.Load(ctx, "-100123")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, rec, got)

			require.NoError(t, store.Delete(ctx, "-100123"))
			_, ok, err = store.Load(ctx, "-100123")
			require.NoError(t, err)
			assert.False(t, ok)

			// idempotent delete
			assert.NoError(t, store.Delete(ctx, "-100123"))
		})
	}
}

func TestStoreSaveOverwritesWithoutMerge(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, sampleRecord("-1001")))
			require.NoError(t, store.Save(ctx, Record{ID: "-1001", Title: "Renamed"}))

			got, ok, err := store.Load(ctx, "-1001")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "Renamed", got.Title)
			assert.Empty(t, got.Username)
			assert.False(t, got.IsBotAdmin)
		})
	}
}

func TestStoreListAndUpdateRights(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"-1003", "-1001", "-1002"} {
				require.NoError(t, store.Save(ctx, sampleRecord(id)))
			}
			list, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "-1001", list[0].ID)
			assert.Equal(t, "-1003", list[2].ID)

			ok, err := store.UpdateRights(ctx, "-1002", false)
			require.NoError(t, err)
			assert.True(t, ok)
			got, _, err := store.Load(ctx, "-1002")
			require.NoError(t, err)
			assert.False(t, got.IsBotAdmin)
			assert.Equal(t, "News -1002", got.Title)

			ok, err = store.UpdateRights(ctx, "-1009", true)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreRejectsInvalidID(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.True(t, errors.Is(store.Save(ctx, Record{ID: "../etc"}), ErrInvalidID))
			_, _, err := store.Load(ctx, "")
			assert.ErrorIs(t, err, ErrInvalidID)
		})
	}
}

func TestFileStoreLayoutIsCompatible(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	p, err := storage.NewLocal(root)
	require.NoError(t, err)
	store := NewFileStore(p)

	legacy := `{
  "id": "-100555",
  "title": "Legacy",
  "username": null,
  "added_date": "2024-02-01T09:30:00.123456",
  "is_bot_admin": true
}`
	require.NoError(t, p.Put(ctx, "channels/-100555.json", strings.NewReader(legacy)))

	got, ok, err := store.Load(ctx, "-100555")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Legacy", got.Title)
	assert.Empty(t, got.Username)
	assert.True(t, got.IsBotAdmin)
	assert.Equal(t, 2024, got.AddedAt.Year())

	require.NoError(t, store.Save(ctx, got))
	data, err := storage.ReadAll(ctx, p, "channels/-100555.json")
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"id", "title", "username", "added_date", "is_bot_admin"} {
		assert.Contains(t, raw, key)
	}
}

func TestRecordHelpers(t *testing.T) {
	assert.Equal(t, "Unknown", Record{}.DisplayTitle())
	assert.Equal(t, "@news", Record{Username: "news"}.Handle())
	assert.Equal(t, "@news", Record{Username: "@news"}.Handle())
	assert.Empty(t, Record{}.Handle())
}

func TestSyncRights(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, sampleRecord("-1001")))

			changed, err := SyncRights(ctx, store, "-1001", true)
			require.NoError(t, err)
			assert.False(t, changed)

			changed, err = SyncRights(ctx, store, "-1001", false)
			require.NoError(t, err)
			assert.True(t, changed)
			got, _, err := store.Load(ctx, "-1001")
			require.NoError(t, err)
			assert.False(t, got.IsBotAdmin)

			changed, err = SyncRights(ctx, store, "-1009", true)
			require.NoError(t, err)
			assert.False(t, changed)
			_, found, err := store.Load(ctx, "-1009")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}
