package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/memohai/joingate/internal/storage"
)

// FileKey is the storage key of the ledger document.
const FileKey = "users.json"

// FileStore keeps the whole ledger in one JSON document and rewrites it on every change.
// Read-modify-write cycles are serialised in-process.
type FileStore struct {
	provider   storage.Provider
	maxEntries int
	mu         sync.Mutex
}

// NewFileStore returns a ledger backed by provider, keeping at most maxEntries per pair.
func NewFileStore(provider storage.Provider, maxEntries int) *FileStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &FileStore{provider: provider, maxEntries: maxEntries}
}

func (s *FileStore) load(ctx context.Context) (Root, error) {
	data, err := storage.ReadAll(ctx, s.provider, FileKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Root{}, nil
		}
		return nil, err
	}
	root := Root{}
	if len(bytes.TrimSpace(data)) == 0 {
		return root, nil
	}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return root, nil
}

func (s *FileStore) save(ctx context.Context, root Root) error {
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	return s.provider.Put(ctx, FileKey, bytes.NewReader(data))
}

// Append implements Store.
func (s *FileStore) Append(ctx context.Context, userID int64, channelID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, err := s.load(ctx)
	if err != nil {
		return err
	}
	root.Append(userID, channelID, at, s.maxEntries)
	return s.save(ctx, root)
}

// Pending implements Store.
func (s *FileStore) Pending(ctx context.Context, channelID string, since, until time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return root.Pending(channelID, since, until), nil
}

// Resolve implements Store.
func (s *FileStore) Resolve(ctx context.Context, userID int64, channelID string, status Status, at time.Time) (int, error) {
	if !status.Terminal() {
		return 0, fmt.Errorf("resolve: status %q is not terminal", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	root, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	changed := root.Resolve(userID, channelID, status, at)
	if changed == 0 {
		return 0, nil
	}
	if err := s.save(ctx, root); err != nil {
		return 0, err
	}
	return changed, nil
}

// Entries implements Store.
func (s *FileStore) Entries(ctx context.Context, userID int64, channelID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return root.Entries(userID, channelID), nil
}
