package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/memohai/joingate/internal/storage"
)

const (
	filePrefix = "channels"
	fileSuffix = ".json"
)

// FileStore keeps one JSON document per channel under channels/<id>.json.
type FileStore struct {
	provider storage.Provider
	mu       sync.Mutex
}

// NewFileStore returns a registry backed by provider.
func NewFileStore(provider storage.Provider) *FileStore {
	return &FileStore{provider: provider}
}

func channelKey(id string) string {
	return path.Join(filePrefix, id+fileSuffix)
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, record Record) error {
	id, err := NormalizeID(record.ID)
	if err != nil {
		return err
	}
	record.ID = id
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode channel %s: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider.Put(ctx, channelKey(id), bytes.NewReader(data))
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, channelID string) (Record, bool, error) {
	id, err := NormalizeID(channelID)
	if err != nil {
		return Record{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, id)
}

func (s *FileStore) load(ctx context.Context, id string) (Record, bool, error) {
	data, err := storage.ReadAll(ctx, s.provider, channelKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, false, fmt.Errorf("decode channel %s: %w", id, err)
	}
	return record, true, nil
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.provider.List(ctx, filePrefix, fileSuffix)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimSuffix(path.Base(key), fileSuffix)
		record, ok, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, channelID string) error {
	id, err := NormalizeID(channelID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider.Delete(ctx, channelKey(id))
}

// UpdateRights implements Store.
func (s *FileStore) UpdateRights(ctx context.Context, channelID string, isAdmin bool) (bool, error) {
	id, err := NormalizeID(channelID)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok, err := s.load(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	record.IsBotAdmin = isAdmin
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode channel %s: %w", id, err)
	}
	if err := s.provider.Put(ctx, channelKey(id), bytes.NewReader(data)); err != nil {
		return false, err
	}
	return true, nil
}
