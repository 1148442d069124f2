// Package storage defines the Provider interface for blob storage backends.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Open when no object exists under the key.
var ErrNotFound = errors.New("storage: object not found")

// Provider abstracts object storage operations.
type Provider interface {
	// Put writes data to storage under the given key, replacing any previous object.
	Put(ctx context.Context, key string, reader io.Reader) error
	// Open returns a reader for the given storage key, or ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns the keys directly under prefix that end with suffix.
	List(ctx context.Context, prefix, suffix string) ([]string, error)
	// AccessPath returns a consumer-accessible reference for a storage key.
	// The format depends on the backend (e.g. filesystem path).
	AccessPath(key string) string
}

// ReadAll opens key and reads it fully.
func ReadAll(ctx context.Context, p Provider, key string) ([]byte, error) {
	rc, err := p.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
