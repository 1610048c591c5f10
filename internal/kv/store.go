// Package kv provides the key-value persistence used for idea collections,
// follow lists, profiles and the bug tracker.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("kv: key not found")

// Entry is a single key/value pair returned by a prefix query.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the minimal key-value contract. Values are opaque bytes (JSON in
// practice). There are no transactions spanning keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	GetByPrefix(ctx context.Context, prefix string) ([]Entry, error)
}

// GetJSON decodes the value at key into target. It reports false when the
// key is absent.
func GetJSON(ctx context.Context, store Store, key string, target any) (bool, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value and stores it at key.
func SetJSON(ctx context.Context, store Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Set(ctx, key, raw)
}
