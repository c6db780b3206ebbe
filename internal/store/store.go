// Package store is the persistent local state of cotscope: a small keyed
// snapshot store standing in for browser local storage. Values are JSON
// envelopes stamped with the time they were written so callers can apply a
// TTL without the backend knowing about it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Well-known keys.
const (
	KeyUserEmail        = "userEmail"
	KeyUserName         = "userName"
	KeyInitialFavorites = "initialFavorites"
	KeyTheme            = "theme"
	KeyExtremes         = "commercialExtremes_v3"
)

// ErrCorrupt is returned when a stored payload cannot be decoded.
var ErrCorrupt = errors.New("store: corrupt snapshot")

// Snapshot is the {data, timestamp} envelope persisted under a key.
type Snapshot struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store persists snapshots by key.
type Store interface {
	// Get returns the snapshot for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (snap Snapshot, ok bool, err error)
	// Set writes or replaces the snapshot for key.
	Set(ctx context.Context, key string, snap Snapshot) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the backing resources.
	Close() error
}

// Fresh reports whether a snapshot written at ts is still usable at now.
// A snapshot is stale once ttl has fully elapsed.
func Fresh(now, ts time.Time, ttl time.Duration) bool {
	return now.Sub(ts) < ttl
}

// GetJSON loads key and decodes its data into a T. A payload that fails to
// decode is reported as ErrCorrupt so callers can treat it as a miss.
func GetJSON[T any](ctx context.Context, s Store, key string) (v T, ts time.Time, ok bool, err error) {
	snap, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return v, time.Time{}, false, err
	}
	if err := json.Unmarshal(snap.Data, &v); err != nil {
		return v, snap.Timestamp, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return v, snap.Timestamp, true, nil
}

// PutJSON encodes v and stores it under key stamped with ts.
func PutJSON(ctx context.Context, s Store, key string, v any, ts time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, Snapshot{Data: data, Timestamp: ts})
}
