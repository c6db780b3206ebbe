package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

// record is the badgerhold value stored under each key.
type record struct {
	Key       string
	Data      []byte
	Timestamp time.Time
}

// BadgerStore persists snapshots in an embedded Badger database.
type BadgerStore struct {
	db     *badgerhold.Store
	logger *slog.Logger
}

// OpenBadger opens (or creates) a Badger database at dir.
func OpenBadger(dir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger store %s: %w", dir, err)
	}
	logger.Debug("badger store opened", "path", dir)
	return &BadgerStore{db: db, logger: logger}, nil
}

func (b *BadgerStore) Get(_ context.Context, key string) (Snapshot, bool, error) {
	var rec record
	err := b.db.Get(key, &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("get %s: %w", key, err)
	}
	return Snapshot{Data: rec.Data, Timestamp: rec.Timestamp}, true, nil
}

func (b *BadgerStore) Set(_ context.Context, key string, snap Snapshot) error {
	rec := record{Key: key, Data: snap.Data, Timestamp: snap.Timestamp}
	if err := b.db.Upsert(key, &rec); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (b *BadgerStore) Delete(_ context.Context, key string) error {
	err := b.db.Delete(key, &record{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (b *BadgerStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
