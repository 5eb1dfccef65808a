package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
)

// BadgerStore is a Store backed by a Badger database.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadger opens a Badger-backed store at the given path.
func OpenBadger(path string, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}

	return &BadgerStore{db: db, logger: logger}, nil
}

// Get retrieves a value by key.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Put stores a value by key. SyncWrites makes the write durable before returning.
func (s *BadgerStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Delete removes a key from the database.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Watch subscribes to changes for a single key via Badger's pub/sub.
// Notifications are delivered on the returned channel until ctx is canceled.
func (s *BadgerStore) Watch(ctx context.Context, key string) (<-chan Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan Change, 64)
	match := []pb.Match{{Prefix: []byte(key)}}

	go func() {
		defer close(ch)

		err := s.db.Subscribe(ctx, func(list *badger.KVList) error {
			for _, item := range list.Kv {
				// Prefix matching can overshoot; only the exact key is ours.
				if !bytes.Equal(item.Key, []byte(key)) {
					continue
				}

				change := Change{Key: key}
				if len(item.Value) > 0 {
					change.Value = append([]byte(nil), item.Value...)
				}

				select {
				case ch <- change:
				case <-ctx.Done():
					return ctx.Err()
				default:
					if s.logger != nil {
						s.logger.Warn("dropped change notification for slow watcher", "key", key)
					}
				}
			}
			return nil
		}, match)

		if err != nil && !errors.Is(err, context.Canceled) && s.logger != nil {
			s.logger.Error("key subscription ended", "key", key, "error", err)
		}
	}()

	return ch, nil
}

// Close gracefully closes the database.
func (s *BadgerStore) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database")
	}
	return s.db.Close()
}
