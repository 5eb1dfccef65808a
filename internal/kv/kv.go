// Package kv abstracts the key-value backing store used for persisted records.
//
// The settings store treats exactly one designated key as its own; the rest of
// the keyspace belongs to whoever else shares the store. Implementations must
// deliver change notifications for watched keys so that writes from other
// components can be reconciled.
package kv

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when the key has no value.
var ErrKeyNotFound = errors.New("kv: key not found")

// Change describes one observed write to a watched key.
type Change struct {
	Key   string
	Value []byte // nil when the key was deleted
}

// Store is a get/put/delete interface over string keys and byte values,
// plus change notification for individual keys.
type Store interface {
	// Get retrieves the value for key. Returns ErrKeyNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key. The write is durable when Put returns.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Watch delivers every subsequent change to key on the returned channel
	// until ctx is canceled. The channel is closed when the watch ends.
	Watch(ctx context.Context, key string) (<-chan Change, error)

	// Close releases the store.
	Close() error
}
