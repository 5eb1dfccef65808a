// Package settings holds the authoritative in-process settings record, with
// durable persistence through a key-value backing store and reactive
// notification of every change.
package settings

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prefhubapp/prefhub-server/internal/domain"
	"github.com/prefhubapp/prefhub-server/internal/id"
	"github.com/prefhubapp/prefhub-server/internal/kv"
)

// Key is the well-known backing store key holding the settings record.
const Key = "settings:current"

// recentWriteDepth bounds the echo-suppression ring. Badger's pub/sub also
// delivers our own writes; the ring lets us recognize them even when several
// saves land before the first echo arrives.
const recentWriteDepth = 8

// Transform maps the current settings to the next value. It must be pure:
// the store applies it under its write lock and persists the result.
type Transform func(current domain.Settings) (domain.Settings, error)

// Subscription is a live feed of settings values. The latest value is
// delivered immediately on subscribe, then every subsequent update in order.
type Subscription struct {
	ID string
	C  <-chan domain.Settings
	ch chan domain.Settings
}

// Store owns the single authoritative settings value.
//
// Save runs the full read-modify-write-publish sequence under one mutex, so
// concurrent saves serialize and each transform observes every prior
// completed save. The order within Save is serialize, write, publish: a
// failure at any step leaves the in-memory value and all subscriptions at
// their pre-call state.
type Store struct {
	kv     kv.Store
	key    string
	logger *slog.Logger

	mu      sync.Mutex // serializes save and reconcile
	current domain.Settings
	raw     []byte   // serialized form of current as held by the backing store
	recent  [][]byte // ring of recent own writes, for echo suppression

	subMu sync.RWMutex
	subs  map[string]*Subscription
}

// NewStore creates a store bound to the given backing store.
//
// If the backing store holds a record at the well-known key it is loaded; a
// missing or corrupt record is replaced by freshly persisted defaults, so the
// backing store always holds a valid record once NewStore returns.
func NewStore(ctx context.Context, backing kv.Store, logger *slog.Logger) (*Store, error) {
	s := &Store{
		kv:     backing,
		key:    Key,
		logger: logger,
		subs:   make(map[string]*Subscription),
	}

	raw, err := backing.Get(ctx, s.key)
	if err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("read settings record: %w", err)
	}

	if err == nil {
		var loaded domain.Settings
		if unmarshalErr := json.Unmarshal(raw, &loaded); unmarshalErr == nil {
			s.current = loaded
			s.raw = raw
			s.remember(raw)
			return s, nil
		}
		s.logger.Warn("settings record is corrupt, replacing with defaults", "key", s.key)
	}

	defaults := domain.NewSettings()
	defaultRaw, err := json.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("marshal default settings: %w", err)
	}
	if err := backing.Put(ctx, s.key, defaultRaw); err != nil {
		return nil, fmt.Errorf("persist default settings: %w", err)
	}

	s.current = defaults
	s.raw = defaultRaw
	s.remember(defaultRaw)

	s.logger.Info("settings initialized with defaults", "key", s.key)
	return s, nil
}

// Current returns the most recently saved (or loaded) settings value.
func (s *Store) Current() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Save applies transform to the current value, persists the result, and
// publishes it to all subscribers. Returns the new value.
//
// If the transform, serialization, or the backing-store write fails, the
// error propagates and nothing is published; the caller decides whether to
// retry.
func (s *Store) Save(ctx context.Context, transform Transform) (domain.Settings, error) {
	if err := ctx.Err(); err != nil {
		return domain.Settings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := transform(s.current)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("settings transform: %w", err)
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("marshal settings: %w", err)
	}

	if err := s.kv.Put(ctx, s.key, raw); err != nil {
		return domain.Settings{}, fmt.Errorf("write settings record: %w", err)
	}

	s.current = next
	s.raw = raw
	s.remember(raw)
	s.publish(next)

	return next, nil
}

// Subscribe registers a new subscriber. The current value is delivered
// immediately, then every subsequent update in order. The feed never
// terminates on its own; call Unsubscribe when done.
func (s *Store) Subscribe() *Subscription {
	sub := &Subscription{
		ID: id.MustGenerate("sub"),
		ch: make(chan domain.Settings, 16),
	}
	sub.C = sub.ch

	// Registration and replay happen under the save lock so no update can
	// slip between the replayed value and live delivery.
	s.mu.Lock()
	s.subMu.Lock()
	s.subs[sub.ID] = sub
	s.subMu.Unlock()
	sub.ch <- s.current
	s.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(subID string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	sub, ok := s.subs[subID]
	if !ok {
		return
	}
	delete(s.subs, subID)
	close(sub.ch)
}

// SubscriberCount returns the number of active subscriptions.
func (s *Store) SubscriberCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subs)
}

// Start watches the backing store for changes to the settings key made by
// other writers and publishes them. Blocks until ctx is canceled; run it in
// a goroutine at startup.
func (s *Store) Start(ctx context.Context) error {
	changes, err := s.kv.Watch(ctx, s.key)
	if err != nil {
		return fmt.Errorf("watch settings key: %w", err)
	}

	s.logger.Info("settings store watching for external changes", "key", s.key)

	for change := range changes {
		s.reconcile(ctx, change)
	}
	return nil
}

// reconcile applies a backing-store change that did not originate from Save.
func (s *Store) reconcile(ctx context.Context, change kv.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if change.Value == nil {
		// Someone deleted our record; restore it so the backing store
		// always holds a valid copy.
		if err := s.kv.Put(ctx, s.key, s.raw); err != nil {
			s.logger.Error("failed to restore deleted settings record", "error", err)
			return
		}
		s.remember(s.raw)
		s.logger.Warn("settings record deleted externally, restored", "key", s.key)
		return
	}

	if s.isRecentWrite(change.Value) {
		// Echo of one of our own saves.
		return
	}

	var next domain.Settings
	if err := json.Unmarshal(change.Value, &next); err != nil {
		s.logger.Warn("ignoring corrupt external settings write", "key", s.key, "error", err)
		return
	}

	s.current = next
	s.raw = append([]byte(nil), change.Value...)
	s.remember(s.raw)
	s.publish(next)

	s.logger.Info("external settings change applied", "key", s.key)
}

// publish delivers a value to all subscribers. Must be called with mu held.
// A full subscriber buffer sheds its oldest value so the latest is always
// deliverable; a value feed only ever owes its consumers the newest state.
func (s *Store) publish(value domain.Settings) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, sub := range s.subs {
		select {
		case sub.ch <- value:
			continue
		default:
		}

		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- value:
		default:
			s.logger.Warn("dropped settings update for slow subscriber", "subscription_id", sub.ID)
		}
	}
}

// remember records a serialized value in the echo-suppression ring.
// Must be called with mu held.
func (s *Store) remember(raw []byte) {
	s.recent = append(s.recent, append([]byte(nil), raw...))
	if len(s.recent) > recentWriteDepth {
		s.recent = s.recent[len(s.recent)-recentWriteDepth:]
	}
}

// isRecentWrite reports whether raw matches a recent own write.
// Must be called with mu held.
func (s *Store) isRecentWrite(raw []byte) bool {
	for _, r := range s.recent {
		if bytes.Equal(r, raw) {
			return true
		}
	}
	return false
}
