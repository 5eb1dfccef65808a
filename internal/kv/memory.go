package kv

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store implementation for tests and ephemeral use.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[string][]chan Change
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string][]byte),
		watchers: make(map[string][]chan Change),
	}
}

// Get retrieves a value by key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Put stores a value by key and notifies watchers.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.values[key] = append([]byte(nil), value...)
	s.mu.Unlock()

	s.notify(Change{Key: key, Value: append([]byte(nil), value...)})
	return nil
}

// Delete removes a key and notifies watchers.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()

	s.notify(Change{Key: key})
	return nil
}

// Watch delivers subsequent changes to key until ctx is canceled.
func (s *MemoryStore) Watch(ctx context.Context, key string) (<-chan Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan Change, 64)

	s.mu.Lock()
	s.watchers[key] = append(s.watchers[key], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.removeWatcher(key, ch)
		close(ch)
	}()

	return ch, nil
}

// Close marks the store closed. Watch channels are closed by their contexts.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// notify sends a change to all watchers of the key without blocking.
func (s *MemoryStore) notify(change Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.watchers[change.Key] {
		select {
		case ch <- change:
		default:
		}
	}
}

// removeWatcher detaches a watch channel so notify stops sending to it.
func (s *MemoryStore) removeWatcher(key string, ch chan Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	watchers := s.watchers[key]
	for i, w := range watchers {
		if w == ch {
			s.watchers[key] = append(watchers[:i], watchers[i+1:]...)
			break
		}
	}
}
