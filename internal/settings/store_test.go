package settings_test

import (
	"context"
	"encoding/json/v2"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prefhubapp/prefhub-server/internal/domain"
	"github.com/prefhubapp/prefhub-server/internal/kv"
	"github.com/prefhubapp/prefhub-server/internal/settings"
)

func newTestStore(t *testing.T) (*settings.Store, *kv.MemoryStore) {
	t.Helper()

	backing := kv.NewMemoryStore()
	store, err := settings.NewStore(context.Background(), backing, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return store, backing
}

// recv reads the next value from a subscription or fails the test.
func recv(t *testing.T, sub *settings.Subscription) domain.Settings {
	t.Helper()

	select {
	case value, ok := <-sub.C:
		require.True(t, ok, "subscription channel closed")
		return value
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settings value")
		return domain.Settings{}
	}
}

func TestNewStore_EmptyBackingPersistsDefaults(t *testing.T) {
	backing := kv.NewMemoryStore()
	ctx := context.Background()

	store, err := settings.NewStore(ctx, backing, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	current := store.Current()
	assert.Equal(t, domain.ThemeLight, current.Theme)
	assert.Equal(t, "en", current.Language)
	assert.True(t, current.NotificationsEnabled)
	assert.Equal(t, 60, current.PollIntervalSec)
	assert.False(t, current.UpdatedAt.IsZero())

	// The defaults must be durable before NewStore returns.
	raw, err := backing.Get(ctx, settings.Key)
	require.NoError(t, err)

	var persisted domain.Settings
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, current, persisted)
}

func TestNewStore_LoadsExistingRecord(t *testing.T) {
	backing := kv.NewMemoryStore()
	ctx := context.Background()

	existing := domain.NewSettings()
	existing.Theme = domain.ThemeDark
	existing.PollIntervalSec = 300
	raw, err := json.Marshal(existing)
	require.NoError(t, err)
	require.NoError(t, backing.Put(ctx, settings.Key, raw))

	store, err := settings.NewStore(ctx, backing, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	current := store.Current()
	assert.Equal(t, domain.ThemeDark, current.Theme)
	assert.Equal(t, 300, current.PollIntervalSec)
}

func TestNewStore_CorruptRecordReplacedWithDefaults(t *testing.T) {
	backing := kv.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, backing.Put(ctx, settings.Key, []byte("{not json")))

	store, err := settings.NewStore(ctx, backing, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	assert.Equal(t, domain.ThemeLight, store.Current().Theme)

	// The corrupt record must have been overwritten with valid defaults.
	raw, err := backing.Get(ctx, settings.Key)
	require.NoError(t, err)

	var persisted domain.Settings
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, domain.ThemeLight, persisted.Theme)
}

func TestSave_AppliesTransformAndPersists(t *testing.T) {
	store, backing := newTestStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, func(current domain.Settings) (domain.Settings, error) {
		current.Theme = domain.ThemeDark
		current.PollIntervalSec = 120
		return current.Touch(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeDark, saved.Theme)
	assert.Equal(t, 120, saved.PollIntervalSec)
	assert.Equal(t, saved, store.Current())

	raw, err := backing.Get(ctx, settings.Key)
	require.NoError(t, err)

	var persisted domain.Settings
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, domain.ThemeDark, persisted.Theme)
	assert.Equal(t, 120, persisted.PollIntervalSec)
}

func TestSubscribe_ReplaysCurrentThenDeliversUpdates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sub := store.Subscribe()
	defer store.Unsubscribe(sub.ID)

	// The current value arrives before any update.
	replayed := recv(t, sub)
	assert.Equal(t, store.Current(), replayed)

	for i := range 3 {
		interval := 100 + i
		_, err := store.Save(ctx, func(current domain.Settings) (domain.Settings, error) {
			current.PollIntervalSec = interval
			return current, nil
		})
		require.NoError(t, err)
	}

	// Updates arrive in save order.
	assert.Equal(t, 100, recv(t, sub).PollIntervalSec)
	assert.Equal(t, 101, recv(t, sub).PollIntervalSec)
	assert.Equal(t, 102, recv(t, sub).PollIntervalSec)
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	store, _ := newTestStore(t)

	sub := store.Subscribe()
	recv(t, sub)
	assert.Equal(t, 1, store.SubscriberCount())

	store.Unsubscribe(sub.ID)
	assert.Equal(t, 0, store.SubscriberCount())

	_, ok := <-sub.C
	assert.False(t, ok)

	// Unsubscribing twice is harmless.
	store.Unsubscribe(sub.ID)
}

func TestSave_ConcurrentSavesSerialize(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	const savers = 32

	var wg sync.WaitGroup
	for range savers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Save(ctx, func(current domain.Settings) (domain.Settings, error) {
				current.PollIntervalSec++
				return current, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Every transform observed the previous completed save, so no increment
	// was lost.
	assert.Equal(t, 60+savers, store.Current().PollIntervalSec)
}

// faultStore wraps a Store and fails writes on demand.
type faultStore struct {
	kv.Store
	failPuts bool
}

var errPutFailed = errors.New("put failed")

func (f *faultStore) Put(ctx context.Context, key string, value []byte) error {
	if f.failPuts {
		return errPutFailed
	}
	return f.Store.Put(ctx, key, value)
}

func TestSave_WriteFailureLeavesStateUnchanged(t *testing.T) {
	backing := &faultStore{Store: kv.NewMemoryStore()}
	ctx := context.Background()

	store, err := settings.NewStore(ctx, backing, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	sub := store.Subscribe()
	defer store.Unsubscribe(sub.ID)
	recv(t, sub)

	before := store.Current()
	backing.failPuts = true

	_, err = store.Save(ctx, func(current domain.Settings) (domain.Settings, error) {
		current.Theme = domain.ThemeDark
		return current, nil
	})
	require.ErrorIs(t, err, errPutFailed)

	// Neither the in-memory value nor the subscribers saw the failed save.
	assert.Equal(t, before, store.Current())
	select {
	case value := <-sub.C:
		t.Fatalf("unexpected publish after failed save: %+v", value)
	case <-time.After(100 * time.Millisecond):
	}

	// The store recovers once writes succeed again.
	backing.failPuts = false
	saved, err := store.Save(ctx, func(current domain.Settings) (domain.Settings, error) {
		current.Theme = domain.ThemeDark
		return current, nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeDark, saved.Theme)
	assert.Equal(t, domain.ThemeDark, recv(t, sub).Theme)
}

func TestSave_TransformErrorPropagates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sub := store.Subscribe()
	defer store.Unsubscribe(sub.ID)
	recv(t, sub)

	before := store.Current()
	errBroken := errors.New("broken transform")

	_, err := store.Save(ctx, func(domain.Settings) (domain.Settings, error) {
		return domain.Settings{}, errBroken
	})
	require.ErrorIs(t, err, errBroken)

	assert.Equal(t, before, store.Current())
	select {
	case value := <-sub.C:
		t.Fatalf("unexpected publish after transform error: %+v", value)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSave_CanceledContext(t *testing.T) {
	store, _ := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := store.Save(ctx, func(current domain.Settings) (domain.Settings, error) {
		called = true
		return current, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestStart_ExternalWritePublished(t *testing.T) {
	store, backing := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go store.Start(ctx)

	// Give the watch loop time to attach before writing.
	time.Sleep(50 * time.Millisecond)

	sub := store.Subscribe()
	defer store.Unsubscribe(sub.ID)
	recv(t, sub)

	external := domain.NewSettings()
	external.Theme = domain.ThemeSystem
	external.PollIntervalSec = 900
	raw, err := json.Marshal(external)
	require.NoError(t, err)
	require.NoError(t, backing.Put(context.Background(), settings.Key, raw))

	applied := recv(t, sub)
	assert.Equal(t, domain.ThemeSystem, applied.Theme)
	assert.Equal(t, 900, applied.PollIntervalSec)
	assert.Equal(t, applied, store.Current())
}

func TestStart_OwnSavesNotRepublished(t *testing.T) {
	store, _ := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go store.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	sub := store.Subscribe()
	defer store.Unsubscribe(sub.ID)
	recv(t, sub)

	_, err := store.Save(context.Background(), func(current domain.Settings) (domain.Settings, error) {
		current.PollIntervalSec = 240
		return current, nil
	})
	require.NoError(t, err)

	// Exactly one publish: the save itself, not its backing-store echo.
	assert.Equal(t, 240, recv(t, sub).PollIntervalSec)
	select {
	case value := <-sub.C:
		t.Fatalf("save echoed back through the watch loop: %+v", value)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStart_ExternalDeleteRestoresRecord(t *testing.T) {
	store, backing := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go store.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	before := store.Current()
	require.NoError(t, backing.Delete(context.Background(), settings.Key))

	require.Eventually(t, func() bool {
		raw, err := backing.Get(context.Background(), settings.Key)
		if err != nil {
			return false
		}
		var restored domain.Settings
		if err := json.Unmarshal(raw, &restored); err != nil {
			return false
		}
		return restored.Theme == before.Theme && restored.UpdatedAt.Equal(before.UpdatedAt)
	}, 2*time.Second, 10*time.Millisecond, "deleted record was not restored")

	assert.Equal(t, before, store.Current())
}

func TestStart_CorruptExternalWriteIgnored(t *testing.T) {
	store, backing := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go store.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	sub := store.Subscribe()
	defer store.Unsubscribe(sub.ID)
	recv(t, sub)

	before := store.Current()
	require.NoError(t, backing.Put(context.Background(), settings.Key, []byte("}}garbage")))

	select {
	case value := <-sub.C:
		t.Fatalf("corrupt external write was published: %+v", value)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, before, store.Current())
}

func TestPublish_SlowSubscriberGetsLatest(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sub := store.Subscribe()
	defer store.Unsubscribe(sub.ID)

	// Never drain: overflow the 16-slot buffer so older values get shed.
	for i := range 40 {
		interval := 100 + i
		_, err := store.Save(ctx, func(current domain.Settings) (domain.Settings, error) {
			current.PollIntervalSec = interval
			return current, nil
		})
		require.NoError(t, err)
	}

	// Drain everything buffered; the last buffered value must be the newest
	// saved state even though intermediate values were dropped.
	var last domain.Settings
	for {
		select {
		case value := <-sub.C:
			last = value
			continue
		default:
		}
		break
	}
	assert.Equal(t, 139, last.PollIntervalSec)
}
