package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/prefhubapp/prefhub-server/internal/config"
	"github.com/prefhubapp/prefhub-server/internal/kv"
	"github.com/prefhubapp/prefhub-server/internal/logger"
	"github.com/prefhubapp/prefhub-server/internal/settings"
)

// KVHandle wraps the backing key-value store with shutdown capability.
type KVHandle struct {
	kv.Store
}

// Shutdown implements do.Shutdownable.
func (h *KVHandle) Shutdown() error {
	return h.Close()
}

// ProvideKV provides the Badger-backed key-value store.
func ProvideKV(i do.Injector) (*KVHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.Data.BasePath, "db")
	store, err := kv.OpenBadger(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Backing store initialized", "path", dbPath)

	return &KVHandle{Store: store}, nil
}

// SettingsStoreHandle wraps the settings store with its reconciliation
// loop's context for lifecycle management.
type SettingsStoreHandle struct {
	*settings.Store
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SettingsStoreHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideSettingsStore provides the settings store, loaded or initialized
// from the backing store, with external-change reconciliation running.
func ProvideSettingsStore(i do.Injector) (*SettingsStoreHandle, error) {
	kvHandle := do.MustInvoke[*KVHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	store, err := settings.NewStore(context.Background(), kvHandle.Store, log.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := store.Start(ctx); err != nil {
			log.Error("settings reconciliation loop failed", "error", err)
		}
	}()

	log.Info("Settings store initialized")

	return &SettingsStoreHandle{Store: store, cancel: cancel}, nil
}
