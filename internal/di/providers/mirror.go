package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/prefhubapp/prefhub-server/internal/config"
	"github.com/prefhubapp/prefhub-server/internal/logger"
	"github.com/prefhubapp/prefhub-server/internal/mirror"
	"github.com/prefhubapp/prefhub-server/internal/validation"
)

// MirrorHandle wraps the settings file mirror with lifecycle management.
// The mirror is nil when disabled by configuration.
type MirrorHandle struct {
	Mirror *mirror.Mirror
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *MirrorHandle) Shutdown() error {
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

// ProvideMirror provides the settings file mirror when enabled.
func ProvideMirror(i do.Injector) (*MirrorHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Mirror.Enabled {
		log.Info("Settings mirror disabled")
		return &MirrorHandle{}, nil
	}

	storeHandle := do.MustInvoke[*SettingsStoreHandle](i)

	m := mirror.New(storeHandle.Store, validation.New(), cfg.Mirror.Path, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := m.Run(ctx); err != nil {
			log.Error("settings mirror stopped", "error", err)
		}
	}()

	return &MirrorHandle{Mirror: m, cancel: cancel}, nil
}
