package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/prefhubapp/prefhub-server/internal/api"
	"github.com/prefhubapp/prefhub-server/internal/config"
	"github.com/prefhubapp/prefhub-server/internal/logger"
	"github.com/prefhubapp/prefhub-server/internal/ratelimit"
	"github.com/prefhubapp/prefhub-server/internal/sse"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{Manager: manager, cancel: cancel}, nil
}

// SettingsBroadcaster forwards settings store updates to SSE clients.
type SettingsBroadcaster struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (b *SettingsBroadcaster) Shutdown() error {
	b.cancel()
	return nil
}

// ProvideSettingsBroadcaster subscribes to the settings store and emits
// settings.updated SSE events for every published change.
func ProvideSettingsBroadcaster(i do.Injector) (*SettingsBroadcaster, error) {
	storeHandle := do.MustInvoke[*SettingsStoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	ctx, cancel := context.WithCancel(context.Background())
	sub := storeHandle.Subscribe()

	go func() {
		defer storeHandle.Unsubscribe(sub.ID)
		for {
			select {
			case value, ok := <-sub.C:
				if !ok {
					return
				}
				sseHandle.Emit(sse.NewSettingsUpdatedEvent(value))
			case <-ctx.Done():
				return
			}
		}
	}()

	return &SettingsBroadcaster{cancel: cancel}, nil
}

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	kvHandle := do.MustInvoke[*KVHandle](i)
	storeHandle := do.MustInvoke[*SettingsStoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	sseHandler := sse.NewHandler(sseHandle.Manager, storeHandle.Store, log.Logger)
	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	handler := api.NewServer(storeHandle.Store, kvHandle.Store, sseHandle.Manager, sseHandler, limiter, log.Logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
