// Package mirror maintains a JSON file copy of the settings record.
//
// The file is rewritten on every published change, and watched so that manual
// edits flow back through the settings store like any other external write.
// The store stays authoritative: corrupt or invalid edits are logged and the
// file is restored from the current value.
package mirror

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/prefhubapp/prefhub-server/internal/domain"
	"github.com/prefhubapp/prefhub-server/internal/settings"
	"github.com/prefhubapp/prefhub-server/internal/validation"
)

// Mirror exports the settings record to a file and applies external edits.
type Mirror struct {
	store    *settings.Store
	validate *validation.Validator
	path     string
	logger   *slog.Logger

	mu      sync.Mutex
	lastRaw []byte // last content written to the file by us
}

// New creates a mirror for the given file path.
func New(store *settings.Store, validate *validation.Validator, path string, logger *slog.Logger) *Mirror {
	return &Mirror{
		store:    store,
		validate: validate,
		path:     filepath.Clean(path),
		logger:   logger,
	}
}

// Run exports the current settings, then processes store updates and file
// edits until ctx is canceled. Run it in a goroutine at startup.
func (m *Mirror) Run(ctx context.Context) error {
	sub := m.store.Subscribe()
	defer m.store.Unsubscribe(sub.ID)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors typically replace
	// files via rename, which drops a watch on the file itself.
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create mirror directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch mirror directory: %w", err)
	}

	m.logger.Info("settings mirror started", "path", m.path)

	for {
		select {
		case value, ok := <-sub.C:
			if !ok {
				return nil
			}
			m.export(value)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != m.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			m.importFile(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("mirror watcher error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

// export writes a settings value to the mirror file atomically.
func (m *Mirror) export(value domain.Settings) {
	raw, err := json.Marshal(value)
	if err != nil {
		m.logger.Error("failed to marshal settings for mirror", "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if bytes.Equal(raw, m.lastRaw) {
		return
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o640); err != nil {
		m.logger.Error("failed to write mirror file", "path", m.path, "error", err)
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		m.logger.Error("failed to replace mirror file", "path", m.path, "error", err)
		return
	}

	m.lastRaw = raw
	m.logger.Debug("settings mirrored to file", "path", m.path)
}

// restore rewrites the file from the current store value, even when that
// value matches the last export. Used after a bad edit clobbered the file.
func (m *Mirror) restore() {
	m.mu.Lock()
	m.lastRaw = nil
	m.mu.Unlock()
	m.export(m.store.Current())
}

// importFile loads the mirror file and applies it through the store.
// Our own exports are recognized by content and skipped.
func (m *Mirror) importFile(ctx context.Context) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		m.logger.Warn("failed to read mirror file", "path", m.path, "error", err)
		return
	}

	m.mu.Lock()
	ours := bytes.Equal(raw, m.lastRaw)
	m.mu.Unlock()
	if ours {
		return
	}

	var loaded domain.Settings
	if err := json.Unmarshal(raw, &loaded); err != nil {
		m.logger.Warn("ignoring corrupt mirror file edit, restoring", "path", m.path, "error", err)
		m.restore()
		return
	}

	if err := m.validate.Validate(loaded); err != nil {
		m.logger.Warn("ignoring invalid mirror file edit, restoring", "path", m.path, "error", err)
		m.restore()
		return
	}

	if _, err := m.store.Save(ctx, func(domain.Settings) (domain.Settings, error) {
		return loaded.Touch(), nil
	}); err != nil {
		m.logger.Error("failed to apply mirror file edit", "path", m.path, "error", err)
		return
	}

	m.logger.Info("settings updated from mirror file", "path", m.path)
}
