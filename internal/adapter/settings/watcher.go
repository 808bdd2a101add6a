package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"voicekey/internal/domain"
)

// Watcher publishes settings.changed when the settings file is edited from
// outside the process. It watches the parent directory so editors that
// replace the file by rename are seen too.
type Watcher struct {
	path     string
	debounce time.Duration
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewWatcher creates a Watcher. Bursts of file events within debounce are
// reported once.
func NewWatcher(path string, debounce time.Duration, bus domain.EventBus, logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		bus:      bus,
		logger:   logger.With("component", "settings_watcher"),
	}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Debug("watching settings", "path", w.path)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("settings watcher error", "error", err)
		case <-timer.C:
			w.logger.Info("settings file changed", "path", w.path)
			w.bus.Publish(ctx, domain.NewEvent(domain.EventSettingsChanged, nil))
		}
	}
}
