package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the configuration when the config file changes.
// Only hot-applicable settings (currently the log level) are expected
// to take effect without a restart.
type Watcher struct {
	watcher  *fsnotify.Watcher
	loader   *Loader
	logger   zerolog.Logger
	onReload func(*Config)
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// NewWatcher creates a config file watcher
func NewWatcher(loader *Loader, logger zerolog.Logger, onReload func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  watcher,
		loader:   loader,
		logger:   logger,
		onReload: onReload,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	path, err := loader.ConfigPath()
	if err != nil {
		watcher.Close()
		return nil, err
	}

	// Watch the directory: editors replace files on save, which would
	// otherwise drop the watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	go w.run(filepath.Base(path))

	return w, nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) run(filename string) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filename {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug().Str("op", event.Op.String()).Msg("Config change detected")
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Config watcher error")

		case <-w.stopCh:
			if w.timer != nil {
				w.timer.Stop()
			}
			return
		}
	}
}

// scheduleReload debounces the reload
func (w *Watcher) scheduleReload() {
	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		cfg, err := w.loader.Load()
		if err != nil {
			w.logger.Error().Err(err).Msg("Config reload failed")
			return
		}
		if err := cfg.Validate(); err != nil {
			w.logger.Error().Err(err).Msg("Reloaded config is invalid, keeping current one")
			return
		}

		w.logger.Info().Msg("Config reloaded")
		if w.onReload != nil {
			w.onReload(cfg)
		}
	})
}
