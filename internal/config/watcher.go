package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads configuration when a watched config file changes.
// Consumers receive the freshly merged config and are expected to swap
// derived state (such as the compiled permission snapshot) atomically.
type Watcher struct {
	loader   *Loader
	notifier *fsnotify.Watcher
	onReload func(*Config)
	done     chan struct{}
}

// NewWatcher creates a watcher over the loader's current config paths.
// onReload is invoked on the watcher goroutine with each valid reload;
// invalid configs are logged and skipped so a half-edited file never
// replaces a working rule set.
func NewWatcher(loader *Loader, onReload func(*Config)) (*Watcher, error) {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, path := range loader.Paths() {
		if err := notifier.Add(path); err != nil {
			notifier.Close()
			return nil, err
		}
	}

	w := &Watcher{
		loader:   loader,
		notifier: notifier,
		onReload: onReload,
		done:     make(chan struct{}),
	}

	go w.run()

	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.notifier.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := w.loader.Load()
			if err != nil {
				log.Warn().Err(err).Str("path", event.Name).Msg("Config reload rejected")
				continue
			}

			log.Info().Str("path", event.Name).Msg("Config reloaded")
			if w.onReload != nil {
				w.onReload(cfg)
			}

		case err, ok := <-w.notifier.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.notifier.Close()
}
