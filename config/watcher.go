package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jonwraymond/offlinekit/observe"
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Path is the manifest file. Required.
	Path string

	// Debounce collapses bursts of writes into one reload.
	// Default: 250 milliseconds
	Debounce time.Duration

	// OnChange receives every manifest that loads cleanly after a change.
	OnChange func(ctx context.Context, m Manifest)

	// Logger receives reload failures.
	Logger observe.Logger
}

// Watcher reloads the manifest when its file changes.
//
// The parent directory is watched rather than the file, so editors and
// deploy tools that replace the file by rename are seen.
type Watcher struct {
	config  WatcherConfig
	path    string
	watcher *fsnotify.Watcher
	logger  observe.Logger
}

// NewWatcher starts watching config.Path. Call Run to deliver changes.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Path == "" || config.OnChange == nil {
		return nil, errors.New("config: watcher needs a path and OnChange")
	}
	if config.Debounce <= 0 {
		config.Debounce = 250 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	path, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", config.Path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	return &Watcher{
		config:  config,
		path:    path,
		watcher: fw,
		logger:  config.Logger.WithOp(observe.OpMeta{Component: "config", Name: "watch"}),
	}, nil
}

// Close stops watching. Run also closes the watcher when it returns.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run delivers manifest changes until ctx is done, then closes the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.config.Debounce)
			} else {
				timer.Reset(w.config.Debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "watch error", observe.Field{Key: "error", Value: err.Error()})

		case <-fire:
			fire = nil
			m, err := LoadManifest(w.path)
			if err != nil {
				w.logger.Warn(ctx, "manifest reload rejected", observe.Field{Key: "error", Value: err.Error()})
				continue
			}
			w.logger.Info(ctx, "manifest changed", observe.Field{Key: "generation", Value: m.Generation})
			w.config.OnChange(ctx, m)
		}
	}
}
