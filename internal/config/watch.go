package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrNoConfigFile is returned by NewWatcher when the config was loaded
// without a file.
var ErrNoConfigFile = errors.New("config was not loaded from a file")

// Watcher reloads the config file when it changes and hands the validated
// result to a callback. Invalid edits are logged and ignored so a typo never
// takes down a running worker.
type Watcher struct {
	path     string
	onChange func(*Config)
	logger   *zap.Logger
	debounce time.Duration

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
}

// NewWatcher watches the file cfg was loaded from.
func NewWatcher(cfg *Config, logger *zap.Logger, onChange func(*Config)) (*Watcher, error) {
	if cfg.Path() == "" {
		return nil, ErrNoConfigFile
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	// Watch the directory: editors and config management tools usually
	// replace the file rather than write it in place.
	if err := fw.Add(filepath.Dir(cfg.Path())); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching %s: %w", cfg.Path(), err)
	}

	return &Watcher{
		path:     filepath.Clean(cfg.Path()),
		onChange: onChange,
		logger:   logger,
		debounce: 200 * time.Millisecond,
		watcher:  fw,
		stop:     make(chan struct{}),
	}, nil
}

// Run processes file events until ctx is cancelled or Stop is called.
func (w *Watcher) Run(ctx context.Context) {
	defer func() { _ = w.watcher.Close() }()

	var pending <-chan time.Time
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(w.debounce)
			}
		case <-pending:
			pending = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watcher) reload() {
	cfg, err := LoadWithFile(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("config reloaded", zap.String("path", w.path))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
