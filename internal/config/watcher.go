package config

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yegors/planetracker/pkg/logger"
)

const (
	reloadDebounce     = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watcher reloads the config file when it changes. Invalid files are rejected
// and the previous configuration stays active.
type Watcher struct {
	path   string
	logger *logger.Logger

	mu       sync.RWMutex
	current  *Config
	onReload []func(*Config)
}

// NewWatcher creates a watcher for path starting from cfg
func NewWatcher(path string, cfg *Config, log *logger.Logger) *Watcher {
	return &Watcher{
		path:    path,
		current: cfg,
		logger:  log.Named("config"),
	}
}

// OnReload registers a callback invoked with every accepted configuration
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

// Current returns the active configuration
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload reads and validates the file. On success the new config becomes
// current and callbacks run; on failure the error is returned and nothing changes.
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := slices.Clone(w.onReload)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
	return nil
}

// Watch watches the config file until ctx is cancelled
func (w *Watcher) Watch(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	backoff := restartBackoffBase

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			if err := w.Reload(); err != nil {
				w.logger.Warn("Config reload rejected, keeping previous configuration",
					logger.String("path", w.path),
					logger.Error(err))
				return
			}
			w.logger.Info("Config reloaded", logger.String("path", w.path))
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	wait := func() bool {
		delay := backoff
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		fw, err := fsnotify.NewWatcher()
		if err != nil {
			w.logger.Warn("Config watch init failed", logger.Error(err), logger.String("dir", dir))
			if !wait() {
				return nil
			}
			continue
		}

		if err := fw.Add(dir); err != nil {
			fw.Close()
			w.logger.Warn("Config watch add failed", logger.Error(err), logger.String("dir", dir))
			if !wait() {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		w.logger.Debug("Config watcher started", logger.String("dir", dir), logger.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				fw.Close()
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					broken = true
					break
				}
				w.logger.Warn("Config watch error", logger.Error(err), logger.String("dir", dir))
			}
		}

		fw.Close()
		if !wait() {
			return nil
		}
	}
}
