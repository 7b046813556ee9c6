package config

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// ReloadableConfig watches the config file and atomically swaps in valid
// updates. Probe and notification settings take effect on the next cycle;
// structural changes are rejected.
type ReloadableConfig struct {
	path      string
	current   atomic.Value // *Config
	mu        sync.RWMutex
	watchers  []func(old, new *Config)
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	reloading int32
}

// NewReloadable loads the config and starts watching it for changes.
func NewReloadable(path string) (*ReloadableConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("initial config load: %w", err)
	}

	r := &ReloadableConfig{
		path:   path,
		stopCh: make(chan struct{}),
	}
	r.current.Store(cfg)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config file: %w", err)
	}

	r.watcher = watcher
	go r.watchLoop()

	return r, nil
}

// Get returns the current configuration.
func (r *ReloadableConfig) Get() *Config {
	return r.current.Load().(*Config)
}

// Watch registers a callback invoked after every accepted reload.
func (r *ReloadableConfig) Watch(fn func(old, new *Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers = append(r.watchers, fn)
}

// Reload forces a config reload from disk.
func (r *ReloadableConfig) Reload() error {
	if !atomic.CompareAndSwapInt32(&r.reloading, 0, 1) {
		return fmt.Errorf("reload already in progress")
	}
	defer atomic.StoreInt32(&r.reloading, 0)

	newCfg, err := Load(r.path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	oldCfg := r.Get()
	if err := validateTransition(oldCfg, newCfg); err != nil {
		return fmt.Errorf("validate transition: %w", err)
	}

	r.current.Store(newCfg)

	r.mu.RLock()
	watchers := make([]func(old, new *Config), len(r.watchers))
	copy(watchers, r.watchers)
	r.mu.RUnlock()

	for _, fn := range watchers {
		go fn(oldCfg, newCfg)
	}

	return nil
}

// validateTransition checks whether the change can be applied live. The
// circuit table and the API listener are wired at startup, so changing
// either requires a restart.
func validateTransition(old, new *Config) error {
	if len(old.Circuits) != len(new.Circuits) {
		return fmt.Errorf("circuit list change requires restart")
	}
	for i := range old.Circuits {
		if old.Circuits[i] != new.Circuits[i] {
			return fmt.Errorf("circuit %q change requires restart", old.Circuits[i].ID)
		}
	}
	if old.API.Listen != new.API.Listen {
		return fmt.Errorf("api listen address change requires restart")
	}
	if old.JournalPath != new.JournalPath {
		return fmt.Errorf("journal path change requires restart")
	}
	return nil
}

func (r *ReloadableConfig) watchLoop() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				if err := r.Reload(); err != nil {
					fmt.Fprintf(os.Stderr, "config reload failed: %v\n", err)
				}
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "config watcher error: %v\n", err)
		case <-r.stopCh:
			return
		}
	}
}

// Close stops the file watcher.
func (r *ReloadableConfig) Close() error {
	close(r.stopCh)
	return r.watcher.Close()
}
