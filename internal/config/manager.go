package config

import (
	"fmt"
	"sync"
)

// ConfigManager provides thread-safe access to live configuration and lets
// callers subscribe to updates installed through Set or Reload. cognicore's
// main loop uses this to fan a SIGHUP-triggered reload out to already-running
// components (the provider resolver, the log level) without a restart.
type ConfigManager interface {
	Get() *Config
	Set(cfg *Config)
	Reload(path string) error
	OnChange(fn func(*Config))
}

// RWMutexManager is a thread-safe, read-heavy ConfigManager. Reads (Get) take
// a shared lock; writes (Set, Reload) take an exclusive lock, install the new
// snapshot, and then notify every listener registered via OnChange.
type RWMutexManager struct {
	mu        sync.RWMutex
	cfg       *Config
	listeners []func(*Config)
}

// NewManager constructs a manager with an initial config.
func NewManager(initial *Config) *RWMutexManager {
	return &RWMutexManager{cfg: initial.Clone()}
}

// NewRWMutexManager constructs a manager with an initial config.
func NewRWMutexManager(initial *Config) *RWMutexManager {
	return NewManager(initial)
}

// Get returns a cloned config snapshot under a shared lock.
//
// Returning a clone prevents shared mutable state from leaking across readers.
func (m *RWMutexManager) Get() *Config {
	if m == nil {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Clone()
}

// Set updates the current config pointer under an exclusive lock, then
// notifies every OnChange listener with the newly installed snapshot.
func (m *RWMutexManager) Set(cfg *Config) {
	if m == nil {
		return
	}

	m.mu.Lock()
	next := cfg.Clone()
	m.cfg = next
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	notifyListeners(listeners, next)
}

// Reload loads config from path, atomically swaps it into place, and
// notifies every OnChange listener. Called at startup and again whenever the
// process receives SIGHUP, so a running cognicore instance can pick up a
// rotated provider base URL, model, or timeout without a restart.
func (m *RWMutexManager) Reload(path string) error {
	if m == nil {
		return fmt.Errorf("config manager is nil")
	}
	if path == "" {
		return fmt.Errorf("config reload path is required")
	}

	loaded, err := Load(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	next := loaded.Clone()
	m.cfg = next
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	notifyListeners(listeners, next)
	return nil
}

// OnChange registers fn to run, with the newly active config, every time Set
// or Reload installs a new snapshot. Registered listeners run synchronously
// on the caller's goroutine (the SIGHUP handler in cmd/cognicore), so fn
// should not block.
func (m *RWMutexManager) OnChange(fn func(*Config)) {
	if m == nil || fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *RWMutexManager) snapshotListeners() []func(*Config) {
	if len(m.listeners) == 0 {
		return nil
	}
	cp := make([]func(*Config), len(m.listeners))
	copy(cp, m.listeners)
	return cp
}

func notifyListeners(listeners []func(*Config), cfg *Config) {
	for _, fn := range listeners {
		fn(cfg)
	}
}

var _ ConfigManager = (*RWMutexManager)(nil)
