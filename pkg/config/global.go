package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	globalMu   sync.Mutex
	globalOnce sync.Once
	globalCfg  atomic.Pointer[Config]
	onChangeMu sync.Mutex
	onChange   []func(*Config)
)

// Initialize sets the process-wide Config exactly once. Subsequent calls
// are no-ops so a library caller that initializes explicitly wins over an
// embedding service's own defaults.
func Initialize(overrides *Config) error {
	var initErr error
	globalOnce.Do(func() {
		cfg, err := Load(overrides)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize global config: %w", err)
			return
		}
		globalCfg.Store(cfg)
	})
	return initErr
}

// Get returns the process-wide Config. Panics if Initialize was never
// called — callers must initialize before using the core.
func Get() *Config {
	cfg := globalCfg.Load()
	if cfg == nil {
		panic("config: Get called before Initialize")
	}
	return cfg
}

// OnChange registers a callback invoked whenever Reload installs a new
// Config. Panics if Initialize was never called.
func OnChange(fn func(*Config)) {
	if globalCfg.Load() == nil {
		panic("config: OnChange called before Initialize")
	}
	onChangeMu.Lock()
	defer onChangeMu.Unlock()
	onChange = append(onChange, fn)
}

// Reload re-reads environment variables, applies the overrides passed to
// Reload (those passed to Initialize are not kept), and replaces the global
// Config, notifying OnChange callbacks.
func Reload(overrides *Config) error {
	if globalCfg.Load() == nil {
		panic("config: Reload called before Initialize")
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	cfg, err := Load(overrides)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	globalCfg.Store(cfg)
	onChangeMu.Lock()
	callbacks := append([]func(*Config){}, onChange...)
	onChangeMu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return nil
}

// resetForTest clears the singleton so successive tests can re-initialize.
func resetForTest() {
	globalOnce = sync.Once{}
	globalCfg.Store(nil)
	onChangeMu.Lock()
	onChange = nil
	onChangeMu.Unlock()
}
