// hotreload.go: dynamic reap-interval reload via Argus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package weakstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/agilira/argus"
)

// Reloadable is satisfied by *MultiKeyStore[V] and *WeakTable[K, V]. It
// exposes the subset of Config that can change safely on a running
// store: ShardCount cannot, since the shard layout is fixed at
// construction, but ReapInterval and Logger take effect immediately.
type Reloadable interface {
	SetReapInterval(d time.Duration)
	SetLogger(l Logger)
}

// HotConfig watches a configuration file via Argus and applies supported
// settings to target whenever the file changes.
type HotConfig struct {
	target  Reloadable
	watcher *argus.Watcher
	mu      sync.RWMutex
	current HotConfigValues

	// OnReload is called after a config file change has been applied.
	// Must be fast and non-blocking.
	OnReload func(old, new HotConfigValues)
}

// HotConfigValues is the subset of settings HotConfig can apply without
// reconstructing the store.
type HotConfigValues struct {
	ReapInterval time.Duration
}

// HotConfigOptions configures hot reload behavior.
type HotConfigOptions struct {
	// ConfigPath is the path to the configuration file to watch. Supports
	// JSON, YAML, TOML, HCL, INI, and Properties formats (whatever the
	// underlying watcher's format detection recognizes).
	ConfigPath string

	// PollInterval is how often to check for configuration changes.
	// Default: 1 second. Minimum: 100ms.
	PollInterval time.Duration

	// OnReload is called after configuration is successfully reloaded.
	OnReload func(old, new HotConfigValues)

	// Logger is defaulted to NoOpLogger; HotConfig does not log through it.
	Logger Logger
}

// NewHotConfig creates a hot-reloadable wrapper around target and starts
// watching opts.ConfigPath immediately.
//
// Example configuration file (YAML):
//
//	weakstore:
//	  reap_interval: "30s"
//
// Supported keys:
//   - weakstore.reap_interval (duration string): background reaper period.
//     0 or omitted disables the reaper.
//
// ShardCount is intentionally not reloadable here: changing it would
// require rebuilding the entire shard index, which this wrapper does not
// attempt.
func NewHotConfig(target Reloadable, opts HotConfigOptions) (*HotConfig, error) {
	if target == nil {
		return nil, NewErrInvalidConfig("target", "must not be nil")
	}
	if opts.ConfigPath == "" {
		return nil, fmt.Errorf("config_path is required")
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Second
	} else if opts.PollInterval < 100*time.Millisecond {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = NoOpLogger{}
	}

	hc := &HotConfig{
		target:   target,
		OnReload: opts.OnReload,
	}

	watcher, err := argus.UniversalConfigWatcherWithConfig(
		opts.ConfigPath,
		hc.handleConfigChange,
		argus.Config{PollInterval: opts.PollInterval},
	)
	if err != nil {
		return nil, err
	}
	hc.watcher = watcher
	return hc, nil
}

// Start begins watching the configuration file for changes. A no-op if
// already running.
func (hc *HotConfig) Start() error {
	if hc.watcher.IsRunning() {
		return nil
	}
	return hc.watcher.Start()
}

// Stop stops watching the configuration file.
func (hc *HotConfig) Stop() error {
	return hc.watcher.Stop()
}

// Current returns the most recently applied settings.
func (hc *HotConfig) Current() HotConfigValues {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.current
}

func (hc *HotConfig) handleConfigChange(data map[string]interface{}) {
	next := hc.parse(data)

	hc.mu.Lock()
	old := hc.current
	hc.current = next
	hc.mu.Unlock()

	hc.target.SetReapInterval(next.ReapInterval)

	if hc.OnReload != nil {
		hc.OnReload(old, next)
	}
}

// parse extracts weakstore settings from Argus config data. Unknown or
// malformed keys fall back to the zero HotConfigValues (reaper disabled).
func (hc *HotConfig) parse(data map[string]interface{}) HotConfigValues {
	section, ok := data["weakstore"].(map[string]interface{})
	if !ok {
		if _, hasReap := data["reap_interval"]; hasReap {
			section = data
		} else {
			return HotConfigValues{}
		}
	}

	var values HotConfigValues
	if d, ok := parseHotReloadDuration(section["reap_interval"]); ok {
		values.ReapInterval = d
	}
	return values
}

// parseHotReloadDuration extracts a time.Duration from a string value like
// "30s", as produced by YAML/JSON/TOML config loaders.
func parseHotReloadDuration(value interface{}) (time.Duration, bool) {
	str, ok := value.(string)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, false
	}
	return d, true
}
