// config.go: configuration for weakstore containers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package weakstore

import (
	"time"

	"github.com/agilira/go-timecache"
)

// Config holds configuration shared by MultiKeyStore and WeakTable.
type Config struct {
	// ShardCount is the number of index shards. Validate rounds it up to a
	// power of two. Default: DefaultShardCount.
	ShardCount int

	// ReapInterval, if > 0, runs a background sweep that disposes live
	// slots with a key found unreachable during the sweep whose cleanup
	// has not yet run.
	// This only bounds worst-case lag; runtime.AddCleanup drives disposal
	// in the common case. Default: DefaultReapInterval (disabled). Both
	// MultiKeyStore and WeakTable expose SetReapInterval to change this
	// after construction, e.g. from HotConfig (see hotreload.go).
	ReapInterval time.Duration

	// Logger is used for debugging and monitoring. Default: NoOpLogger.
	Logger Logger

	// TimeProvider supplies the current time used to measure the latencies
	// passed to MetricsCollector. Default: a go-timecache-backed system clock.
	TimeProvider TimeProvider

	// MetricsCollector receives operation outcomes. Default: NoOpMetricsCollector.
	MetricsCollector MetricsCollector

	// OnRelease, if set, is invoked once per slot disposal — explicit
	// (Remove, Set replacing a value, Clear) or reclaimed (a key died).
	// Must be fast and non-blocking; a panic is recovered, logged via
	// Logger, and never prevents the slot from finishing disposal.
	OnRelease func(value interface{}, reclaimed bool)
}

// Validate normalizes a Config in place, filling in defaults for anything
// left unset. Always returns nil; retained as a method (rather than folded
// into DefaultConfig) so callers can validate a partially-built Config
// in place, mirroring how this library's sibling cache does it.
func (c *Config) Validate() error {
	if c.ShardCount <= 0 {
		c.ShardCount = DefaultShardCount
	} else {
		c.ShardCount = nextPowerOfTwo(c.ShardCount)
	}

	if c.ReapInterval < 0 {
		c.ReapInterval = DefaultReapInterval
	}

	if c.Logger == nil {
		c.Logger = NoOpLogger{}
	}

	if c.TimeProvider == nil {
		c.TimeProvider = &systemTimeProvider{}
	}

	if c.MetricsCollector == nil {
		c.MetricsCollector = NoOpMetricsCollector{}
	}

	return nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ShardCount:       DefaultShardCount,
		ReapInterval:     DefaultReapInterval,
		Logger:           NoOpLogger{},
		TimeProvider:     &systemTimeProvider{},
		MetricsCollector: NoOpMetricsCollector{},
	}
}

// systemTimeProvider is the default time provider, backed by go-timecache's
// periodically refreshed clock rather than a syscall per call.
type systemTimeProvider struct{}

func (t *systemTimeProvider) Now() int64 {
	return timecache.CachedTimeNano()
}

// nextPowerOfTwo rounds n up to the nearest power of two, minimum 1.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
