// interfaces.go: public collaborator interfaces for weakstore
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package weakstore

// Logger defines a minimal logging interface with zero overhead when unset.
// Implementations should use structured logging and avoid allocation on the
// disabled path.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// NoOpLogger discards everything. Used as the default so call sites never
// need a nil check.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, keyvals ...interface{}) {}
func (NoOpLogger) Info(msg string, keyvals ...interface{})  {}
func (NoOpLogger) Warn(msg string, keyvals ...interface{})  {}
func (NoOpLogger) Error(msg string, keyvals ...interface{}) {}

// TimeProvider supplies the current time used to measure operation
// latencies for MetricsCollector. Injectable so tests can control the clock.
type TimeProvider interface {
	// Now returns the current time in nanoseconds since the epoch.
	Now() int64
}

// MetricsCollector receives operation outcomes for observability. Nil-safe:
// a NoOpMetricsCollector is installed by Config.Validate if none is given.
// The github.com/agilira/weakstore/otel package implements this on top of
// OpenTelemetry.
type MetricsCollector interface {
	// RecordGet records a Get/TryGetValue outcome and its latency.
	RecordGet(latencyNs int64, hit bool)

	// RecordInsert records a successful Set/GetOrCreate/TryAdd install.
	RecordInsert(latencyNs int64)

	// RecordDispose records a slot disposal, whether explicit (Remove,
	// Set replacing a value) or implicit (key reclaimed).
	RecordDispose(explicit bool)

	// RecordFactoryPanic records a recovered GetOrCreate factory panic.
	RecordFactoryPanic()
}

// NoOpMetricsCollector discards everything. Default when Config.MetricsCollector
// is nil.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordGet(latencyNs int64, hit bool) {}
func (NoOpMetricsCollector) RecordInsert(latencyNs int64)        {}
func (NoOpMetricsCollector) RecordDispose(explicit bool)         {}
func (NoOpMetricsCollector) RecordFactoryPanic()                 {}

// Stats reports cumulative counters for a store. All fields are snapshots
// taken with atomic loads; a concurrently running operation may or may not
// be reflected.
type Stats struct {
	// Hits is the number of successful Get/TryGetValue lookups.
	Hits uint64

	// Misses is the number of lookups that found no live entry.
	Misses uint64

	// Inserts is the number of successful Set/GetOrCreate/TryAdd installs.
	Inserts uint64

	// ExplicitDisposes is the number of slots disposed via Remove or Set
	// replacing/clearing an existing entry.
	ExplicitDisposes uint64

	// ReclaimedDisposes is the number of slots disposed because a key
	// became unreachable (cleanup-driven, or swept by the reaper).
	ReclaimedDisposes uint64

	// Live is the current number of Live entries in the index.
	Live int
}

// HitRatio returns Hits / (Hits + Misses) as a percentage, or 0 if there
// have been no lookups.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
