// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package otel

import (
	"context"
	"errors"

	weakstore "github.com/agilira/weakstore"
	"go.opentelemetry.io/otel/metric"
)

// Options configures an OTelMetricsCollector.
type Options struct {
	// MeterName is the instrumentation scope name passed to the
	// MeterProvider. Defaults to "github.com/agilira/weakstore".
	MeterName string
}

// Option mutates Options during construction.
type Option func(*Options)

// WithMeterName overrides the instrumentation scope name, useful when an
// application wires more than one store/table to the same MeterProvider.
func WithMeterName(name string) Option {
	return func(o *Options) {
		o.MeterName = name
	}
}

// OTelMetricsCollector implements weakstore.MetricsCollector on top of
// OpenTelemetry metric instruments.
type OTelMetricsCollector struct {
	getLatency    metric.Int64Histogram
	insertLatency metric.Int64Histogram

	hits              metric.Int64Counter
	misses            metric.Int64Counter
	explicitDisposes  metric.Int64Counter
	reclaimedDisposes metric.Int64Counter
	factoryPanics     metric.Int64Counter
}

// NewOTelMetricsCollector creates a new OpenTelemetry metrics collector.
//
// Parameters:
//   - provider: OpenTelemetry MeterProvider. Must not be nil.
//   - opts: Optional configuration (meter name, etc.)
//
// The collector creates two Int64Histograms (Get and Insert latency) and
// five Int64Counters (hits, misses, disposes split by explicit/reclaimed,
// and factory panics). All instruments are thread-safe and lock-free.
//
// Example:
//
//	exporter, _ := prometheus.New()
//	provider := metric.NewMeterProvider(metric.WithReader(exporter))
//	collector, err := NewOTelMetricsCollector(provider)
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewOTelMetricsCollector(provider metric.MeterProvider, opts ...Option) (*OTelMetricsCollector, error) {
	if provider == nil {
		return nil, errors.New("meter provider cannot be nil")
	}

	options := Options{
		MeterName: "github.com/agilira/weakstore",
	}
	for _, opt := range opts {
		opt(&options)
	}

	meter := provider.Meter(options.MeterName)
	collector := &OTelMetricsCollector{}

	var err error
	collector.getLatency, err = meter.Int64Histogram(
		"weakstore_get_latency_ns",
		metric.WithDescription("Latency of Get/TryGetValue operations in nanoseconds"),
		metric.WithUnit("ns"),
	)
	if err != nil {
		return nil, err
	}

	collector.insertLatency, err = meter.Int64Histogram(
		"weakstore_insert_latency_ns",
		metric.WithDescription("Latency of Set/GetOrCreate/TryAdd install operations in nanoseconds"),
		metric.WithUnit("ns"),
	)
	if err != nil {
		return nil, err
	}

	collector.hits, err = meter.Int64Counter(
		"weakstore_get_hits_total",
		metric.WithDescription("Total number of lookups that found a live entry"),
	)
	if err != nil {
		return nil, err
	}

	collector.misses, err = meter.Int64Counter(
		"weakstore_get_misses_total",
		metric.WithDescription("Total number of lookups that found no live entry"),
	)
	if err != nil {
		return nil, err
	}

	collector.explicitDisposes, err = meter.Int64Counter(
		"weakstore_explicit_disposes_total",
		metric.WithDescription("Total number of slots disposed via Remove or Set replacing an entry"),
	)
	if err != nil {
		return nil, err
	}

	collector.reclaimedDisposes, err = meter.Int64Counter(
		"weakstore_reclaimed_disposes_total",
		metric.WithDescription("Total number of slots disposed because a key became unreachable"),
	)
	if err != nil {
		return nil, err
	}

	collector.factoryPanics, err = meter.Int64Counter(
		"weakstore_factory_panics_total",
		metric.WithDescription("Total number of recovered GetOrCreate factory panics"),
	)
	if err != nil {
		return nil, err
	}

	return collector, nil
}

// RecordGet records a Get/TryGetValue outcome and its latency.
//
// Thread-safety: Safe for concurrent use.
func (c *OTelMetricsCollector) RecordGet(latencyNs int64, hit bool) {
	ctx := context.Background()
	c.getLatency.Record(ctx, latencyNs)
	if hit {
		c.hits.Add(ctx, 1)
	} else {
		c.misses.Add(ctx, 1)
	}
}

// RecordInsert records a successful Set/GetOrCreate/TryAdd install.
//
// Thread-safety: Safe for concurrent use.
func (c *OTelMetricsCollector) RecordInsert(latencyNs int64) {
	c.insertLatency.Record(context.Background(), latencyNs)
}

// RecordDispose records a slot disposal, split by whether it was explicit
// (Remove, Set replacing a value) or implicit (key reclaimed by the garbage
// collector or the background reaper).
//
// Thread-safety: Safe for concurrent use.
func (c *OTelMetricsCollector) RecordDispose(explicit bool) {
	ctx := context.Background()
	if explicit {
		c.explicitDisposes.Add(ctx, 1)
	} else {
		c.reclaimedDisposes.Add(ctx, 1)
	}
}

// RecordFactoryPanic records a recovered GetOrCreate factory panic.
//
// Thread-safety: Safe for concurrent use.
func (c *OTelMetricsCollector) RecordFactoryPanic() {
	c.factoryPanics.Add(context.Background(), 1)
}

// Compile-time interface check
var _ weakstore.MetricsCollector = (*OTelMetricsCollector)(nil)
