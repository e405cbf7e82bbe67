// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package otel provides OpenTelemetry integration for weakstore metrics.
//
// # Overview
//
// This package implements the weakstore.MetricsCollector interface using
// OpenTelemetry, enabling observability into MultiKeyStore and WeakTable
// hit ratios, insert/lookup latency, and disposal behavior without coupling
// the core module to any particular metrics backend.
//
// The package is a separate module so that applications which don't need
// metrics don't pay for the OTEL dependency tree.
//
// # Installation
//
//	go get github.com/agilira/weakstore/otel
//
// # Quick Start
//
//	import (
//	    weakstore "github.com/agilira/weakstore"
//	    weakstoreotel "github.com/agilira/weakstore/otel"
//	    "go.opentelemetry.io/otel/exporters/prometheus"
//	    "go.opentelemetry.io/otel/sdk/metric"
//	)
//
//	exporter, err := prometheus.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	provider := metric.NewMeterProvider(metric.WithReader(exporter))
//	defer provider.Shutdown(context.Background())
//
//	collector, err := weakstoreotel.NewOTelMetricsCollector(provider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store, err := weakstore.NewMultiKeyStore[string](weakstore.Config{
//	    MetricsCollector: collector,
//	})
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":2112", nil))
//
// # Metrics Exposed
//
// Histograms (with automatic percentiles):
//   - weakstore_get_latency_ns: Get/TryGetValue operation latency in nanoseconds
//   - weakstore_insert_latency_ns: Set/GetOrCreate/TryAdd install latency in nanoseconds
//
// Counters:
//   - weakstore_get_hits_total: Total number of lookups that found a live entry
//   - weakstore_get_misses_total: Total number of lookups that found no live entry
//   - weakstore_explicit_disposes_total: Slots disposed via Remove or Set replacing a value
//   - weakstore_reclaimed_disposes_total: Slots disposed because a key became unreachable
//   - weakstore_factory_panics_total: Recovered GetOrCreate factory panics
//
// All metrics are thread-safe and use lock-free OTEL instruments.
//
// # Configuration
//
// Custom meter name, useful when more than one store/table shares a
// MeterProvider:
//
//	collector, err := weakstoreotel.NewOTelMetricsCollector(
//	    provider,
//	    weakstoreotel.WithMeterName("sessions_store"),
//	)
//
// # Prometheus Queries
//
// Hit ratio:
//
//	rate(weakstore_get_hits_total[5m]) /
//	(rate(weakstore_get_hits_total[5m]) + rate(weakstore_get_misses_total[5m]))
//
// P99 get latency:
//
//	histogram_quantile(0.99, rate(weakstore_get_latency_ns_bucket[5m]))
//
// Reclaim rate (how often entries die from key collection rather than
// explicit removal):
//
//	rate(weakstore_reclaimed_disposes_total[5m])
//
// # Architecture
//
//	weakstore (core module)        no OTEL dependency, MetricsCollector interface
//	      |  implements
//	      v
//	weakstore/otel (this package)  OTelMetricsCollector, OTEL SDK dependency
//	      |  exports to
//	      v
//	OTEL MeterProvider              aggregates, exports to Prometheus/etc.
//
// # Thread Safety
//
// All methods are safe for concurrent use; the underlying OTEL instruments
// are lock-free.
package otel
