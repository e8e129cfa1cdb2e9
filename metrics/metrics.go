// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deltawatch_store_op_duration_seconds",
		Help:    "Latency of key-value store calls made by the repository",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1, 5},
	}, []string{"op"})

	StoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deltawatch_store_failures_total",
		Help: "Key-value store calls that surfaced as storage unavailable",
	}, []string{"op"})

	CASConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deltawatch_cas_conflicts_total",
		Help: "Compare-and-swap appends that lost a race and were retried",
	})

	DeltaEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deltawatch_delta_events_total",
		Help: "Delta events appended to domain histories",
	}, []string{"kind"})

	Registrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deltawatch_registrations_total",
		Help: "Domains newly registered",
	})

	FeedRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deltawatch_feed_renders_total",
		Help: "Atom feeds rendered, split by whether the placeholder was served",
	}, []string{"placeholder"})
)

// ObserveStoreOp records the latency of a store call started at start.
func ObserveStoreOp(op string, start time.Time, err error) {
	StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreFailures.WithLabelValues(op).Inc()
	}
}
