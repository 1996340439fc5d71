// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

// Package metrics exposes Prometheus collectors for the tracking engine:
// cache operation latency/errors, sync cycle outcomes, queue depth, active
// user counts, API traffic, and WebSocket connections.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache (Redis) metrics

	CacheOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "location_cache_op_duration_seconds",
			Help:    "Duration of location cache operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"}, // "put", "get", "get_many", "list_active", "drain", "evict", "delete"
	)

	CacheOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_cache_op_errors_total",
			Help: "Total number of failed location cache operations",
		},
		[]string{"operation"},
	)

	ActiveUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "location_active_users",
			Help: "Number of users with a non-expired cached location",
		},
	)

	SyncQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "location_sync_queue_depth",
			Help: "Number of users with unsynced location changes",
		},
	)

	// Sync coordinator metrics

	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_sync_cycles_total",
			Help: "Total number of sync cycles by outcome",
		},
		[]string{"result"}, // "success", "error", "skipped"
	)

	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_sync_records_total",
			Help: "Total number of records processed by sync cycles",
		},
		[]string{"status"}, // "synced", "error"
	)

	SyncCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "location_sync_cycle_duration_seconds",
			Help:    "Duration of sync cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "location_sync_evicted_total",
			Help: "Total number of stale active-index entries pruned",
		},
	)

	// API metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	// Broadcast metrics

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connected_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)

	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "location_broadcasts_dropped_total",
			Help: "Location updates dropped by the broadcast rate limiter",
		},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// ObserveCacheOp records one cache operation's duration and error outcome.
func ObserveCacheOp(operation string, start time.Time, err error) {
	CacheOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		CacheOpErrors.WithLabelValues(operation).Inc()
	}
}

// ObserveAPIRequest records one HTTP request.
func ObserveAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
