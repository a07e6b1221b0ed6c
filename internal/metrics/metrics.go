// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

// Package metrics provides Prometheus instrumentation for server detection,
// health probing, and the API surface. All collectors are registered on the
// default registry and exposed at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection metrics
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_requests_total",
			Help: "Total number of server detection requests by selection reason",
		},
		[]string{"reason"}, // "optimal", "available", "fallback", "default_server", "error"
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detection_duration_seconds",
			Help:    "End-to-end duration of server detection including probing",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Probe metrics
	ProbeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "probe_latency_seconds",
			Help:    "Round-trip latency of health probes by target URL",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"url"},
	)

	ProbeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "probe_failures_total",
			Help: "Total number of failed health probes by target URL",
		},
		[]string{"url"},
	)

	// Health-check scheduler metrics
	HealthCheckPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "health_check_passes_total",
			Help: "Total number of completed background health-check passes",
		},
	)

	HealthCheckSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "health_check_skipped_total",
			Help: "Ticks skipped because the previous pass was still running",
		},
	)

	HealthyServers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthy_servers",
			Help: "Number of servers reachable in the last health-check pass",
		},
	)

	// Ad engine metrics
	AdSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_selections_total",
			Help: "Total number of ads selected for playback by slot type",
		},
		[]string{"type"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request processing time",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RecordDetection records a completed detection with its selection reason.
func RecordDetection(reason string, duration time.Duration) {
	DetectionsTotal.WithLabelValues(reason).Inc()
	DetectionDuration.Observe(duration.Seconds())
}

// RecordProbe records one probe outcome.
func RecordProbe(url string, latencyMs int64, success bool) {
	ProbeLatency.WithLabelValues(url).Observe(float64(latencyMs) / 1000)
	if !success {
		ProbeFailures.WithLabelValues(url).Inc()
	}
}

// RecordAPIRequest records one handled API request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
