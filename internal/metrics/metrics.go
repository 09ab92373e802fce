// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package metrics exposes Prometheus instrumentation for the recommendation
// pipeline: store queries, engine latency, cache efficiency, the retraining
// trigger, and the HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Recommendation engine metrics
	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Total recommendation requests by engine and outcome",
		},
		[]string{"engine", "outcome"}, // outcome: ok, empty, degraded
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommendation_duration_seconds",
			Help:    "Recommendation generation latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"engine"},
	)

	IndexSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vector_index_entries",
			Help: "Number of vectors resident per language index",
		},
		[]string{"language"},
	)

	// Interaction metrics
	InteractionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interactions_recorded_total",
			Help: "Total like/dislike interactions recorded",
		},
		[]string{"action"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total result cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total result cache misses",
		},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Cache keys removed by pattern invalidation",
		},
		[]string{"pattern"},
	)

	// Retraining metrics
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total background training runs by status",
		},
		[]string{"status"}, // success, failed, timeout, error
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Duration of background training runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	InteractionCounter = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "interaction_counter_current",
			Help: "Current value of the retraining interaction counter",
		},
	)

	// Series detection metrics
	SeriesLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "series_lookups_total",
			Help: "Series detection lookups by outcome",
		},
		[]string{"outcome"}, // ok, miss, error, rejected
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
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordDBQuery records one query's latency and outcome.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordRecommendation records one engine call.
func RecordRecommendation(engine, outcome string, duration time.Duration) {
	RecommendationRequests.WithLabelValues(engine, outcome).Inc()
	RecommendationDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// RecordTrainingRun records a completed background training run.
func RecordTrainingRun(status string, duration time.Duration) {
	TrainingRuns.WithLabelValues(status).Inc()
	if status == "success" {
		TrainingDuration.Observe(duration.Seconds())
	}
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
