// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

// Package metrics provides Prometheus metrics for observability.
//
// Metrics are exposed at the /metrics endpoint in Prometheus text format.
//
// Sync metrics:
//   - sync_duration_seconds: run duration (histogram)
//   - sync_records_total: reconciled records by kind and outcome (counter)
//   - sync_errors_total: failed runs and skipped records by type (counter)
//   - sync_last_success_timestamp: unix time of last completed run (gauge)
//
// Conversion metrics:
//   - conversions_total: conversion calls by target and status (counter)
//
// Feed client metrics:
//   - feed_fetch_duration_seconds: remote fetch latency (histogram)
//   - circuit_breaker_state: breaker state per server (gauge)
//   - circuit_breaker_transitions_total: state transitions (counter)
//
// HTTP metrics:
//   - http_requests_total, http_request_duration_seconds
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync metrics.
var (
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_duration_seconds",
		Help:    "Duration of synchronization runs in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})

	SyncRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_records_total",
		Help: "Records reconciled during sync, by kind and outcome",
	}, []string{"kind", "outcome"})

	SyncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_errors_total",
		Help: "Sync errors by type",
	}, []string{"type"})

	SyncLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sync_last_success_timestamp",
		Help: "Unix timestamp of the last successful sync per server",
	}, []string{"server"})

	SyncRunsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_runs_scheduled_total",
		Help: "Sync runs dispatched by the scheduler",
	})
)

// Conversion metrics.
var (
	Conversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversions_total",
		Help: "Event conversions by target entity and status",
	}, []string{"target", "status"})
)

// Feed client metrics.
var (
	FeedFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_fetch_duration_seconds",
		Help:    "Latency of remote feed fetch calls in seconds",
		Buckets: []float64{.1, .5, 1, 5, 10, 30, 60},
	})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	CircuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions",
	}, []string{"name", "from", "to"})
)

// HTTP metrics.
var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
	}, []string{"method", "endpoint"})
)

// RecordSyncRun records the duration and outcome of one sync run.
func RecordSyncRun(serverName string, start time.Time, failed bool) {
	SyncDuration.Observe(time.Since(start).Seconds())
	if failed {
		SyncErrors.WithLabelValues("run").Inc()
		return
	}
	SyncLastSuccess.WithLabelValues(serverName).Set(float64(start.Unix()))
}
