// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package feed

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/castellan-io/castellan/internal/logging"
	"github.com/castellan-io/castellan/internal/metrics"
)

// CircuitBreakerClient wraps a feed client with a circuit breaker so an
// unhealthy remote server stops consuming sync capacity.
//
// The breaker uses real time for its interval and timeout bookkeeping, which
// means tests should exercise the wrapped client directly rather than wait
// out breaker state transitions.
type CircuitBreakerClient struct {
	client Fetcher
	cb     *gobreaker.CircuitBreaker[[]RawEvent]
	name   string
}

// NewCircuitBreakerClient wraps a feed client with breaker protection.
// The name, usually the feed server's configured name, labels the breaker's
// metrics and log lines.
//
// Breaker settings: 3 requests allowed half-open, 1 minute measurement
// window, 2 minute open period, trips at a 60% failure rate over at least
// 10 requests.
func NewCircuitBreakerClient(client Fetcher, name string) *CircuitBreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[[]RawEvent](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Str("server", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("server", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &CircuitBreakerClient{
		client: client,
		cb:     cb,
		name:   name,
	}
}

// SearchEvents retrieves events with circuit breaker protection.
func (cbc *CircuitBreakerClient) SearchEvents(ctx context.Context, since time.Time, limit int) ([]RawEvent, error) {
	return cbc.cb.Execute(func() ([]RawEvent, error) {
		return cbc.client.SearchEvents(ctx, since, limit)
	})
}

// Ping verifies connectivity with circuit breaker protection.
func (cbc *CircuitBreakerClient) Ping(ctx context.Context) error {
	_, err := cbc.cb.Execute(func() ([]RawEvent, error) {
		return nil, cbc.client.Ping(ctx)
	})
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
