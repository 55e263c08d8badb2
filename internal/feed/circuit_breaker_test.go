// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher returns canned results so breaker behavior can be observed
// without a live server.
type stubFetcher struct {
	events []RawEvent
	err    error
	calls  int
}

func (s *stubFetcher) SearchEvents(_ context.Context, _ time.Time, _ int) ([]RawEvent, error) {
	s.calls++
	return s.events, s.err
}

func (s *stubFetcher) Ping(_ context.Context) error {
	s.calls++
	return s.err
}

func TestCircuitBreakerPassesThroughSuccess(t *testing.T) {
	stub := &stubFetcher{events: []RawEvent{{ID: "1", UUID: "u-1"}}}
	cbc := NewCircuitBreakerClient(stub, "pass-through")

	events, err := cbc.SearchEvents(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "1", events[0].ID)

	require.NoError(t, cbc.Ping(context.Background()))
	assert.Equal(t, 2, stub.calls)
}

func TestCircuitBreakerPassesThroughError(t *testing.T) {
	wantErr := errors.New("connection refused")
	stub := &stubFetcher{err: wantErr}
	cbc := NewCircuitBreakerClient(stub, "pass-through-error")

	_, err := cbc.SearchEvents(context.Background(), time.Now(), 10)
	require.ErrorIs(t, err, wantErr)
}

// The gauge values must match the metric's help text: 0=closed,
// 1=half-open, 2=open.
func TestBreakerStateMapping(t *testing.T) {
	assert.Equal(t, float64(0), stateToFloat(gobreaker.StateClosed))
	assert.Equal(t, float64(1), stateToFloat(gobreaker.StateHalfOpen))
	assert.Equal(t, float64(2), stateToFloat(gobreaker.StateOpen))

	assert.Equal(t, "closed", stateToString(gobreaker.StateClosed))
	assert.Equal(t, "half-open", stateToString(gobreaker.StateHalfOpen))
	assert.Equal(t, "open", stateToString(gobreaker.StateOpen))
}

func TestCircuitBreakerOpensAfterSustainedFailures(t *testing.T) {
	stub := &stubFetcher{err: errors.New("unreachable")}
	cbc := NewCircuitBreakerClient(stub, "opens")

	// Trips at a 60% failure rate over at least 10 requests; all-failing
	// traffic crosses the threshold on the 10th call.
	for i := 0; i < 10; i++ {
		_, err := cbc.SearchEvents(context.Background(), time.Now(), 10)
		require.Error(t, err)
	}
	callsBeforeOpen := stub.calls

	_, err := cbc.SearchEvents(context.Background(), time.Now(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, callsBeforeOpen, stub.calls, "open breaker must not reach the wrapped client")
}
