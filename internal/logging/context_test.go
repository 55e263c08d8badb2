// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CorrelationIDFromContext(ctx))

	ctx = ContextWithCorrelationID(ctx, "abc12345")
	assert.Equal(t, "abc12345", CorrelationIDFromContext(ctx))
}

func TestContextWithNewCorrelationID(t *testing.T) {
	a := ContextWithNewCorrelationID(context.Background())
	b := ContextWithNewCorrelationID(context.Background())

	idA := CorrelationIDFromContext(a)
	idB := CorrelationIDFromContext(b)
	require.Len(t, idA, 8)
	assert.NotEqual(t, idA, idB)
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestCtxWithoutValues(t *testing.T) {
	log := Ctx(context.Background())
	require.NotNil(t, log)
}
