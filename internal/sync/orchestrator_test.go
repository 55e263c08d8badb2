// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-io/castellan/internal/database"
	"github.com/castellan-io/castellan/internal/feed"
	"github.com/castellan-io/castellan/internal/models"
)

func newTestOrchestrator(db *database.DB, fetcher feed.Fetcher) (*Orchestrator, *feed.Config) {
	var gotCfg feed.Config
	factory := func(cfg feed.Config, _ string) feed.Fetcher {
		gotCfg = cfg
		return fetcher
	}
	return NewOrchestrator(db, &plainDecryptor{}, factory, 0), &gotCfg
}

func TestRunCompleted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "run-completed")

	fetcher := &fakeFetcher{events: []feed.RawEvent{
		rawTestEvent("1", "run-uuid-1"),
		rawTestEvent("2", "run-uuid-2"),
	}}
	o, gotCfg := newTestOrchestrator(db, fetcher)

	result := o.Run(ctx, server.ID, Options{DaysBack: 30, MaxEvents: 500})
	require.Equal(t, models.SyncCompleted, result.Status)
	assert.Empty(t, result.Error)
	assert.Equal(t, server.ID, result.ServerID)
	assert.Equal(t, "run-completed", result.ServerName)
	assert.Equal(t, 2, result.Stats.EventsImported)
	assert.Equal(t, 2, result.Stats.EventsCreated)
	assert.Equal(t, 0, result.Stats.EventsUpdated)
	assert.Equal(t, 0, result.Stats.EventsSkipped)
	assert.Equal(t, 2, result.Stats.AttributesImported)

	// The client was built from the server row with the decrypted key.
	assert.Equal(t, "https://feed.example.com", gotCfg.BaseURL)
	assert.Equal(t, "stored-ciphertext", gotCfg.APIKey)
	assert.True(t, gotCfg.VerifySSL)

	// Lookback window and page cap reach the remote search.
	assert.Equal(t, 500, fetcher.gotLimit)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), fetcher.gotSince, time.Minute)

	// Bookkeeping: completion advances last_sync.
	got, err := db.GetFeedServer(ctx, server.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSync)
	require.NotNil(t, got.LastSyncAttempt)
	assert.Equal(t, string(models.SyncCompleted), got.LastSyncStatus)
}

func TestRunIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "run-idempotent")

	fetcher := &fakeFetcher{events: []feed.RawEvent{
		rawTestEvent("1", "idem-uuid-1"),
		rawTestEvent("2", "idem-uuid-2"),
	}}
	o, _ := newTestOrchestrator(db, fetcher)

	first := o.Run(ctx, server.ID, Options{DaysBack: 30, MaxEvents: 100})
	require.Equal(t, models.SyncCompleted, first.Status)
	assert.Equal(t, 2, first.Stats.EventsCreated)

	second := o.Run(ctx, server.ID, Options{DaysBack: 30, MaxEvents: 100})
	require.Equal(t, models.SyncCompleted, second.Status)
	assert.Equal(t, 0, second.Stats.EventsCreated)
	assert.Equal(t, 2, second.Stats.EventsUpdated)
	assert.Equal(t, 0, second.Stats.AttributesImported, "re-reconciled attributes are updates, not imports")

	count, err := db.CountEventsByServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunSkipsMalformedEvents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "run-partial")

	bad := rawTestEvent("3", "")
	fetcher := &fakeFetcher{events: []feed.RawEvent{
		rawTestEvent("1", "partial-uuid-1"),
		bad,
		rawTestEvent("2", "partial-uuid-2"),
	}}
	o, _ := newTestOrchestrator(db, fetcher)

	result := o.Run(ctx, server.ID, Options{DaysBack: 30, MaxEvents: 100})
	require.Equal(t, models.SyncCompleted, result.Status, "one bad record must not fail the run")
	assert.Equal(t, 2, result.Stats.EventsImported)
	assert.Equal(t, 1, result.Stats.EventsSkipped)
}

func TestRunFetchFailure(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "run-fetch-fail")

	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	o, _ := newTestOrchestrator(db, fetcher)

	result := o.Run(ctx, server.ID, Options{DaysBack: 30, MaxEvents: 100})
	require.Equal(t, models.SyncFailed, result.Status)
	assert.Contains(t, result.Error, "connection refused")
	assert.Equal(t, 0, result.Stats.EventsImported)

	got, err := db.GetFeedServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastSync, "failed run must not advance last_sync")
	require.NotNil(t, got.LastSyncAttempt, "failed run still records the attempt")
	assert.Equal(t, string(models.SyncFailed), got.LastSyncStatus)
	assert.Contains(t, got.LastError, "connection refused")
}

func TestRunDecryptFailure(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "run-decrypt-fail")

	fetcher := &fakeFetcher{}
	factory := func(_ feed.Config, _ string) feed.Fetcher { return fetcher }
	o := NewOrchestrator(db, &plainDecryptor{err: errors.New("bad ciphertext")}, factory, 0)

	result := o.Run(ctx, server.ID, Options{DaysBack: 30, MaxEvents: 100})
	require.Equal(t, models.SyncFailed, result.Status)
	assert.Contains(t, result.Error, "bad ciphertext")
	assert.Equal(t, 0, fetcher.calls, "fetch must not happen without a usable key")
}

func TestRunUnknownServer(t *testing.T) {
	db := setupTestDB(t)

	o, _ := newTestOrchestrator(db, &fakeFetcher{})
	result := o.Run(context.Background(), "no-such-server", Options{DaysBack: 30, MaxEvents: 100})
	require.Equal(t, models.SyncFailed, result.Status)
	assert.Equal(t, "no-such-server", result.ServerID)
	assert.Contains(t, result.Error, "not found")
}

func TestConnectionChecksServer(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "conn-check")

	fetcher := &fakeFetcher{}
	o, gotCfg := newTestOrchestrator(db, fetcher)

	require.NoError(t, o.TestConnection(ctx, server.ID))
	assert.Equal(t, "https://feed.example.com", gotCfg.BaseURL)
	assert.Equal(t, "stored-ciphertext", gotCfg.APIKey)

	fetcher.err = errors.New("connection refused")
	err := o.TestConnection(ctx, server.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	err = o.TestConnection(ctx, "no-such-server")
	require.ErrorIs(t, err, database.ErrServerNotFound)
}
