// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-io/castellan/internal/models"
)

func TestCreateAndGetFeedServer(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	server := createTestServer(t, db, "primary-feed")
	require.NotEmpty(t, server.ID, "create must assign an ID")

	got, err := db.GetFeedServer(ctx, server.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "primary-feed", got.Name)
	assert.Equal(t, "tenant-1", got.TenantID)
	assert.Equal(t, "https://feed.example.com", got.URL)
	assert.Equal(t, "encrypted-key", got.APIKeyEncrypted)
	assert.True(t, got.VerifySSL)
	assert.True(t, got.Enabled)
	assert.Equal(t, 24, got.SyncIntervalHours)
	assert.Nil(t, got.LastSync)
	assert.Nil(t, got.LastSyncAttempt)
}

func TestGetFeedServerNotFound(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetFeedServer(context.Background(), "no-such-id")
	require.ErrorIs(t, err, ErrServerNotFound)
	assert.Nil(t, got)
}

func TestCreateFeedServerNameConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestServer(t, db, "duplicate-name")

	dup := &models.FeedServer{
		TenantID:        "tenant-1",
		Name:            "duplicate-name",
		URL:             "https://other.example.com",
		APIKeyEncrypted: "encrypted-key",
	}
	err := db.CreateFeedServer(ctx, dup)
	require.ErrorIs(t, err, ErrServerNameConflict)
}

func TestCreateFeedServerDefaultInterval(t *testing.T) {
	db := setupTestDB(t)

	server := &models.FeedServer{
		TenantID:        "tenant-1",
		Name:            "no-interval",
		URL:             "https://feed.example.com",
		APIKeyEncrypted: "encrypted-key",
	}
	require.NoError(t, db.CreateFeedServer(context.Background(), server))
	assert.Equal(t, 24, server.SyncIntervalHours)
}

func TestUpdateFeedServer(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	server := createTestServer(t, db, "to-update")
	server.Name = "updated-name"
	server.URL = "https://new.example.com"
	server.Enabled = false
	server.SyncIntervalHours = 6
	require.NoError(t, db.UpdateFeedServer(ctx, server))

	got, err := db.GetFeedServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated-name", got.Name)
	assert.Equal(t, "https://new.example.com", got.URL)
	assert.False(t, got.Enabled)
	assert.Equal(t, 6, got.SyncIntervalHours)
}

func TestDeleteFeedServer(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	server := createTestServer(t, db, "to-delete")
	require.NoError(t, db.DeleteFeedServer(ctx, server.ID))

	_, err := db.GetFeedServer(ctx, server.ID)
	require.ErrorIs(t, err, ErrServerNotFound)

	require.ErrorIs(t, db.DeleteFeedServer(ctx, server.ID), ErrServerNotFound)
}

func TestListEnabledFeedServers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestServer(t, db, "enabled-a")
	createTestServer(t, db, "enabled-b")
	disabled := createTestServer(t, db, "disabled-c")
	disabled.Enabled = false
	require.NoError(t, db.UpdateFeedServer(ctx, disabled))

	servers, err := db.ListEnabledFeedServers(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	names := []string{servers[0].Name, servers[1].Name}
	assert.ElementsMatch(t, []string{"enabled-a", "enabled-b"}, names)
}

func TestSyncBookkeeping(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	server := createTestServer(t, db, "bookkeeping")
	start := time.Now().UTC().Truncate(time.Second)

	// Attempt advances last_sync_attempt but never last_sync.
	require.NoError(t, db.MarkSyncAttempt(ctx, server.ID, start))
	got, err := db.GetFeedServer(ctx, server.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncAttempt)
	assert.Equal(t, start, got.LastSyncAttempt.UTC())
	assert.Nil(t, got.LastSync)

	// Failure records status and error without touching last_sync.
	require.NoError(t, db.MarkSyncFailed(ctx, server.ID, "connection refused"))
	got, err = db.GetFeedServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.SyncFailed), got.LastSyncStatus)
	assert.Equal(t, "connection refused", got.LastError)
	assert.Nil(t, got.LastSync)

	// Completion advances last_sync to the run's START time and clears the
	// stored error, so events published mid-run are re-fetched next time.
	require.NoError(t, db.MarkSyncCompleted(ctx, server.ID, start))
	got, err = db.GetFeedServer(ctx, server.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSync)
	assert.Equal(t, start, got.LastSync.UTC())
	assert.Equal(t, string(models.SyncCompleted), got.LastSyncStatus)
	assert.Empty(t, got.LastError)
}

func TestSyncBookkeepingUnknownServer(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.ErrorIs(t, db.MarkSyncAttempt(ctx, "missing", now), ErrServerNotFound)
	require.ErrorIs(t, db.MarkSyncCompleted(ctx, "missing", now), ErrServerNotFound)
	require.ErrorIs(t, db.MarkSyncFailed(ctx, "missing", "x"), ErrServerNotFound)
}
