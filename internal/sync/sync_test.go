// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/castellan-io/castellan/internal/config"
	"github.com/castellan-io/castellan/internal/database"
	"github.com/castellan-io/castellan/internal/feed"
	"github.com/castellan-io/castellan/internal/models"
)

// testDBSemaphore serializes database creation across this package's tests;
// concurrent in-memory DuckDB initialization is not worth the flake risk.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "512MB",
	})
	require.NoError(t, err, "Failed to create test database")
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func createTestServer(t *testing.T, db *database.DB, name string) *models.FeedServer {
	t.Helper()

	server := &models.FeedServer{
		TenantID:          "tenant-1",
		Name:              name,
		URL:               "https://feed.example.com",
		APIKeyEncrypted:   "stored-ciphertext",
		VerifySSL:         true,
		Enabled:           true,
		SyncIntervalHours: 24,
	}
	require.NoError(t, db.CreateFeedServer(context.Background(), server))
	return server
}

// fakeFetcher serves canned events to the orchestrator.
type fakeFetcher struct {
	events []feed.RawEvent
	err    error

	gotSince time.Time
	gotLimit int
	calls    int
}

func (f *fakeFetcher) SearchEvents(_ context.Context, since time.Time, limit int) ([]feed.RawEvent, error) {
	f.calls++
	f.gotSince = since
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeFetcher) Ping(_ context.Context) error {
	return f.err
}

// plainDecryptor pretends the stored ciphertext is the key itself.
type plainDecryptor struct {
	err error
}

func (d *plainDecryptor) Decrypt(ciphertext string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return ciphertext, nil
}

// rawTestEvent builds a well-formed raw event with one mapped attribute.
func rawTestEvent(id, uuid string) feed.RawEvent {
	return feed.RawEvent{
		ID:            id,
		UUID:          uuid,
		Info:          "Test campaign " + id,
		Date:          "2026-08-20",
		ThreatLevelID: "1",
		Published:     true,
		Timestamp:     "1755686400",
		Org:           &feed.RawOrg{Name: "CIRCL"},
		Tags:          []feed.RawTag{{Name: "tlp:amber"}},
		Attributes: []feed.RawAttribute{
			{ID: "9" + id, UUID: uuid + "-attr-1", Type: "ip-src", Value: "198.51.100." + id, ToIDS: true, Timestamp: "1755686400"},
		},
	}
}
