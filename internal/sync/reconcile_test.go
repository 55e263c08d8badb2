// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-io/castellan/internal/feed"
	"github.com/castellan-io/castellan/internal/models"
)

func TestUpsertEventCreates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "reconcile-create")
	r := NewReconciler(db)

	raw := rawTestEvent("17", "event-uuid-17")
	event, created, err := r.UpsertEvent(ctx, server, &raw)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotEmpty(t, event.ID)
	assert.Equal(t, int64(17), event.ExternalID)
	assert.Equal(t, "Test campaign 17", event.Title)
	assert.Equal(t, models.ThreatLevelHigh, event.ThreatLevel)
	assert.Equal(t, "CIRCL", event.OrgName)
	assert.Equal(t, []string{"tlp:amber"}, event.Tags)
	assert.Equal(t, time.Date(2025, 8, 20, 10, 40, 0, 0, time.UTC), event.Timestamp)

	got, err := db.GetEventByExternalUUID(ctx, "event-uuid-17")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, event.ID, got.ID)
}

func TestUpsertEventUpdates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "reconcile-update")
	r := NewReconciler(db)

	raw := rawTestEvent("18", "event-uuid-18")
	first, created, err := r.UpsertEvent(ctx, server, &raw)
	require.NoError(t, err)
	require.True(t, created)

	raw.Info = "Renamed upstream"
	raw.ThreatLevelID = "3"
	second, created, err := r.UpsertEvent(ctx, server, &raw)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID, "update must reuse the existing row")
	assert.Equal(t, "Renamed upstream", second.Title)
	assert.Equal(t, models.ThreatLevelLow, second.ThreatLevel)
}

func TestUpsertEventDefaultsThreatLevel(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "reconcile-default-tl")
	r := NewReconciler(db)

	raw := rawTestEvent("19", "event-uuid-19")
	raw.ThreatLevelID = ""
	event, _, err := r.UpsertEvent(ctx, server, &raw)
	require.NoError(t, err)
	assert.Equal(t, models.ThreatLevelMedium, event.ThreatLevel)
}

func TestUpsertEventMalformed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "reconcile-malformed")
	r := NewReconciler(db)

	tests := []struct {
		name string
		raw  feed.RawEvent
	}{
		{"missing id", feed.RawEvent{UUID: "has-uuid"}},
		{"non-numeric id", feed.RawEvent{ID: "abc", UUID: "has-uuid"}},
		{"missing uuid", feed.RawEvent{ID: "20"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := r.UpsertEvent(ctx, server, &tt.raw)
			require.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestUpsertEventPreservesConversionLinks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "reconcile-links")
	r := NewReconciler(db)

	raw := rawTestEvent("21", "event-uuid-21")
	event, _, err := r.UpsertEvent(ctx, server, &raw)
	require.NoError(t, err)

	// Simulate a prior conversion, then replay the upsert.
	alertID := uuid.New().String()
	_, err = db.Conn().ExecContext(ctx, `UPDATE events SET alert_id = ? WHERE id = ?`, alertID, event.ID)
	require.NoError(t, err)

	again, created, err := r.UpsertEvent(ctx, server, &raw)
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, again.AlertID, "returned event must carry the existing back-reference")
	assert.Equal(t, alertID, *again.AlertID)

	got, err := db.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AlertID)
	assert.Equal(t, alertID, *got.AlertID)
}

func TestUpsertAttribute(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "reconcile-attrs")
	r := NewReconciler(db)

	raw := rawTestEvent("22", "event-uuid-22")
	event, _, err := r.UpsertEvent(ctx, server, &raw)
	require.NoError(t, err)

	rawAttr := feed.RawAttribute{
		ID:        "901",
		UUID:      "attr-uuid-901",
		Type:      "domain",
		Category:  "Network activity",
		Value:     "c2.example.org",
		ToIDS:     true,
		Timestamp: "1755686400",
	}
	attr, created, err := r.UpsertAttribute(ctx, event, &rawAttr)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, event.ID, attr.EventID)
	assert.Equal(t, "tenant-1", attr.TenantID)

	rawAttr.Value = "c2-b.example.org"
	updated, created, err := r.UpsertAttribute(ctx, event, &rawAttr)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, attr.ID, updated.ID)

	got, err := db.GetAttributeByExternalUUID(ctx, "attr-uuid-901")
	require.NoError(t, err)
	assert.Equal(t, "c2-b.example.org", got.Value)

	_, _, err = r.UpsertAttribute(ctx, event, &feed.RawAttribute{ID: "902"})
	require.ErrorIs(t, err, ErrMalformedRecord)
}

func TestUpsertObject(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	server := createTestServer(t, db, "reconcile-objects")
	r := NewReconciler(db)

	raw := rawTestEvent("23", "event-uuid-23")
	event, _, err := r.UpsertEvent(ctx, server, &raw)
	require.NoError(t, err)

	rawObj := feed.RawObject{
		ID:           "301",
		UUID:         "object-uuid-301",
		Name:         "file",
		MetaCategory: "file",
		Description:  "Dropped binary",
		Timestamp:    "1755686400",
	}
	obj, created, err := r.UpsertObject(ctx, event, &rawObj)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "file", obj.Name)

	rawObj.Deleted = true
	updated, created, err := r.UpsertObject(ctx, event, &rawObj)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, obj.ID, updated.ID)
	assert.True(t, updated.Deleted)
}
