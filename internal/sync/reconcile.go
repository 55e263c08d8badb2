// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/castellan-io/castellan/internal/database"
	"github.com/castellan-io/castellan/internal/feed"
	"github.com/castellan-io/castellan/internal/models"
)

// ErrMalformedRecord marks a raw record missing its required external
// identifiers. Callers skip the record and continue the batch.
var ErrMalformedRecord = errors.New("malformed record: missing external id or uuid")

// Reconciler performs idempotent upserts of raw feed records into local
// entities.
//
// Each upsert looks the entity up by external UUID and branches on presence:
// found means overwrite the externally-sourced mutable fields, not found
// means create bound to the parent. Locally-owned fields, the event's alert
// and incident back-references in particular, are never touched. Re-running
// an upsert with unchanged raw data is therefore a no-op beyond the
// updated_at bump.
type Reconciler struct {
	db *database.DB
}

// NewReconciler creates a reconciler backed by the given database.
func NewReconciler(db *database.DB) *Reconciler {
	return &Reconciler{db: db}
}

// UpsertEvent reconciles one raw event under the given server. Returns the
// persisted event and whether it was created. A missing external id or UUID
// is ErrMalformedRecord.
func (r *Reconciler) UpsertEvent(ctx context.Context, server *models.FeedServer, raw *feed.RawEvent) (*models.Event, bool, error) {
	externalID, ok := feed.ParseID(raw.ID)
	if !ok || raw.UUID == "" {
		return nil, false, ErrMalformedRecord
	}

	event := &models.Event{
		ServerID:     server.ID,
		TenantID:     server.TenantID,
		ExternalID:   externalID,
		ExternalUUID: raw.UUID,
		Title:        raw.Info,
		Date:         raw.Date,
		ThreatLevel:  models.ThreatLevel(feed.ParseIntField(raw.ThreatLevelID, int(models.ThreatLevelMedium))),
		Analysis:     feed.ParseIntField(raw.Analysis, 0),
		Distribution: feed.ParseIntField(raw.Distribution, 0),
		Published:    raw.Published,
		Tags:         feed.TagNames(raw.Tags),
		Timestamp:    feed.ParseEpoch(raw.Timestamp),
		Raw:          rawJSON(raw),
	}
	if raw.Org != nil {
		event.OrgName = raw.Org.Name
	}
	if raw.Orgc != nil {
		event.OrgcName = raw.Orgc.Name
	}

	existing, err := r.db.GetEventByExternalUUID(ctx, raw.UUID)
	if err != nil {
		return nil, false, fmt.Errorf("event lookup failed: %w", err)
	}

	if existing != nil {
		event.ID = existing.ID
		if err := r.db.UpdateEventFromFeed(ctx, event); err != nil {
			return nil, false, err
		}
		event.AlertID = existing.AlertID
		event.IncidentID = existing.IncidentID
		return event, false, nil
	}

	if err := r.db.CreateEvent(ctx, event); err != nil {
		return nil, false, err
	}
	return event, true, nil
}

// UpsertAttribute reconciles one raw attribute under its parent event.
func (r *Reconciler) UpsertAttribute(ctx context.Context, event *models.Event, raw *feed.RawAttribute) (*models.Attribute, bool, error) {
	externalID, ok := feed.ParseID(raw.ID)
	if !ok || raw.UUID == "" {
		return nil, false, ErrMalformedRecord
	}

	attr := &models.Attribute{
		EventID:      event.ID,
		TenantID:     event.TenantID,
		ExternalID:   externalID,
		ExternalUUID: raw.UUID,
		Type:         raw.Type,
		Category:     raw.Category,
		Value:        raw.Value,
		ToIDS:        raw.ToIDS,
		Distribution: feed.ParseIntField(raw.Distribution, 0),
		Timestamp:    feed.ParseEpoch(raw.Timestamp),
		Comment:      raw.Comment,
		Tags:         feed.TagNames(raw.Tags),
		Raw:          rawJSON(raw),
	}

	existing, err := r.db.GetAttributeByExternalUUID(ctx, raw.UUID)
	if err != nil {
		return nil, false, fmt.Errorf("attribute lookup failed: %w", err)
	}

	if existing != nil {
		attr.ID = existing.ID
		if err := r.db.UpdateAttributeFromFeed(ctx, attr); err != nil {
			return nil, false, err
		}
		return attr, false, nil
	}

	if err := r.db.CreateAttribute(ctx, attr); err != nil {
		return nil, false, err
	}
	return attr, true, nil
}

// UpsertObject reconciles one raw object under its parent event.
func (r *Reconciler) UpsertObject(ctx context.Context, event *models.Event, raw *feed.RawObject) (*models.Object, bool, error) {
	externalID, ok := feed.ParseID(raw.ID)
	if !ok || raw.UUID == "" {
		return nil, false, ErrMalformedRecord
	}

	obj := &models.Object{
		EventID:         event.ID,
		TenantID:        event.TenantID,
		ExternalID:      externalID,
		ExternalUUID:    raw.UUID,
		Name:            raw.Name,
		MetaCategory:    raw.MetaCategory,
		Description:     raw.Description,
		TemplateUUID:    raw.TemplateUUID,
		TemplateVersion: raw.TemplateVersion,
		Distribution:    feed.ParseIntField(raw.Distribution, 0),
		Timestamp:       feed.ParseEpoch(raw.Timestamp),
		Comment:         raw.Comment,
		Deleted:         raw.Deleted,
		Raw:             rawJSON(raw),
	}

	existing, err := r.db.GetObjectByExternalUUID(ctx, raw.UUID)
	if err != nil {
		return nil, false, fmt.Errorf("object lookup failed: %w", err)
	}

	if existing != nil {
		obj.ID = existing.ID
		if err := r.db.UpdateObjectFromFeed(ctx, obj); err != nil {
			return nil, false, err
		}
		return obj, false, nil
	}

	if err := r.db.CreateObject(ctx, obj); err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

// rawJSON serializes a raw record for provenance storage. Marshal failure
// degrades to an empty object rather than failing the upsert.
func rawJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
