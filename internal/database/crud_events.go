// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/castellan-io/castellan/internal/models"
)

// CreateEvent inserts a newly sighted event.
func (db *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now

	query := `INSERT INTO events (
		id, server_id, tenant_id, external_id, external_uuid,
		title, event_date, threat_level, analysis, distribution, published,
		tags, org_name, orgc_name, event_timestamp, raw, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		event.ID, event.ServerID, event.TenantID, event.ExternalID, event.ExternalUUID,
		event.Title, event.Date, int(event.ThreatLevel), event.Analysis, event.Distribution, event.Published,
		tagsToJSON(event.Tags), event.OrgName, event.OrgcName, event.Timestamp, event.Raw, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

// UpdateEventFromFeed overwrites the externally-sourced mutable fields of an
// existing event. Locally-owned fields (alert_id, incident_id) are
// deliberately not in the column list: conversion back-references survive
// every re-sync.
func (db *DB) UpdateEventFromFeed(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now()

	query := `UPDATE events SET
		title = ?, event_date = ?, threat_level = ?, analysis = ?,
		distribution = ?, published = ?, tags = ?, org_name = ?, orgc_name = ?,
		event_timestamp = ?, raw = ?, updated_at = ?
	WHERE id = ?`

	result, err := db.conn.ExecContext(ctx, query,
		event.Title, event.Date, int(event.ThreatLevel), event.Analysis,
		event.Distribution, event.Published, tagsToJSON(event.Tags), event.OrgName, event.OrgcName,
		event.Timestamp, event.Raw, event.UpdatedAt,
		event.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return requireRowsAffected(result, ErrEventNotFound)
}

// GetEvent retrieves an event by its local ID.
func (db *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := db.conn.QueryRowContext(ctx, eventSelect+` WHERE id = ?`, id)
	return scanEvent(row.Scan)
}

// GetEventByExternalUUID looks up an event by its globally unique external
// UUID. Returns (nil, nil) when no event exists: reconciliation branches on
// presence, not on a caught not-found error.
func (db *DB) GetEventByExternalUUID(ctx context.Context, externalUUID string) (*models.Event, error) {
	row := db.conn.QueryRowContext(ctx, eventSelect+` WHERE external_uuid = ?`, externalUUID)
	event, err := scanEvent(row.Scan)
	if errors.Is(err, ErrEventNotFound) {
		return nil, nil
	}
	return event, err
}

// CountEventsByServer returns the number of events owned by one server.
func (db *DB) CountEventsByServer(ctx context.Context, serverID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE server_id = ?`, serverID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// SetEventAlertTx records the alert back-reference inside a conversion
// transaction. The WHERE guard keeps the transition one-way: an event that
// already points at an alert is never re-pointed.
func SetEventAlertTx(ctx context.Context, tx *sql.Tx, eventID, alertID string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE events SET alert_id = ?, updated_at = ? WHERE id = ? AND alert_id IS NULL`,
		alertID, time.Now(), eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to set event alert reference: %w", err)
	}
	return requireRowsAffected(result, ErrDuplicateKey)
}

// SetEventIncidentTx records the incident back-reference inside a
// conversion transaction, with the same one-way guard as SetEventAlertTx.
func SetEventIncidentTx(ctx context.Context, tx *sql.Tx, eventID, incidentID string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE events SET incident_id = ?, updated_at = ? WHERE id = ? AND incident_id IS NULL`,
		incidentID, time.Now(), eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to set event incident reference: %w", err)
	}
	return requireRowsAffected(result, ErrDuplicateKey)
}

// eventSelect is the shared column list for event scans.
const eventSelect = `SELECT
	id, server_id, tenant_id, external_id, external_uuid,
	title, event_date, threat_level, analysis, distribution, published,
	tags, org_name, orgc_name, event_timestamp, raw,
	alert_id, incident_id, created_at, updated_at
FROM events`

// scanEvent scans one event row.
func scanEvent(scan func(dest ...any) error) (*models.Event, error) {
	var event models.Event
	var eventDate, orgName, orgcName sql.NullString
	var threatLevel int
	var tags, raw any
	var eventTimestamp sql.NullTime
	var alertID, incidentID sql.NullString

	err := scan(
		&event.ID, &event.ServerID, &event.TenantID, &event.ExternalID, &event.ExternalUUID,
		&event.Title, &eventDate, &threatLevel, &event.Analysis, &event.Distribution, &event.Published,
		&tags, &orgName, &orgcName, &eventTimestamp, &raw,
		&alertID, &incidentID, &event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.Date = eventDate.String
	event.ThreatLevel = models.ThreatLevel(threatLevel)
	event.Tags = tagsFromJSON(jsonText(tags))
	event.OrgName = orgName.String
	event.OrgcName = orgcName.String
	if eventTimestamp.Valid {
		event.Timestamp = eventTimestamp.Time
	}
	event.Raw = jsonText(raw)
	if alertID.Valid {
		event.AlertID = &alertID.String
	}
	if incidentID.Valid {
		event.IncidentID = &incidentID.String
	}

	return &event, nil
}
