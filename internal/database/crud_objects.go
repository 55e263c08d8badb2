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

// CreateObject inserts a newly sighted object.
func (db *DB) CreateObject(ctx context.Context, obj *models.Object) error {
	if obj.ID == "" {
		obj.ID = uuid.New().String()
	}
	now := time.Now()
	obj.CreatedAt = now
	obj.UpdatedAt = now

	query := `INSERT INTO objects (
		id, event_id, tenant_id, external_id, external_uuid,
		name, meta_category, description, template_uuid, template_version,
		distribution, obj_timestamp, comment, deleted, raw, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		obj.ID, obj.EventID, obj.TenantID, obj.ExternalID, obj.ExternalUUID,
		obj.Name, obj.MetaCategory, obj.Description, obj.TemplateUUID, obj.TemplateVersion,
		obj.Distribution, obj.Timestamp, obj.Comment, obj.Deleted, obj.Raw, obj.CreatedAt, obj.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create object: %w", err)
	}

	return nil
}

// UpdateObjectFromFeed overwrites the externally-sourced mutable fields of
// an existing object.
func (db *DB) UpdateObjectFromFeed(ctx context.Context, obj *models.Object) error {
	obj.UpdatedAt = time.Now()

	query := `UPDATE objects SET
		name = ?, meta_category = ?, description = ?, template_uuid = ?,
		template_version = ?, distribution = ?, obj_timestamp = ?, comment = ?,
		deleted = ?, raw = ?, updated_at = ?
	WHERE id = ?`

	result, err := db.conn.ExecContext(ctx, query,
		obj.Name, obj.MetaCategory, obj.Description, obj.TemplateUUID,
		obj.TemplateVersion, obj.Distribution, obj.Timestamp, obj.Comment,
		obj.Deleted, obj.Raw, obj.UpdatedAt,
		obj.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update object: %w", err)
	}
	return requireRowsAffected(result, ErrObjectNotFound)
}

// GetObjectByExternalUUID looks up an object by external UUID.
// Returns (nil, nil) when absent.
func (db *DB) GetObjectByExternalUUID(ctx context.Context, externalUUID string) (*models.Object, error) {
	row := db.conn.QueryRowContext(ctx, objectSelect+` WHERE external_uuid = ?`, externalUUID)
	obj, err := scanObject(row.Scan)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, nil
	}
	return obj, err
}

// CountObjectsByEvent returns the number of objects under one event.
func (db *DB) CountObjectsByEvent(ctx context.Context, eventID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM objects WHERE event_id = ?`, eventID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count objects: %w", err)
	}
	return count, nil
}

// objectSelect is the shared column list for object scans.
const objectSelect = `SELECT
	id, event_id, tenant_id, external_id, external_uuid,
	name, meta_category, description, template_uuid, template_version,
	distribution, obj_timestamp, comment, deleted, raw, created_at, updated_at
FROM objects`

// scanObject scans one object row.
func scanObject(scan func(dest ...any) error) (*models.Object, error) {
	var obj models.Object
	var metaCategory, description, templateUUID, templateVersion, comment sql.NullString
	var objTimestamp sql.NullTime
	var raw any

	err := scan(
		&obj.ID, &obj.EventID, &obj.TenantID, &obj.ExternalID, &obj.ExternalUUID,
		&obj.Name, &metaCategory, &description, &templateUUID, &templateVersion,
		&obj.Distribution, &objTimestamp, &comment, &obj.Deleted, &raw, &obj.CreatedAt, &obj.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to scan object: %w", err)
	}

	obj.MetaCategory = metaCategory.String
	obj.Description = description.String
	obj.TemplateUUID = templateUUID.String
	obj.TemplateVersion = templateVersion.String
	obj.Comment = comment.String
	if objTimestamp.Valid {
		obj.Timestamp = objTimestamp.Time
	}
	obj.Raw = jsonText(raw)

	return &obj, nil
}
