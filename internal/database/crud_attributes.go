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

// CreateAttribute inserts a newly sighted attribute.
func (db *DB) CreateAttribute(ctx context.Context, attr *models.Attribute) error {
	if attr.ID == "" {
		attr.ID = uuid.New().String()
	}
	now := time.Now()
	attr.CreatedAt = now
	attr.UpdatedAt = now

	query := `INSERT INTO attributes (
		id, event_id, tenant_id, external_id, external_uuid,
		attr_type, category, value, to_ids, distribution,
		attr_timestamp, comment, tags, raw, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		attr.ID, attr.EventID, attr.TenantID, attr.ExternalID, attr.ExternalUUID,
		attr.Type, attr.Category, attr.Value, attr.ToIDS, attr.Distribution,
		attr.Timestamp, attr.Comment, tagsToJSON(attr.Tags), attr.Raw, attr.CreatedAt, attr.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create attribute: %w", err)
	}

	return nil
}

// UpdateAttributeFromFeed overwrites the externally-sourced mutable fields
// of an existing attribute.
func (db *DB) UpdateAttributeFromFeed(ctx context.Context, attr *models.Attribute) error {
	attr.UpdatedAt = time.Now()

	query := `UPDATE attributes SET
		attr_type = ?, category = ?, value = ?, to_ids = ?, distribution = ?,
		attr_timestamp = ?, comment = ?, tags = ?, raw = ?, updated_at = ?
	WHERE id = ?`

	result, err := db.conn.ExecContext(ctx, query,
		attr.Type, attr.Category, attr.Value, attr.ToIDS, attr.Distribution,
		attr.Timestamp, attr.Comment, tagsToJSON(attr.Tags), attr.Raw, attr.UpdatedAt,
		attr.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update attribute: %w", err)
	}
	return requireRowsAffected(result, ErrAttributeNotFound)
}

// GetAttributeByExternalUUID looks up an attribute by external UUID.
// Returns (nil, nil) when absent.
func (db *DB) GetAttributeByExternalUUID(ctx context.Context, externalUUID string) (*models.Attribute, error) {
	row := db.conn.QueryRowContext(ctx, attributeSelect+` WHERE external_uuid = ?`, externalUUID)
	attr, err := scanAttribute(row.Scan)
	if errors.Is(err, ErrAttributeNotFound) {
		return nil, nil
	}
	return attr, err
}

// ListAttributesByEvent retrieves all attributes under one event, in
// insertion order so conversion output stays deterministic.
func (db *DB) ListAttributesByEvent(ctx context.Context, eventID string) ([]models.Attribute, error) {
	rows, err := db.conn.QueryContext(ctx, attributeSelect+` WHERE event_id = ? ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attributes: %w", err)
	}
	defer rows.Close()

	attrs := make([]models.Attribute, 0)
	for rows.Next() {
		attr, err := scanAttribute(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attribute: %w", err)
		}
		attrs = append(attrs, *attr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attributes: %w", err)
	}

	return attrs, nil
}

// CountAttributesByEvent returns the number of attributes under one event.
func (db *DB) CountAttributesByEvent(ctx context.Context, eventID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attributes WHERE event_id = ?`, eventID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attributes: %w", err)
	}
	return count, nil
}

// attributeSelect is the shared column list for attribute scans.
const attributeSelect = `SELECT
	id, event_id, tenant_id, external_id, external_uuid,
	attr_type, category, value, to_ids, distribution,
	attr_timestamp, comment, tags, raw, created_at, updated_at
FROM attributes`

// scanAttribute scans one attribute row.
func scanAttribute(scan func(dest ...any) error) (*models.Attribute, error) {
	var attr models.Attribute
	var category, comment sql.NullString
	var attrTimestamp sql.NullTime
	var tags, raw any

	err := scan(
		&attr.ID, &attr.EventID, &attr.TenantID, &attr.ExternalID, &attr.ExternalUUID,
		&attr.Type, &category, &attr.Value, &attr.ToIDS, &attr.Distribution,
		&attrTimestamp, &comment, &tags, &raw, &attr.CreatedAt, &attr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttributeNotFound
		}
		return nil, fmt.Errorf("failed to scan attribute: %w", err)
	}

	attr.Category = category.String
	attr.Comment = comment.String
	if attrTimestamp.Valid {
		attr.Timestamp = attrTimestamp.Time
	}
	attr.Tags = tagsFromJSON(jsonText(tags))
	attr.Raw = jsonText(raw)

	return &attr, nil
}
