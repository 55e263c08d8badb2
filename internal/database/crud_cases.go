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

// CreateAlertTx inserts an alert inside a conversion transaction.
// A (tenant, source, source_ref) conflict returns ErrDuplicateKey, which
// the conversion engine remaps to already_converted.
func CreateAlertTx(ctx context.Context, tx *sql.Tx, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	if alert.Status == "" {
		alert.Status = models.StatusNew
	}

	query := `INSERT INTO alerts (
		id, tenant_id, title, description, severity, status,
		source, source_ref, tags, raw, artifact_count, alert_date, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, query,
		alert.ID, alert.TenantID, alert.Title, alert.Description, string(alert.Severity), string(alert.Status),
		alert.Source, alert.SourceRef, tagsToJSON(alert.Tags), alert.Raw, alert.ArtifactCount, alert.Date, alert.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// CreateIncidentTx inserts an incident inside a conversion transaction,
// with the same conflict discipline as CreateAlertTx.
func CreateIncidentTx(ctx context.Context, tx *sql.Tx, incident *models.Incident) error {
	if incident.ID == "" {
		incident.ID = uuid.New().String()
	}
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = time.Now()
	}
	if incident.Status == "" {
		incident.Status = models.StatusNew
	}

	query := `INSERT INTO incidents (
		id, tenant_id, title, description, severity, status,
		source, source_ref, raw, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, query,
		incident.ID, incident.TenantID, incident.Title, incident.Description, string(incident.Severity), string(incident.Status),
		incident.Source, incident.SourceRef, incident.Raw, incident.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create incident: %w", err)
	}

	return nil
}

// GetAlert retrieves an alert by ID.
func (db *DB) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := db.conn.QueryRowContext(ctx, alertSelect+` WHERE id = ?`, id)
	return scanAlert(row.Scan)
}

// GetAlertBySourceRef looks up an alert by its provenance key.
// Returns (nil, nil) when absent.
func (db *DB) GetAlertBySourceRef(ctx context.Context, tenantID, source, sourceRef string) (*models.Alert, error) {
	row := db.conn.QueryRowContext(ctx,
		alertSelect+` WHERE tenant_id = ? AND source = ? AND source_ref = ?`,
		tenantID, source, sourceRef,
	)
	alert, err := scanAlert(row.Scan)
	if errors.Is(err, ErrAlertNotFound) {
		return nil, nil
	}
	return alert, err
}

// GetIncident retrieves an incident by ID.
func (db *DB) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	row := db.conn.QueryRowContext(ctx, incidentSelect+` WHERE id = ?`, id)
	return scanIncident(row.Scan)
}

// GetIncidentBySourceRef looks up an incident by its provenance key.
// Returns (nil, nil) when absent.
func (db *DB) GetIncidentBySourceRef(ctx context.Context, tenantID, source, sourceRef string) (*models.Incident, error) {
	row := db.conn.QueryRowContext(ctx,
		incidentSelect+` WHERE tenant_id = ? AND source = ? AND source_ref = ?`,
		tenantID, source, sourceRef,
	)
	incident, err := scanIncident(row.Scan)
	if errors.Is(err, ErrIncidentNotFound) {
		return nil, nil
	}
	return incident, err
}

// UpdateAlertArtifactCountTx recomputes an alert's artifact count from its
// observable links, inside the conversion transaction.
func UpdateAlertArtifactCountTx(ctx context.Context, tx *sql.Tx, alertID string) error {
	query := `UPDATE alerts SET artifact_count = (
		SELECT COUNT(*) FROM alert_observables WHERE alert_id = ?
	) WHERE id = ?`

	result, err := tx.ExecContext(ctx, query, alertID, alertID)
	if err != nil {
		return fmt.Errorf("failed to update artifact count: %w", err)
	}
	return requireRowsAffected(result, ErrAlertNotFound)
}

// alertSelect is the shared column list for alert scans.
const alertSelect = `SELECT
	id, tenant_id, title, description, severity, status,
	source, source_ref, tags, raw, artifact_count, alert_date, created_at
FROM alerts`

// scanAlert scans one alert row.
func scanAlert(scan func(dest ...any) error) (*models.Alert, error) {
	var alert models.Alert
	var description sql.NullString
	var severity, status string
	var tags, raw any
	var alertDate sql.NullTime

	err := scan(
		&alert.ID, &alert.TenantID, &alert.Title, &description, &severity, &status,
		&alert.Source, &alert.SourceRef, &tags, &raw, &alert.ArtifactCount, &alertDate, &alert.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	alert.Description = description.String
	alert.Severity = models.Severity(severity)
	alert.Status = models.CaseStatus(status)
	alert.Tags = tagsFromJSON(jsonText(tags))
	alert.Raw = jsonText(raw)
	if alertDate.Valid {
		alert.Date = alertDate.Time
	}

	return &alert, nil
}

// incidentSelect is the shared column list for incident scans.
const incidentSelect = `SELECT
	id, tenant_id, title, description, severity, status,
	source, source_ref, raw, created_at
FROM incidents`

// scanIncident scans one incident row.
func scanIncident(scan func(dest ...any) error) (*models.Incident, error) {
	var incident models.Incident
	var description sql.NullString
	var severity, status string
	var raw any

	err := scan(
		&incident.ID, &incident.TenantID, &incident.Title, &description, &severity, &status,
		&incident.Source, &incident.SourceRef, &raw, &incident.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("failed to scan incident: %w", err)
	}

	incident.Description = description.String
	incident.Severity = models.Severity(severity)
	incident.Status = models.CaseStatus(status)
	incident.Raw = jsonText(raw)

	return &incident, nil
}
