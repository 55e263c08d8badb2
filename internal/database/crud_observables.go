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

// CreateObservableTx inserts an observable inside a conversion transaction.
// The observables table has no uniqueness constraint; deduplication, where
// wanted, is the caller's job via GetObservableByKeyTx.
func CreateObservableTx(ctx context.Context, tx *sql.Tx, obs *models.Observable) error {
	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = time.Now()
	}

	query := `INSERT INTO observables (
		id, tenant_id, obs_type, value, tlp, is_ioc,
		source, source_ref, description, incident_id, first_seen, last_seen, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, query,
		obs.ID, obs.TenantID, string(obs.Type), obs.Value, obs.TLP, obs.IsIOC,
		obs.Source, obs.SourceRef, obs.Description, obs.IncidentID, obs.FirstSeen, obs.LastSeen, obs.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create observable: %w", err)
	}

	return nil
}

// GetObservableByKeyTx looks up a deduplication candidate by
// (tenant, type, value) inside a conversion transaction. Only observables
// not bound to an incident are candidates: incident-path observables are
// duplicates on purpose and must not be reused by the alert path.
// Returns (nil, nil) when absent.
func GetObservableByKeyTx(ctx context.Context, tx *sql.Tx, tenantID string, obsType models.ObservableType, value string) (*models.Observable, error) {
	row := tx.QueryRowContext(ctx,
		observableSelect+` WHERE o.tenant_id = ? AND o.obs_type = ? AND o.value = ? AND o.incident_id IS NULL
		ORDER BY o.created_at, o.id LIMIT 1`,
		tenantID, string(obsType), value,
	)
	obs, err := scanObservable(row.Scan)
	if errors.Is(err, ErrObservableNotFound) {
		return nil, nil
	}
	return obs, err
}

// LinkAlertObservableTx attaches an observable to an alert. Re-linking an
// already linked pair is not an error: the (alert_id, observable_id)
// uniqueness makes the link idempotent.
func LinkAlertObservableTx(ctx context.Context, tx *sql.Tx, alertID, observableID string) error {
	query := `INSERT INTO alert_observables (alert_id, observable_id, created_at) VALUES (?, ?, ?)`

	_, err := tx.ExecContext(ctx, query, alertID, observableID, time.Now())
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("failed to link observable to alert: %w", err)
	}

	return nil
}

// GetObservable retrieves an observable by ID.
func (db *DB) GetObservable(ctx context.Context, id string) (*models.Observable, error) {
	row := db.conn.QueryRowContext(ctx, observableSelect+` WHERE o.id = ?`, id)
	return scanObservable(row.Scan)
}

// ListObservablesByAlert returns the observables linked to an alert, in
// link order.
func (db *DB) ListObservablesByAlert(ctx context.Context, alertID string) ([]*models.Observable, error) {
	query := observableSelect + `
		JOIN alert_observables ao ON ao.observable_id = o.id
		WHERE ao.alert_id = ?
		ORDER BY ao.created_at, o.id`

	rows, err := db.conn.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert observables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectObservables(rows)
}

// ListObservablesByIncident returns the observables created alongside an
// incident, in creation order.
func (db *DB) ListObservablesByIncident(ctx context.Context, incidentID string) ([]*models.Observable, error) {
	query := observableSelect + ` WHERE o.incident_id = ? ORDER BY o.created_at, o.id`

	rows, err := db.conn.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list incident observables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectObservables(rows)
}

// CountObservablesByKey reports how many rows share a deduplication key.
// The incident path leaves duplicates behind, so counts above one are
// expected there.
func (db *DB) CountObservablesByKey(ctx context.Context, tenantID string, obsType models.ObservableType, value string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM observables WHERE tenant_id = ? AND obs_type = ? AND value = ?`,
		tenantID, string(obsType), value,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count observables: %w", err)
	}
	return count, nil
}

func collectObservables(rows *sql.Rows) ([]*models.Observable, error) {
	var observables []*models.Observable
	for rows.Next() {
		obs, err := scanObservable(rows.Scan)
		if err != nil {
			return nil, err
		}
		observables = append(observables, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate observables: %w", err)
	}
	return observables, nil
}

// observableSelect is the shared column list for observable scans. The table
// is aliased so callers can append JOINs directly.
const observableSelect = `SELECT
	o.id, o.tenant_id, o.obs_type, o.value, o.tlp, o.is_ioc,
	o.source, o.source_ref, o.description, o.incident_id, o.first_seen, o.last_seen, o.created_at
FROM observables o`

// scanObservable scans one observable row.
func scanObservable(scan func(dest ...any) error) (*models.Observable, error) {
	var obs models.Observable
	var obsType string
	var tlp, source, sourceRef, description, incidentID sql.NullString
	var firstSeen, lastSeen sql.NullTime

	err := scan(
		&obs.ID, &obs.TenantID, &obsType, &obs.Value, &tlp, &obs.IsIOC,
		&source, &sourceRef, &description, &incidentID, &firstSeen, &lastSeen, &obs.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrObservableNotFound
		}
		return nil, fmt.Errorf("failed to scan observable: %w", err)
	}

	obs.Type = models.ObservableType(obsType)
	obs.TLP = tlp.String
	obs.Source = source.String
	obs.SourceRef = sourceRef.String
	obs.Description = description.String
	if incidentID.Valid {
		obs.IncidentID = &incidentID.String
	}
	if firstSeen.Valid {
		obs.FirstSeen = &firstSeen.Time
	}
	if lastSeen.Valid {
		obs.LastSeen = &lastSeen.Time
	}

	return &obs, nil
}
