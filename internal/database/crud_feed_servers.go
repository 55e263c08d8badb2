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

// CreateFeedServer stores a new feed server configuration.
// The API key must already be encrypted by the caller.
func (db *DB) CreateFeedServer(ctx context.Context, server *models.FeedServer) error {
	if server.ID == "" {
		server.ID = uuid.New().String()
	}
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now()
	}
	server.UpdatedAt = server.CreatedAt
	if server.SyncIntervalHours <= 0 {
		server.SyncIntervalHours = 24
	}

	query := `INSERT INTO feed_servers (
		id, tenant_id, name, url, api_key_encrypted, description,
		verify_ssl, enabled, sync_interval_hours, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		server.ID, server.TenantID, server.Name, server.URL, server.APIKeyEncrypted, server.Description,
		server.VerifySSL, server.Enabled, server.SyncIntervalHours, server.CreatedAt, server.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrServerNameConflict
		}
		return fmt.Errorf("failed to create feed server: %w", err)
	}

	return nil
}

// GetFeedServer retrieves a feed server by ID.
func (db *DB) GetFeedServer(ctx context.Context, id string) (*models.FeedServer, error) {
	row := db.conn.QueryRowContext(ctx, feedServerSelect+` WHERE id = ?`, id)
	return scanFeedServer(row.Scan)
}

// ListEnabledFeedServers retrieves all enabled feed servers, oldest first.
// The scheduler iterates this list on each tick.
func (db *DB) ListEnabledFeedServers(ctx context.Context) ([]models.FeedServer, error) {
	rows, err := db.conn.QueryContext(ctx, feedServerSelect+` WHERE enabled = true ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed servers: %w", err)
	}
	defer rows.Close()

	servers := make([]models.FeedServer, 0)
	for rows.Next() {
		server, err := scanFeedServer(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed server: %w", err)
		}
		servers = append(servers, *server)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed servers: %w", err)
	}

	return servers, nil
}

// UpdateFeedServer updates a feed server's mutable configuration.
func (db *DB) UpdateFeedServer(ctx context.Context, server *models.FeedServer) error {
	server.UpdatedAt = time.Now()

	query := `UPDATE feed_servers SET
		name = ?, url = ?, api_key_encrypted = ?, description = ?,
		verify_ssl = ?, enabled = ?, sync_interval_hours = ?, updated_at = ?
	WHERE id = ?`

	result, err := db.conn.ExecContext(ctx, query,
		server.Name, server.URL, server.APIKeyEncrypted, server.Description,
		server.VerifySSL, server.Enabled, server.SyncIntervalHours, server.UpdatedAt,
		server.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrServerNameConflict
		}
		return fmt.Errorf("failed to update feed server: %w", err)
	}

	return requireRowsAffected(result, ErrServerNotFound)
}

// DeleteFeedServer removes a feed server.
func (db *DB) DeleteFeedServer(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM feed_servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete feed server: %w", err)
	}
	return requireRowsAffected(result, ErrServerNotFound)
}

// MarkSyncAttempt stamps last_sync_attempt before a run starts. The
// timestamp advances on every run so a crashed run never masks the attempt,
// while last_sync only advances on completion.
func (db *DB) MarkSyncAttempt(ctx context.Context, id string, at time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE feed_servers SET last_sync_attempt = ?, updated_at = ? WHERE id = ?`,
		at, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark sync attempt: %w", err)
	}
	return requireRowsAffected(result, ErrServerNotFound)
}

// MarkSyncCompleted advances last_sync to the run's start time and clears
// any recorded error.
func (db *DB) MarkSyncCompleted(ctx context.Context, id string, startedAt time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE feed_servers SET
			last_sync = ?, last_sync_status = ?, last_error = NULL, updated_at = ?
		WHERE id = ?`,
		startedAt, string(models.SyncCompleted), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark sync completed: %w", err)
	}
	return requireRowsAffected(result, ErrServerNotFound)
}

// MarkSyncFailed records a failed run without touching last_sync.
func (db *DB) MarkSyncFailed(ctx context.Context, id string, syncErr string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE feed_servers SET last_sync_status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(models.SyncFailed), syncErr, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark sync failed: %w", err)
	}
	return requireRowsAffected(result, ErrServerNotFound)
}

// feedServerSelect is the shared column list for feed server scans.
const feedServerSelect = `SELECT
	id, tenant_id, name, url, api_key_encrypted, description,
	verify_ssl, enabled, sync_interval_hours,
	last_sync, last_sync_attempt, last_sync_status, last_error,
	created_at, updated_at
FROM feed_servers`

// scanFeedServer scans one row using the provided scan function, which may
// come from *sql.Row or *sql.Rows.
func scanFeedServer(scan func(dest ...any) error) (*models.FeedServer, error) {
	var server models.FeedServer
	var description, lastSyncStatus, lastError sql.NullString
	var lastSync, lastSyncAttempt sql.NullTime

	err := scan(
		&server.ID, &server.TenantID, &server.Name, &server.URL, &server.APIKeyEncrypted, &description,
		&server.VerifySSL, &server.Enabled, &server.SyncIntervalHours,
		&lastSync, &lastSyncAttempt, &lastSyncStatus, &lastError,
		&server.CreatedAt, &server.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrServerNotFound
		}
		return nil, fmt.Errorf("failed to scan feed server: %w", err)
	}

	server.Description = description.String
	server.LastSyncStatus = lastSyncStatus.String
	server.LastError = lastError.String
	if lastSync.Valid {
		server.LastSync = &lastSync.Time
	}
	if lastSyncAttempt.Valid {
		server.LastSyncAttempt = &lastSyncAttempt.Time
	}

	return &server, nil
}

// requireRowsAffected converts a zero-row update into notFound.
func requireRowsAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
