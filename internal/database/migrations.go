// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

// Versioned schema migration support.
//
// Applied migrations are tracked in schema_migrations so each one runs
// exactly once. The initial schema lives in schema.go as a single source of
// truth; migrations cover incremental changes after databases with data
// exist in the wild. Migrations are append-only - never modify or remove an
// existing entry once released.

package database

import (
	"fmt"
	"time"

	"github.com/castellan-io/castellan/internal/logging"
)

// Migration represents a versioned database migration.
type Migration struct {
	Version     int    // Unique version number, monotonically increasing
	Name        string // Short machine-friendly name
	Description string // What this migration does
	SQL         string // Statement to execute
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// migrations returns all versioned migrations in order.
func migrations() []Migration {
	return []Migration{
		// Incremental schema changes will be added here, starting from
		// version 1, once released databases need to be migrated in place.
	}
}

// runMigrations applies all pending migrations in version order.
func (db *DB) runMigrations() error {
	ctx, cancel := schemaContext()
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied, err := db.appliedMigrationVersions()
	if err != nil {
		return err
	}

	for _, m := range migrations() {
		if applied[m.Version] {
			continue
		}

		start := time.Now()
		if _, err := db.conn.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		if _, err := db.conn.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, description) VALUES (?, ?, ?)`,
			m.Version, m.Name, m.Description,
		); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		logging.Info().
			Int("version", m.Version).
			Str("name", m.Name).
			Dur("duration", time.Since(start)).
			Msg("Applied migration")
	}

	return nil
}

// appliedMigrationVersions returns the set of already-applied versions.
func (db *DB) appliedMigrationVersions() (map[int]bool, error) {
	ctx, cancel := schemaContext()
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}

	return applied, nil
}
