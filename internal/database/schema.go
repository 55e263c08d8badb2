// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

/*
schema.go - Database Schema Management

Tables:
  - feed_servers: configured remote threat-intelligence sources
  - events / attributes / objects: the reconciled external record graph
  - alerts / incidents: native cases created by the conversion engine
  - observables: native indicators derived from attributes
  - alert_observables: alert-to-observable links with artifact counting

Uniqueness strategy:
  - events.external_uuid and (server_id, external_id) back reconciliation
    idempotency; attributes/objects are unique on external_uuid alone.
  - alerts/incidents are unique on (tenant_id, source, source_ref) so a
    concurrent second conversion of one event surfaces as a key conflict
    the engine remaps to already_converted.
  - observables carry NO uniqueness constraint: the alert path deduplicates
    by (tenant_id, obs_type, value) via explicit get-or-create, while the
    incident path intentionally inserts duplicates.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// tableCreationQueries returns the table creation SQL statements.
func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS feed_servers (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			api_key_encrypted TEXT NOT NULL,
			description TEXT,
			verify_ssl BOOLEAN NOT NULL DEFAULT true,
			enabled BOOLEAN NOT NULL DEFAULT true,
			sync_interval_hours INTEGER NOT NULL DEFAULT 24,
			last_sync TIMESTAMP,
			last_sync_attempt TIMESTAMP,
			last_sync_status TEXT,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (tenant_id, name)
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			external_id BIGINT NOT NULL,
			external_uuid TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			event_date TEXT,
			threat_level INTEGER NOT NULL DEFAULT 2,
			analysis INTEGER NOT NULL DEFAULT 0,
			distribution INTEGER NOT NULL DEFAULT 0,
			published BOOLEAN NOT NULL DEFAULT false,
			tags TEXT NOT NULL DEFAULT '[]',
			org_name TEXT,
			orgc_name TEXT,
			event_timestamp TIMESTAMP,
			raw TEXT NOT NULL DEFAULT '{}',
			alert_id TEXT,
			incident_id TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (server_id, external_id)
		)`,

		`CREATE TABLE IF NOT EXISTS attributes (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			external_id BIGINT NOT NULL,
			external_uuid TEXT NOT NULL UNIQUE,
			attr_type TEXT NOT NULL,
			category TEXT,
			value TEXT NOT NULL,
			to_ids BOOLEAN NOT NULL DEFAULT false,
			distribution INTEGER NOT NULL DEFAULT 0,
			attr_timestamp TIMESTAMP,
			comment TEXT,
			tags TEXT NOT NULL DEFAULT '[]',
			raw TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS objects (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			external_id BIGINT NOT NULL,
			external_uuid TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			meta_category TEXT,
			description TEXT,
			template_uuid TEXT,
			template_version TEXT,
			distribution INTEGER NOT NULL DEFAULT 0,
			obj_timestamp TIMESTAMP,
			comment TEXT,
			deleted BOOLEAN NOT NULL DEFAULT false,
			raw TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			severity TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'new',
			source TEXT NOT NULL,
			source_ref TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			raw TEXT NOT NULL DEFAULT '{}',
			artifact_count INTEGER NOT NULL DEFAULT 0,
			alert_date TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (tenant_id, source, source_ref)
		)`,

		`CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			severity TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'new',
			source TEXT NOT NULL,
			source_ref TEXT NOT NULL,
			raw TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (tenant_id, source, source_ref)
		)`,

		`CREATE TABLE IF NOT EXISTS observables (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			obs_type TEXT NOT NULL,
			value TEXT NOT NULL,
			tlp TEXT,
			is_ioc BOOLEAN NOT NULL DEFAULT false,
			source TEXT,
			source_ref TEXT,
			description TEXT,
			incident_id TEXT,
			first_seen TIMESTAMP,
			last_seen TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS alert_observables (
			alert_id TEXT NOT NULL,
			observable_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (alert_id, observable_id)
		)`,
	}
}

// createIndexes creates indexes for common lookup patterns.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_feed_servers_tenant ON feed_servers (tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_feed_servers_enabled ON feed_servers (enabled)`,
		`CREATE INDEX IF NOT EXISTS idx_events_server ON events (server_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tenant ON events (tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (event_timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_attributes_event ON attributes (event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attributes_type ON attributes (attr_type)`,
		`CREATE INDEX IF NOT EXISTS idx_objects_event ON objects (event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_observables_key ON observables (tenant_id, obs_type, value)`,
		`CREATE INDEX IF NOT EXISTS idx_observables_incident ON observables (incident_id)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}
	return nil
}
