// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package models

import "time"

// FeedServer is a configured remote threat-intelligence source.
// Each server belongs to one tenant; the API key is stored encrypted and
// decrypted only when a sync run builds its feed client.
type FeedServer struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	APIKeyEncrypted string `json:"-"`
	Description     string `json:"description,omitempty"`
	VerifySSL       bool   `json:"verify_ssl"`
	Enabled         bool   `json:"enabled"`

	// SyncIntervalHours controls how often the scheduler considers this
	// server due for a run.
	SyncIntervalHours int `json:"sync_interval_hours"`

	// LastSync is the start time of the last run that completed
	// successfully. LastSyncAttempt advances on every run, successful or
	// not, so a crashed run cannot silently delay the next attempt.
	LastSync        *time.Time `json:"last_sync,omitempty"`
	LastSyncAttempt *time.Time `json:"last_sync_attempt,omitempty"`
	LastSyncStatus  string     `json:"last_sync_status,omitempty"`
	LastError       string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Due reports whether the server should be scheduled for a sync run at the
// given instant: never synced, or the interval has elapsed since the last
// successful run.
func (s *FeedServer) Due(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.LastSync == nil {
		return true
	}
	return now.Sub(*s.LastSync) > time.Duration(s.SyncIntervalHours)*time.Hour
}
