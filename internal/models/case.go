// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package models

import "time"

// Alert is a native alert created from a reconciled event.
// (Source, SourceRef, TenantID) is unique: a second conversion of the same
// event turns into a detectable conflict instead of a duplicate alert.
type Alert struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Severity      Severity   `json:"severity"`
	Status        CaseStatus `json:"status"`
	Source        string     `json:"source"`
	SourceRef     string     `json:"source_ref"`
	Tags          []string   `json:"tags"`
	Raw           string     `json:"-"`
	ArtifactCount int        `json:"artifact_count"`
	Date          time.Time  `json:"date"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Incident is a native incident created from a reconciled event.
// Same (Source, SourceRef, TenantID) uniqueness discipline as Alert.
type Incident struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Severity    Severity   `json:"severity"`
	Status      CaseStatus `json:"status"`
	Source      string     `json:"source"`
	SourceRef   string     `json:"source_ref"`
	Raw         string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Observable is a native atomic indicator of compromise derived from an
// event attribute.
//
// Identity for deduplication purposes is (Type, Value, TenantID). The
// alert-conversion path get-or-creates against that key; the
// incident-conversion path deliberately does not deduplicate and links each
// created observable to its incident via IncidentID. See the convert package
// for why the asymmetry is preserved.
type Observable struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Type        ObservableType `json:"type"`
	Value       string         `json:"value"`
	TLP         string         `json:"tlp,omitempty"`
	IsIOC       bool           `json:"is_ioc"`
	Source      string         `json:"source,omitempty"`
	SourceRef   string         `json:"source_ref,omitempty"`
	Description string         `json:"description,omitempty"`
	IncidentID  *string        `json:"incident_id,omitempty"`
	FirstSeen   *time.Time     `json:"first_seen,omitempty"`
	LastSeen    *time.Time     `json:"last_seen,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
