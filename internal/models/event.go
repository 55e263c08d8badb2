// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package models

import "time"

// Event is a reconciled external threat-intelligence event.
//
// Identity: ExternalUUID is globally unique across the whole system;
// (ExternalID, ServerID) is unique within one feed server. Both are assigned
// by the remote source and never change, which is what makes reconciliation
// idempotent.
//
// AlertID and IncidentID are locally owned back-references set by the
// conversion engine. They are never overwritten by reconciliation and never
// cleared: both conversions are one-way, at-most-once transitions.
type Event struct {
	ID           string `json:"id"`
	ServerID     string `json:"server_id"`
	TenantID     string `json:"tenant_id"`
	ExternalID   int64  `json:"external_id"`
	ExternalUUID string `json:"external_uuid"`

	Title        string      `json:"title"`
	Date         string      `json:"date"`
	ThreatLevel  ThreatLevel `json:"threat_level"`
	Analysis     int         `json:"analysis"`
	Distribution int         `json:"distribution"`
	Published    bool        `json:"published"`
	Tags         []string    `json:"tags"`
	OrgName      string      `json:"org_name,omitempty"`
	OrgcName     string      `json:"orgc_name,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Raw          string      `json:"-"`

	AlertID    *string `json:"alert_id,omitempty"`
	IncidentID *string `json:"incident_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attribute is a reconciled external attribute scoped to one Event.
// ExternalUUID is globally unique.
type Attribute struct {
	ID           string `json:"id"`
	EventID      string `json:"event_id"`
	TenantID     string `json:"tenant_id"`
	ExternalID   int64  `json:"external_id"`
	ExternalUUID string `json:"external_uuid"`

	Type         string    `json:"type"`
	Category     string    `json:"category"`
	Value        string    `json:"value"`
	ToIDS        bool      `json:"to_ids"`
	Distribution int       `json:"distribution"`
	Timestamp    time.Time `json:"timestamp"`
	Comment      string    `json:"comment,omitempty"`
	Tags         []string  `json:"tags"`
	Raw          string    `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Object is a reconciled external structured object scoped to one Event.
// Same upsert discipline as Attribute, keyed by its own ExternalUUID.
type Object struct {
	ID           string `json:"id"`
	EventID      string `json:"event_id"`
	TenantID     string `json:"tenant_id"`
	ExternalID   int64  `json:"external_id"`
	ExternalUUID string `json:"external_uuid"`

	Name            string    `json:"name"`
	MetaCategory    string    `json:"meta_category"`
	Description     string    `json:"description,omitempty"`
	TemplateUUID    string    `json:"template_uuid,omitempty"`
	TemplateVersion string    `json:"template_version,omitempty"`
	Distribution    int       `json:"distribution"`
	Timestamp       time.Time `json:"timestamp"`
	Comment         string    `json:"comment,omitempty"`
	Deleted         bool      `json:"deleted"`
	Raw             string    `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
