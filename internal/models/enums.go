// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package models

// ThreatLevel is the remote source's risk rating for an event.
// Values follow the MISP threat_level_id convention.
type ThreatLevel int

// Threat levels as reported by the remote feed.
const (
	ThreatLevelHigh      ThreatLevel = 1
	ThreatLevelMedium    ThreatLevel = 2
	ThreatLevelLow       ThreatLevel = 3
	ThreatLevelUndefined ThreatLevel = 4
)

// Severity is the platform's native severity scale for alerts and incidents.
type Severity string

// Native severities, ordered from most to least urgent.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// CaseStatus is the lifecycle status of an alert or incident.
// The conversion engine only ever creates cases in StatusNew; the rest of
// the lifecycle belongs to the case-management subsystem.
type CaseStatus string

// Case statuses.
const (
	StatusNew        CaseStatus = "new"
	StatusInProgress CaseStatus = "in_progress"
	StatusClosed     CaseStatus = "closed"
)

// ObservableType is the native type of an atomic indicator of compromise.
type ObservableType string

// Observable types produced by the attribute-type mapping table.
const (
	ObservableIP         ObservableType = "ip"
	ObservableDomain     ObservableType = "domain"
	ObservableHostname   ObservableType = "hostname"
	ObservableURL        ObservableType = "url"
	ObservableHashMD5    ObservableType = "hash-md5"
	ObservableHashSHA1   ObservableType = "hash-sha1"
	ObservableHashSHA256 ObservableType = "hash-sha256"
	ObservableFilename   ObservableType = "filename"
	ObservableEmail      ObservableType = "email"
)

// SyncStatus is the terminal status of one synchronization run.
type SyncStatus string

// Sync run statuses.
const (
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// ConversionStatus is the terminal status of one conversion call.
type ConversionStatus string

// Conversion statuses. AlreadyConverted is not an error: it reports that a
// previous call already produced the case and no side effects occurred.
const (
	ConversionCompleted        ConversionStatus = "completed"
	ConversionAlreadyConverted ConversionStatus = "already_converted"
	ConversionFailed           ConversionStatus = "failed"
)

// SourceFeed is the source tag stamped on cases and observables created
// from synchronized feed events. Paired with the event's external UUID as
// source_ref it forms the uniqueness key that makes conversion one-shot.
const SourceFeed = "misp"
