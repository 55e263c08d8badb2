// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

// Package models defines the core data structures shared across Castellan.
//
// The package covers three groups of entities:
//
//   - Feed-side records: FeedServer (a configured remote threat-intelligence
//     source) and the reconciled Event/Attribute/Object graph keyed by stable
//     external identifiers.
//   - Case-side records: Alert, Incident, and Observable, the native entities
//     produced from reconciled events by the conversion engine.
//   - Pure-data mapping tables: threat-level to severity and attribute-type
//     to observable-type, referenced by both conversion paths so the two can
//     never drift apart.
//
// All structs are plain data with JSON tags; persistence lives in the
// database package and business rules live in sync and convert.
package models
