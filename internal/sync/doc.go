// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

// Package sync implements the threat-intelligence synchronization engine.
//
// Three layers, bottom up:
//
//   - Reconciler: idempotent upserts of raw feed records into local events,
//     attributes, and objects, keyed by their stable external UUIDs.
//   - Orchestrator: one full sync run for one feed server, fetching a page
//     of events and reconciling them with per-item failure tolerance.
//   - Scheduler: periodic selection of due servers and parallel dispatch of
//     orchestrator runs, with a per-server lease preventing double dispatch.
//
// Runs for different servers execute fully in parallel; within one run,
// each event is persisted before its child attributes and objects.
package sync
