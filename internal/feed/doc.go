// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

// Package feed implements the HTTP client for MISP-compatible
// threat-intelligence servers.
//
// The wire format is the MISP REST search contract: events are fetched with
// POST /events/restSearch and arrive wrapped in a response envelope where
// numeric fields are string-typed and timestamps are epoch strings. The raw
// types in this package mirror that contract faithfully; translation into
// native models happens in the sync package's reconcilers.
//
// The client carries three resilience layers: a client-side rate limiter, a
// retry loop for HTTP 429, and a circuit breaker (see CircuitBreakerClient)
// that stops hammering an unhealthy server.
package feed
