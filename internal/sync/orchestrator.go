// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/castellan-io/castellan/internal/database"
	"github.com/castellan-io/castellan/internal/feed"
	"github.com/castellan-io/castellan/internal/logging"
	"github.com/castellan-io/castellan/internal/metrics"
	"github.com/castellan-io/castellan/internal/models"
)

// Options bound one sync run.
type Options struct {
	// DaysBack is the lookback window for the remote search.
	DaysBack int

	// MaxEvents caps the fetched page size.
	MaxEvents int
}

// Stats aggregates per-kind reconciliation counts for one run.
type Stats struct {
	EventsImported     int `json:"events_imported"`
	EventsCreated      int `json:"events_created"`
	EventsUpdated      int `json:"events_updated"`
	EventsSkipped      int `json:"events_skipped"`
	AttributesImported int `json:"attributes_imported"`
	ObjectsImported    int `json:"objects_imported"`
}

// Result is the outcome of one sync run. A failed run is a structured
// result, not an error: Error carries the cause and Stats whatever was
// accumulated before the failure.
type Result struct {
	Status     models.SyncStatus `json:"status"`
	ServerID   string            `json:"server_id"`
	ServerName string            `json:"server_name,omitempty"`
	Stats      Stats             `json:"stats"`
	Error      string            `json:"error,omitempty"`
}

// ClientFactory builds a feed client for one server. Production wiring
// returns a circuit-breaker-wrapped feed.Client; tests substitute fakes.
type ClientFactory func(cfg feed.Config, serverName string) feed.Fetcher

// KeyDecryptor decrypts a stored feed API key. Implemented by
// config.CredentialEncryptor.
type KeyDecryptor interface {
	Decrypt(ciphertext string) (string, error)
}

// Orchestrator executes full sync runs, one server at a time.
//
// Failure semantics: a transport-level fetch failure fails the whole run;
// a malformed or unreconcilable individual record is logged, counted, and
// skipped, and the loop continues with the next record.
type Orchestrator struct {
	db        *database.DB
	decryptor KeyDecryptor
	clients   ClientFactory
	reconcile *Reconciler

	// fetchTimeout bounds the remote search call.
	fetchTimeout time.Duration
}

// NewOrchestrator creates an orchestrator. fetchTimeout <= 0 disables the
// per-fetch deadline.
func NewOrchestrator(db *database.DB, decryptor KeyDecryptor, clients ClientFactory, fetchTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		db:           db,
		decryptor:    decryptor,
		clients:      clients,
		reconcile:    NewReconciler(db),
		fetchTimeout: fetchTimeout,
	}
}

// Run synchronizes one feed server.
//
// The run marks a sync attempt on the server before any remote work, so a
// crashed run still shows up in last_sync_attempt; last_sync itself only
// advances, to the run's start time, when the run completes.
func (o *Orchestrator) Run(ctx context.Context, serverID string, opts Options) Result {
	start := time.Now()
	log := logging.Ctx(ctx)

	server, err := o.db.GetFeedServer(ctx, serverID)
	if err != nil {
		log.Error().Err(err).Str("server_id", serverID).Msg("Sync aborted: server lookup failed")
		return Result{Status: models.SyncFailed, ServerID: serverID, Error: err.Error()}
	}

	result := Result{Status: models.SyncCompleted, ServerID: server.ID, ServerName: server.Name}

	if err := o.db.MarkSyncAttempt(ctx, server.ID, start); err != nil {
		return o.failRun(ctx, result, start, fmt.Errorf("failed to mark sync attempt: %w", err))
	}

	apiKey, err := o.decryptor.Decrypt(server.APIKeyEncrypted)
	if err != nil {
		return o.failRun(ctx, result, start, fmt.Errorf("failed to decrypt API key: %w", err))
	}

	client := o.clients(feed.Config{
		BaseURL:   server.URL,
		APIKey:    apiKey,
		VerifySSL: server.VerifySSL,
	}, server.Name)

	since := start.AddDate(0, 0, -opts.DaysBack)
	log.Info().
		Str("server", server.Name).
		Time("since", since).
		Int("max_events", opts.MaxEvents).
		Msg("Starting sync run")

	fetchCtx := ctx
	if o.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, o.fetchTimeout)
		defer cancel()
	}

	rawEvents, err := client.SearchEvents(fetchCtx, since, opts.MaxEvents)
	if err != nil {
		metrics.SyncErrors.WithLabelValues("fetch").Inc()
		return o.failRun(ctx, result, start, fmt.Errorf("remote fetch failed: %w", err))
	}

	for i := range rawEvents {
		o.reconcileEvent(ctx, server, &rawEvents[i], &result.Stats)
	}

	if err := o.db.MarkSyncCompleted(ctx, server.ID, start); err != nil {
		return o.failRun(ctx, result, start, fmt.Errorf("failed to mark sync completed: %w", err))
	}

	metrics.RecordSyncRun(server.Name, start, false)
	log.Info().
		Str("server", server.Name).
		Int("events", result.Stats.EventsImported).
		Int("attributes", result.Stats.AttributesImported).
		Int("objects", result.Stats.ObjectsImported).
		Int("skipped", result.Stats.EventsSkipped).
		Dur("duration", time.Since(start)).
		Msg("Sync run completed")

	return result
}

// TestConnection verifies reachability and credentials for one server by
// pinging its version endpoint. GetFeedServer's sentinel passes through
// unwrapped so callers can distinguish an unknown server from a dead one.
func (o *Orchestrator) TestConnection(ctx context.Context, serverID string) error {
	server, err := o.db.GetFeedServer(ctx, serverID)
	if err != nil {
		return err
	}

	apiKey, err := o.decryptor.Decrypt(server.APIKeyEncrypted)
	if err != nil {
		return fmt.Errorf("failed to decrypt API key: %w", err)
	}

	client := o.clients(feed.Config{
		BaseURL:   server.URL,
		APIKey:    apiKey,
		VerifySSL: server.VerifySSL,
	}, server.Name)

	pingCtx := ctx
	if o.fetchTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, o.fetchTimeout)
		defer cancel()
	}
	return client.Ping(pingCtx)
}

// reconcileEvent upserts one raw event and its children. Failures are
// absorbed into the stats; the batch never aborts on a single record.
func (o *Orchestrator) reconcileEvent(ctx context.Context, server *models.FeedServer, raw *feed.RawEvent, stats *Stats) {
	log := logging.Ctx(ctx)

	event, created, err := o.reconcile.UpsertEvent(ctx, server, raw)
	if err != nil {
		stats.EventsSkipped++
		metrics.SyncRecords.WithLabelValues("event", "skipped").Inc()
		log.Warn().Err(err).Str("external_uuid", raw.UUID).Str("external_id", raw.ID).Msg("Skipping event")
		return
	}

	stats.EventsImported++
	if created {
		stats.EventsCreated++
		metrics.SyncRecords.WithLabelValues("event", "created").Inc()
	} else {
		stats.EventsUpdated++
		metrics.SyncRecords.WithLabelValues("event", "updated").Inc()
	}

	for i := range raw.Attributes {
		_, attrCreated, err := o.reconcile.UpsertAttribute(ctx, event, &raw.Attributes[i])
		if err != nil {
			metrics.SyncRecords.WithLabelValues("attribute", "skipped").Inc()
			log.Warn().Err(err).Str("event_uuid", raw.UUID).Str("attribute_uuid", raw.Attributes[i].UUID).Msg("Skipping attribute")
			continue
		}
		if attrCreated {
			stats.AttributesImported++
			metrics.SyncRecords.WithLabelValues("attribute", "created").Inc()
		} else {
			metrics.SyncRecords.WithLabelValues("attribute", "updated").Inc()
		}
	}

	for i := range raw.Objects {
		_, objCreated, err := o.reconcile.UpsertObject(ctx, event, &raw.Objects[i])
		if err != nil {
			metrics.SyncRecords.WithLabelValues("object", "skipped").Inc()
			log.Warn().Err(err).Str("event_uuid", raw.UUID).Str("object_uuid", raw.Objects[i].UUID).Msg("Skipping object")
			continue
		}
		if objCreated {
			stats.ObjectsImported++
			metrics.SyncRecords.WithLabelValues("object", "created").Inc()
		} else {
			metrics.SyncRecords.WithLabelValues("object", "updated").Inc()
		}
	}
}

// failRun finalizes a failed run: persists the failure on the server row,
// records metrics, and returns the structured result.
func (o *Orchestrator) failRun(ctx context.Context, result Result, start time.Time, cause error) Result {
	logging.Ctx(ctx).Error().Err(cause).Str("server_id", result.ServerID).Msg("Sync run failed")

	if err := o.db.MarkSyncFailed(ctx, result.ServerID, cause.Error()); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("server_id", result.ServerID).Msg("Failed to record sync failure")
	}

	metrics.RecordSyncRun(result.ServerName, start, true)

	result.Status = models.SyncFailed
	result.Error = cause.Error()
	return result
}
