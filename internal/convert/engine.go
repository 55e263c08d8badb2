// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

// Package convert implements the conversion engine: the one-way,
// at-most-once transformation of a reconciled event into a native alert or
// incident plus derived observables.
//
// Both paths run inside a single transaction, so a conversion either fully
// commits or leaves no trace. The concurrent-conversion race is closed by
// the (tenant_id, source, source_ref) uniqueness on alerts and incidents: a
// second writer's insert surfaces as a key conflict that is remapped to the
// already_converted status instead of an error.
//
// Deliberate asymmetry: the alert path deduplicates observables by
// (type, value, tenant) via get-or-create, while the incident path always
// creates a fresh observable per mapped attribute and binds it to the
// incident. Whether incidents are meant to tolerate duplicate observables
// is an open product question; until it is answered the two paths must not
// be unified.
package convert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/castellan-io/castellan/internal/database"
	"github.com/castellan-io/castellan/internal/logging"
	"github.com/castellan-io/castellan/internal/metrics"
	"github.com/castellan-io/castellan/internal/models"
)

// Result is the outcome of one conversion call. AlreadyConverted is a
// distinct terminal status, not an error: it carries the existing case ID
// and guarantees no side effects occurred.
type Result struct {
	Status          models.ConversionStatus `json:"status"`
	EventID         string                  `json:"event_id,omitempty"`
	AlertID         string                  `json:"alert_id,omitempty"`
	IncidentID      string                  `json:"incident_id,omitempty"`
	ObservableCount int                     `json:"observable_count,omitempty"`
	Error           string                  `json:"error,omitempty"`
}

// Engine converts reconciled events into native cases.
type Engine struct {
	db *database.DB
}

// NewEngine creates a conversion engine backed by the given database.
func NewEngine(db *database.DB) *Engine {
	return &Engine{db: db}
}

// ToAlert converts an event into an alert with deduplicated observables.
//
// The fast path returns already_converted when the event's alert
// back-reference is set. The slow path runs the full conversion in one
// transaction; if a concurrent conversion wins the race, the resulting key
// conflict rolls this transaction back and the existing alert is reported
// as already_converted.
func (e *Engine) ToAlert(ctx context.Context, eventID string) Result {
	log := logging.Ctx(ctx)

	event, err := e.db.GetEvent(ctx, eventID)
	if err != nil {
		metrics.Conversions.WithLabelValues("alert", "failed").Inc()
		return Result{Status: models.ConversionFailed, EventID: eventID, Error: err.Error()}
	}

	if event.AlertID != nil {
		log.Info().Str("event_id", eventID).Str("alert_id", *event.AlertID).Msg("Event already converted to alert")
		metrics.Conversions.WithLabelValues("alert", "already_converted").Inc()
		return Result{Status: models.ConversionAlreadyConverted, EventID: eventID, AlertID: *event.AlertID}
	}

	attributes, err := e.db.ListAttributesByEvent(ctx, event.ID)
	if err != nil {
		metrics.Conversions.WithLabelValues("alert", "failed").Inc()
		return Result{Status: models.ConversionFailed, EventID: eventID, Error: err.Error()}
	}

	alert := &models.Alert{
		TenantID:    event.TenantID,
		Title:       event.Title,
		Description: caseDescription(event),
		Severity:    models.SeverityForThreatLevel(event.ThreatLevel),
		Status:      models.StatusNew,
		Source:      models.SourceFeed,
		SourceRef:   event.ExternalUUID,
		Tags:        event.Tags,
		Raw:         event.Raw,
		Date:        event.Timestamp,
	}

	var observableCount int
	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := database.CreateAlertTx(ctx, tx, alert); err != nil {
			return err
		}

		for i := range attributes {
			attr := &attributes[i]
			obsType, ok := models.ObservableTypeForAttribute(attr.Type)
			if !ok {
				continue
			}

			obs, err := database.GetObservableByKeyTx(ctx, tx, event.TenantID, obsType, attr.Value)
			if err != nil {
				return err
			}
			if obs == nil {
				obs = &models.Observable{
					TenantID:    event.TenantID,
					Type:        obsType,
					Value:       attr.Value,
					IsIOC:       attr.ToIDS,
					Source:      models.SourceFeed,
					Description: observableDescription(attr.Comment, event.Title),
				}
				if err := database.CreateObservableTx(ctx, tx, obs); err != nil {
					return err
				}
			}

			if err := database.LinkAlertObservableTx(ctx, tx, alert.ID, obs.ID); err != nil {
				return err
			}
		}

		if err := database.UpdateAlertArtifactCountTx(ctx, tx, alert.ID); err != nil {
			return err
		}
		if err := database.SetEventAlertTx(ctx, tx, event.ID, alert.ID); err != nil {
			return err
		}

		return tx.QueryRowContext(ctx,
			`SELECT artifact_count FROM alerts WHERE id = ?`, alert.ID,
		).Scan(&observableCount)
	})

	if errors.Is(err, database.ErrDuplicateKey) {
		return e.alreadyConvertedAlert(ctx, event)
	}
	if err != nil {
		log.Error().Err(err).Str("event_id", eventID).Msg("Alert conversion failed")
		metrics.Conversions.WithLabelValues("alert", "failed").Inc()
		return Result{Status: models.ConversionFailed, EventID: eventID, Error: err.Error()}
	}

	log.Info().
		Str("event_id", event.ID).
		Str("alert_id", alert.ID).
		Int("observables", observableCount).
		Msg("Event converted to alert")
	metrics.Conversions.WithLabelValues("alert", "completed").Inc()

	return Result{
		Status:          models.ConversionCompleted,
		EventID:         event.ID,
		AlertID:         alert.ID,
		ObservableCount: observableCount,
	}
}

// ToIncident converts an event into an incident.
//
// Unlike the alert path, every mapped attribute produces a fresh observable
// bound to the incident, duplicates included. See the package comment
// before changing this.
func (e *Engine) ToIncident(ctx context.Context, eventID string) Result {
	log := logging.Ctx(ctx)

	event, err := e.db.GetEvent(ctx, eventID)
	if err != nil {
		metrics.Conversions.WithLabelValues("incident", "failed").Inc()
		return Result{Status: models.ConversionFailed, EventID: eventID, Error: err.Error()}
	}

	if event.IncidentID != nil {
		log.Info().Str("event_id", eventID).Str("incident_id", *event.IncidentID).Msg("Event already converted to incident")
		metrics.Conversions.WithLabelValues("incident", "already_converted").Inc()
		return Result{Status: models.ConversionAlreadyConverted, EventID: eventID, IncidentID: *event.IncidentID}
	}

	attributes, err := e.db.ListAttributesByEvent(ctx, event.ID)
	if err != nil {
		metrics.Conversions.WithLabelValues("incident", "failed").Inc()
		return Result{Status: models.ConversionFailed, EventID: eventID, Error: err.Error()}
	}

	incident := &models.Incident{
		TenantID:    event.TenantID,
		Title:       fmt.Sprintf("MISP: %s", event.Title),
		Description: caseDescription(event),
		Severity:    models.SeverityForThreatLevel(event.ThreatLevel),
		Status:      models.StatusNew,
		Source:      models.SourceFeed,
		SourceRef:   event.ExternalUUID,
		Raw:         event.Raw,
	}

	var observableCount int
	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := database.CreateIncidentTx(ctx, tx, incident); err != nil {
			return err
		}

		for i := range attributes {
			attr := &attributes[i]
			obsType, ok := models.ObservableTypeForAttribute(attr.Type)
			if !ok {
				continue
			}

			ts := attr.Timestamp
			obs := &models.Observable{
				TenantID:    event.TenantID,
				Type:        obsType,
				Value:       attr.Value,
				TLP:         "AMBER",
				IsIOC:       attr.ToIDS,
				Source:      models.SourceFeed,
				SourceRef:   attr.ExternalUUID,
				Description: observableDescription(attr.Comment, event.Title),
				IncidentID:  &incident.ID,
				FirstSeen:   &ts,
				LastSeen:    &ts,
			}
			if err := database.CreateObservableTx(ctx, tx, obs); err != nil {
				return err
			}
			observableCount++
		}

		return database.SetEventIncidentTx(ctx, tx, event.ID, incident.ID)
	})

	if errors.Is(err, database.ErrDuplicateKey) {
		return e.alreadyConvertedIncident(ctx, event)
	}
	if err != nil {
		log.Error().Err(err).Str("event_id", eventID).Msg("Incident conversion failed")
		metrics.Conversions.WithLabelValues("incident", "failed").Inc()
		return Result{Status: models.ConversionFailed, EventID: eventID, Error: err.Error()}
	}

	log.Info().
		Str("event_id", event.ID).
		Str("incident_id", incident.ID).
		Int("observables", observableCount).
		Msg("Event converted to incident")
	metrics.Conversions.WithLabelValues("incident", "completed").Inc()

	return Result{
		Status:          models.ConversionCompleted,
		EventID:         event.ID,
		IncidentID:      incident.ID,
		ObservableCount: observableCount,
	}
}

// alreadyConvertedAlert reports a lost conversion race by looking up the
// winner's alert.
func (e *Engine) alreadyConvertedAlert(ctx context.Context, event *models.Event) Result {
	metrics.Conversions.WithLabelValues("alert", "already_converted").Inc()

	existing, err := e.db.GetAlertBySourceRef(ctx, event.TenantID, models.SourceFeed, event.ExternalUUID)
	if err != nil || existing == nil {
		return Result{Status: models.ConversionAlreadyConverted, EventID: event.ID}
	}
	return Result{Status: models.ConversionAlreadyConverted, EventID: event.ID, AlertID: existing.ID}
}

// alreadyConvertedIncident is the incident-path counterpart.
func (e *Engine) alreadyConvertedIncident(ctx context.Context, event *models.Event) Result {
	metrics.Conversions.WithLabelValues("incident", "already_converted").Inc()

	existing, err := e.db.GetIncidentBySourceRef(ctx, event.TenantID, models.SourceFeed, event.ExternalUUID)
	if err != nil || existing == nil {
		return Result{Status: models.ConversionAlreadyConverted, EventID: event.ID}
	}
	return Result{Status: models.ConversionAlreadyConverted, EventID: event.ID, IncidentID: existing.ID}
}

// caseDescription renders the shared provenance description for both case
// kinds.
func caseDescription(event *models.Event) string {
	return fmt.Sprintf("Created from threat intelligence event: %s\nOrganization: %s", event.Title, event.OrgName)
}

// observableDescription prefers the attribute's own comment.
func observableDescription(comment, eventTitle string) string {
	if comment != "" {
		return comment
	}
	return fmt.Sprintf("From threat intelligence event: %s", eventTitle)
}
