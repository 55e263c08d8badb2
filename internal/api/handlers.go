// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/castellan-io/castellan/internal/config"
	"github.com/castellan-io/castellan/internal/convert"
	"github.com/castellan-io/castellan/internal/database"
	"github.com/castellan-io/castellan/internal/logging"
	"github.com/castellan-io/castellan/internal/models"
	syncengine "github.com/castellan-io/castellan/internal/sync"
)

// Handler holds the dependencies for all API endpoints.
type Handler struct {
	db           *database.DB
	orchestrator *syncengine.Orchestrator
	scheduler    *syncengine.Scheduler
	engine       *convert.Engine
	encryptor    *config.CredentialEncryptor
	syncDefaults syncengine.Options
	validate     *validator.Validate
}

// NewHandler creates the API handler.
func NewHandler(
	db *database.DB,
	orchestrator *syncengine.Orchestrator,
	scheduler *syncengine.Scheduler,
	engine *convert.Engine,
	encryptor *config.CredentialEncryptor,
	syncDefaults syncengine.Options,
) *Handler {
	return &Handler{
		db:           db,
		orchestrator: orchestrator,
		scheduler:    scheduler,
		engine:       engine,
		encryptor:    encryptor,
		syncDefaults: syncDefaults,
		validate:     validator.New(),
	}
}

// createServerRequest is the body for POST /servers.
type createServerRequest struct {
	TenantID          string `json:"tenant_id" validate:"required"`
	Name              string `json:"name" validate:"required,max=255"`
	URL               string `json:"url" validate:"required,url"`
	APIKey            string `json:"api_key" validate:"required"`
	Description       string `json:"description"`
	VerifySSL         *bool  `json:"verify_ssl"`
	Enabled           *bool  `json:"enabled"`
	SyncIntervalHours int    `json:"sync_interval_hours" validate:"gte=0"`
}

// updateServerRequest is the body for PUT /servers/{id}. APIKey is optional:
// empty keeps the stored key.
type updateServerRequest struct {
	Name              string `json:"name" validate:"required,max=255"`
	URL               string `json:"url" validate:"required,url"`
	APIKey            string `json:"api_key"`
	Description       string `json:"description"`
	VerifySSL         bool   `json:"verify_ssl"`
	Enabled           bool   `json:"enabled"`
	SyncIntervalHours int    `json:"sync_interval_hours" validate:"gte=1"`
}

// syncRequest is the optional body for POST /servers/{id}/sync.
type syncRequest struct {
	DaysBack  int `json:"days_back" validate:"gte=0,lte=365"`
	MaxEvents int `json:"max_events" validate:"gte=0,lte=100000"`
}

// connectionTestResult is the response for POST /servers/{id}/test. An
// unreachable server is a structured result, matching the sync endpoint.
type connectionTestResult struct {
	ServerID string `json:"server_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// CreateServer registers a new feed server. The API key is encrypted before
// it is stored.
func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req createServerRequest
	if !h.decode(rw, r, &req) {
		return
	}

	encrypted, err := h.encryptor.Encrypt(req.APIKey)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to encrypt API key")
		rw.InternalError("failed to encrypt API key")
		return
	}

	server := &models.FeedServer{
		TenantID:          req.TenantID,
		Name:              req.Name,
		URL:               req.URL,
		APIKeyEncrypted:   encrypted,
		Description:       req.Description,
		VerifySSL:         req.VerifySSL == nil || *req.VerifySSL,
		Enabled:           req.Enabled == nil || *req.Enabled,
		SyncIntervalHours: req.SyncIntervalHours,
	}
	if server.SyncIntervalHours == 0 {
		server.SyncIntervalHours = 24
	}

	if err := h.db.CreateFeedServer(r.Context(), server); err != nil {
		if errors.Is(err, database.ErrServerNameConflict) {
			rw.Conflict("a server with this name already exists for the tenant")
			return
		}
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, err.Error())
		return
	}

	rw.Created(server)
}

// GetServer returns one feed server.
func (h *Handler) GetServer(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	server, err := h.db.GetFeedServer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, database.ErrServerNotFound) {
			rw.NotFound("server not found")
			return
		}
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, err.Error())
		return
	}

	rw.Success(server)
}

// ListServers returns the enabled feed servers.
func (h *Handler) ListServers(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	servers, err := h.db.ListEnabledFeedServers(r.Context())
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, err.Error())
		return
	}

	rw.Success(servers)
}

// UpdateServer replaces a feed server's configuration.
func (h *Handler) UpdateServer(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req updateServerRequest
	if !h.decode(rw, r, &req) {
		return
	}

	server, err := h.db.GetFeedServer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, database.ErrServerNotFound) {
			rw.NotFound("server not found")
			return
		}
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, err.Error())
		return
	}

	server.Name = req.Name
	server.URL = req.URL
	server.Description = req.Description
	server.VerifySSL = req.VerifySSL
	server.Enabled = req.Enabled
	server.SyncIntervalHours = req.SyncIntervalHours
	if req.APIKey != "" {
		encrypted, err := h.encryptor.Encrypt(req.APIKey)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to encrypt API key")
			rw.InternalError("failed to encrypt API key")
			return
		}
		server.APIKeyEncrypted = encrypted
	}

	if err := h.db.UpdateFeedServer(r.Context(), server); err != nil {
		if errors.Is(err, database.ErrServerNameConflict) {
			rw.Conflict("a server with this name already exists for the tenant")
			return
		}
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, err.Error())
		return
	}

	rw.Success(server)
}

// DeleteServer removes a feed server.
func (h *Handler) DeleteServer(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.db.DeleteFeedServer(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, database.ErrServerNotFound) {
			rw.NotFound("server not found")
			return
		}
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, err.Error())
		return
	}

	rw.NoContent()
}

// SyncServer triggers a synchronous sync run for one server and returns the
// run result. A failed run is a structured result with HTTP 200, not an
// HTTP error; transport problems are reported inside the result.
func (h *Handler) SyncServer(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	opts := h.syncDefaults
	if r.ContentLength > 0 {
		var req syncRequest
		if !h.decode(rw, r, &req) {
			return
		}
		if req.DaysBack > 0 {
			opts.DaysBack = req.DaysBack
		}
		if req.MaxEvents > 0 {
			opts.MaxEvents = req.MaxEvents
		}
	}

	result := h.orchestrator.Run(r.Context(), chi.URLParam(r, "id"), opts)
	rw.Success(result)
}

// TestServer checks connectivity and credentials for one server against its
// live endpoint, without touching any sync state.
func (h *Handler) TestServer(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	serverID := chi.URLParam(r, "id")
	err := h.orchestrator.TestConnection(r.Context(), serverID)
	if errors.Is(err, database.ErrServerNotFound) {
		rw.NotFound("server not found")
		return
	}

	result := connectionTestResult{ServerID: serverID, Status: "ok"}
	if err != nil {
		result.Status = "failed"
		result.Error = err.Error()
	}
	rw.Success(result)
}

// ScheduleSyncs runs one scheduler pass and reports how many servers were
// dispatched.
func (h *Handler) ScheduleSyncs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	result, err := h.scheduler.ScheduleDueServers(r.Context())
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, err.Error())
		return
	}

	rw.Success(result)
}

// GetEvent returns one reconciled event.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	event, err := h.db.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, database.ErrEventNotFound) {
			rw.NotFound("event not found")
			return
		}
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, err.Error())
		return
	}

	rw.Success(event)
}

// ConvertToAlert converts an event into an alert.
func (h *Handler) ConvertToAlert(w http.ResponseWriter, r *http.Request) {
	h.convertEvent(w, r, h.engine.ToAlert)
}

// ConvertToIncident converts an event into an incident.
func (h *Handler) ConvertToIncident(w http.ResponseWriter, r *http.Request) {
	h.convertEvent(w, r, h.engine.ToIncident)
}

func (h *Handler) convertEvent(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, eventID string) convert.Result) {
	rw := NewResponseWriter(w, r)

	result := fn(r.Context(), chi.URLParam(r, "id"))
	if result.Status == models.ConversionFailed && result.Error == database.ErrEventNotFound.Error() {
		rw.NotFound("event not found")
		return
	}

	rw.Success(result)
}

// Health reports liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.db.Ping(r.Context()); err != nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeDatabaseError, "database unreachable")
		return
	}

	rw.Success(map[string]string{"status": "ok"})
}

// decode parses and validates a JSON request body, writing the error
// response itself on failure.
func (h *Handler) decode(rw *ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return false
	}
	return true
}
