// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/castellan-io/castellan/internal/config"
)

// Router builds the HTTP handler tree.
type Router struct {
	handler *Handler
	cfg     *config.SecurityConfig
}

// NewRouter creates a router around the given handler.
func NewRouter(handler *Handler, cfg *config.SecurityConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// Setup wires all routes and middleware.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogging)

	r.Get("/healthz", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if router.cfg.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(router.cfg.RateLimitReqs, router.cfg.RateLimitWindow))
		}

		r.Route("/servers", func(r chi.Router) {
			r.Get("/", router.handler.ListServers)
			r.Post("/", router.handler.CreateServer)
			r.Get("/{id}", router.handler.GetServer)
			r.Put("/{id}", router.handler.UpdateServer)
			r.Delete("/{id}", router.handler.DeleteServer)
			r.Post("/{id}/sync", router.handler.SyncServer)
			r.Post("/{id}/test", router.handler.TestServer)
		})

		r.Post("/sync/schedule", router.handler.ScheduleSyncs)

		r.Route("/events", func(r chi.Router) {
			r.Get("/{id}", router.handler.GetEvent)
			r.Post("/{id}/convert/alert", router.handler.ConvertToAlert)
			r.Post("/{id}/convert/incident", router.handler.ConvertToIncident)
		})
	})

	return r
}
