// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serviciosqbit/qbitstream/internal/middleware"
)

// chiMiddleware adapts http.HandlerFunc middleware to chi's
// func(http.Handler) http.Handler so our middleware package works with
// r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Router wires handlers and middleware into the HTTP surface.
type Router struct {
	handler    *Handler
	middleware *Middleware
	adsEnabled bool
}

// NewRouter creates a router over the given handler set.
func NewRouter(handler *Handler, mw *Middleware, adsEnabled bool) *Router {
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	return &Router{
		handler:    handler,
		middleware: mw,
		adsEnabled: adsEnabled,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	// Liveness stays outside the rate limit so monitors never get 429s.
	r.Get("/api/v1/health", router.handler.Health)

	r.Route("/api/v1/servers", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Get("/", router.handler.Servers)
		r.Get("/detect", router.handler.DetectServer)
		r.Get("/health", router.handler.ServersHealth)
	})

	if router.adsEnabled {
		r.Route("/api/v1/ads", func(r chi.Router) {
			r.Use(router.middleware.RateLimit())
			r.Use(chiMiddleware(middleware.PrometheusMetrics))

			r.Get("/select", router.handler.SelectAd)
		})
	}

	r.Route("/api/v1/admin/servers", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Get("/", router.handler.AdminServers)
		r.Post("/", router.handler.UpsertServer)
		r.Put("/{id}/active", router.handler.SetServerActive)
	})

	// Prometheus scrape endpoint.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
