// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geotraceapp/geotrace/internal/auth"
	"github.com/geotraceapp/geotrace/internal/middleware"
)

// NewRouter builds the HTTP route tree.
//
// Route groups, each with its own rate-limit budget:
//   - /metrics and /api/v1/health: unauthenticated, generous limits
//   - /api/v1/auth: unauthenticated, tight per-IP limits against
//     credential stuffing
//   - /api/v1: authenticated; location writes additionally rate limited
//     per user so one chatty device cannot starve the cache
//   - /api/v1/admin: authenticated plus admin role
func NewRouter(h *Handler, authMw *auth.Middleware) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"ETag", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(1000, time.Minute))
			r.Get("/health", h.Health)
		})

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(20, time.Minute))
			r.Post("/auth/register", h.Register)
			r.Post("/auth/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(h.cfg.Security.RateLimitReqs, h.cfg.Security.RateLimitWindow))
			r.Use(middleware.PrometheusMetrics)
			r.Use(authMw.Authenticate)

			r.Get("/auth/me", h.Me)

			r.Group(func(r chi.Router) {
				r.Use(perUserLimit(h.cfg.GPS.RateLimitUpdates, h.cfg.GPS.RateLimitWindow))
				r.Post("/location", h.UpdateLocation)
			})
			r.Get("/location", h.MyLocation)
			r.Delete("/location", h.DeleteMyLocation)

			r.Get("/ws", h.WebSocket)

			r.Group(func(r chi.Router) {
				r.Use(authMw.RequireAdmin)
				r.Get("/admin/locations/active", h.ListActiveLocations)
				r.Get("/admin/locations/{userID}", h.AdminUserLocation)
				r.Get("/admin/stats", h.AdminStats)
				r.Get("/admin/audit", h.AdminAuditLog)
			})
		})
	})

	return r
}

// perUserLimit rate limits by authenticated user identity rather than IP,
// so NATed fleets don't share a budget and one device can't consume it.
func perUserLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			claims := auth.ClaimsFromContext(r.Context())
			if claims == nil {
				return httprate.KeyByIP(r)
			}
			userID, err := claims.UserID()
			if err != nil {
				return httprate.KeyByIP(r)
			}
			return strconv.FormatInt(userID, 10), nil
		}),
	)
}
