// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package api

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/geotraceapp/geotrace/internal/audit"
	"github.com/geotraceapp/geotrace/internal/auth"
	"github.com/geotraceapp/geotrace/internal/cache"
	"github.com/geotraceapp/geotrace/internal/config"
	"github.com/geotraceapp/geotrace/internal/database"
	"github.com/geotraceapp/geotrace/internal/events"
	"github.com/geotraceapp/geotrace/internal/logging"
	"github.com/geotraceapp/geotrace/internal/websocket"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cfg     *config.Config
	store   *cache.Store
	db      *database.DB
	bus     *events.Bus
	hub     *websocket.Hub
	jwt     *auth.JWTManager
	auditor *audit.Recorder
}

// NewHandler creates a handler with the given dependencies. The auditor
// may be nil; auditing then becomes a no-op.
func NewHandler(cfg *config.Config, store *cache.Store, db *database.DB, bus *events.Bus, hub *websocket.Hub, jwt *auth.JWTManager, auditor *audit.Recorder) *Handler {
	return &Handler{
		cfg:     cfg,
		store:   store,
		db:      db,
		bus:     bus,
		hub:     hub,
		jwt:     jwt,
		auditor: auditor,
	}
}

// auditEvent fills request-derived fields and queues the event.
func (h *Handler) auditEvent(r *http.Request, event *audit.Event) {
	event.SourceIP = r.RemoteAddr
	event.RequestID = logging.RequestIDFromContext(r.Context())
	h.auditor.Record(event)
}

// Health handles GET /api/v1/health. It reports degraded with a 503 when
// either backing store is unreachable; the cache is checked first because
// every write path depends on it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "healthy"
	httpStatus := http.StatusOK
	checks := map[string]string{
		"cache":    "ok",
		"database": "ok",
	}

	if err := h.store.Ping(r.Context()); err != nil {
		checks["cache"] = err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	if err := h.db.Ping(r.Context()); err != nil {
		checks["database"] = err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	respondData(w, httpStatus, map[string]interface{}{
		"status":  status,
		"checks":  checks,
		"clients": h.hub.GetClientCount(),
	}, start)
}

// WebSocket handles GET /api/v1/ws, upgrading the connection and attaching
// the client to the broadcast hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	client.Start()

	logging.Debug().
		Uint64("client_id", client.ID()).
		Str("remote", sanitizeLogValue(r.RemoteAddr)).
		Msg("WebSocket client connected")
}

func (h *Handler) getUpgrader() gorillaws.Upgrader {
	return gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkWebSocketOrigin,
	}
}

// checkWebSocketOrigin validates the Origin header against the configured
// CORS allowlist. Requests without an Origin header are rejected; browsers
// always send one, so an empty Origin is a non-browser client that should
// use the REST API instead.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket origin rejected")
	return false
}

// claimsUserID resolves the authenticated user from the request context.
// Returns false after writing the error response when the claims are
// missing or malformed, which only happens if the auth middleware was
// skipped on the route.
func claimsUserID(w http.ResponseWriter, r *http.Request) (int64, *auth.Claims, bool) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return 0, nil, false
	}
	userID, err := claims.UserID()
	if err != nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token subject", err)
		return 0, nil, false
	}
	return userID, claims, true
}
