// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package api

import (
	"net/http"
	"time"

	"github.com/geotraceapp/geotrace/internal/audit"
	"github.com/geotraceapp/geotrace/internal/cache"
	"github.com/geotraceapp/geotrace/internal/logging"
	"github.com/geotraceapp/geotrace/internal/validation"
)

// UpdateLocation handles POST /api/v1/location. The write path is cache
// only: the record lands in Redis and the sync queue, and the coordinator
// persists it to DuckDB on its own cadence.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID, _, ok := claimsUserID(w, r)
	if !ok {
		return
	}

	var req validation.StoreLocationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, verr)
		return
	}

	rec, err := h.store.Put(r.Context(), userID, req.ToRecord())
	if err != nil {
		if cache.IsUnavailable(err) {
			respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Location cache is unavailable", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store location", err)
		return
	}

	if err := h.bus.PublishLocationUpdated(r.Context(), rec); err != nil {
		logging.Warn().Err(err).Int64("user_id", userID).Msg("Location update publish failed")
	}

	respondData(w, http.StatusOK, rec, start)
}

// MyLocation handles GET /api/v1/location. A cache miss falls through to
// the durable store so a user whose TTL lapsed still sees their last
// synced position.
func (h *Handler) MyLocation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID, _, ok := claimsUserID(w, r)
	if !ok {
		return
	}

	rec, err := h.store.Get(r.Context(), userID)
	if err != nil && !cache.IsUnavailable(err) {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read location", err)
		return
	}
	if rec == nil {
		rec, err = h.db.GetUserLocation(r.Context(), userID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read location", err)
			return
		}
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No location on record", nil)
		return
	}

	respondData(w, http.StatusOK, rec, start)
}

// DeleteMyLocation handles DELETE /api/v1/location, removing the user's
// position from both the cache and the durable store. Idempotent.
func (h *Handler) DeleteMyLocation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID, _, ok := claimsUserID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), userID); err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Location cache is unavailable", err)
		return
	}
	if err := h.db.DeleteUserLocation(r.Context(), userID); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete durable location", err)
		return
	}

	h.auditEvent(r, &audit.Event{
		Type:    audit.EventTypeLocationDeleted,
		Outcome: audit.OutcomeSuccess,
		ActorID: userID,
	})

	respondData(w, http.StatusOK, map[string]interface{}{"deleted": true}, start)
}
