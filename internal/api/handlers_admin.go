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

	"github.com/geotraceapp/geotrace/internal/audit"
	"github.com/geotraceapp/geotrace/internal/models"
)

// ListActiveLocations handles GET /api/v1/admin/locations/active. Results
// are newest first; limit and offset paginate, with limit clamped to the
// configured maximum.
func (h *Handler) ListActiveLocations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	actorID, claims, ok := claimsUserID(w, r)
	if !ok {
		return
	}

	limit := getIntParam(r, "limit", h.cfg.API.DefaultActiveLimit)
	if limit <= 0 {
		limit = h.cfg.API.DefaultActiveLimit
	}
	if limit > h.cfg.API.MaxActiveLimit {
		limit = h.cfg.API.MaxActiveLimit
	}
	offset := getIntParam(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	active, err := h.store.ListActive(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Location cache is unavailable", err)
		return
	}
	total, err := h.store.CountActive(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Location cache is unavailable", err)
		return
	}

	ids := make([]int64, len(active))
	for i, u := range active {
		ids[i] = u.UserID
	}
	recs, err := h.store.GetMany(r.Context(), ids)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Location cache is unavailable", err)
		return
	}

	// Preserve the index ordering; a user can drop out between the index
	// read and the bulk fetch when their record expires in the gap.
	locations := make([]*models.LocationRecord, 0, len(active))
	for _, u := range active {
		if rec, found := recs[u.UserID]; found {
			locations = append(locations, rec)
		}
	}

	h.auditEvent(r, &audit.Event{
		Type:      audit.EventTypeLocationList,
		Outcome:   audit.OutcomeSuccess,
		ActorID:   actorID,
		ActorRole: claims.Role,
	})

	respondData(w, http.StatusOK, &models.ActiveLocationsResponse{
		Locations:        locations,
		TotalActiveUsers: total,
		Showing:          len(locations),
	}, start)
}

// AdminUserLocation handles GET /api/v1/admin/locations/{userID}, reading
// any user's latest position with the same cache-then-durable fallback as
// the self-serve endpoint.
func (h *Handler) AdminUserLocation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	actorID, claims, ok := claimsUserID(w, r)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "userID must be a positive integer", nil)
		return
	}

	rec, err := h.store.Get(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Location cache is unavailable", err)
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
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No location on record for user", nil)
		return
	}

	h.auditEvent(r, &audit.Event{
		Type:         audit.EventTypeLocationRead,
		Outcome:      audit.OutcomeSuccess,
		ActorID:      actorID,
		ActorRole:    claims.Role,
		TargetUserID: &userID,
	})

	respondData(w, http.StatusOK, rec, start)
}

// AdminAuditLog handles GET /api/v1/admin/audit, returning the newest
// audit events first.
func (h *Handler) AdminAuditLog(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	limit := getIntParam(r, "limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	events, err := h.auditor.ListRecent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read audit log", err)
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}

	respondData(w, http.StatusOK, events, start)
}

// AdminStats handles GET /api/v1/admin/stats.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	active, err := h.store.CountActive(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Location cache is unavailable", err)
		return
	}
	pending, err := h.store.PendingSyncCount(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Location cache is unavailable", err)
		return
	}

	respondData(w, http.StatusOK, &models.TrackingStatsResponse{
		ActiveUsers:   active,
		PendingSync:   pending,
		LocationTTLs:  int(h.cfg.GPS.LocationTTL.Seconds()),
		SyncIntervalS: int(h.cfg.GPS.SyncInterval.Seconds()),
	}, start)
}
