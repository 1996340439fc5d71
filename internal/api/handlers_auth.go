// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/geotraceapp/geotrace/internal/audit"
	"github.com/geotraceapp/geotrace/internal/auth"
	"github.com/geotraceapp/geotrace/internal/database"
	"github.com/geotraceapp/geotrace/internal/logging"
	"github.com/geotraceapp/geotrace/internal/models"
	"github.com/geotraceapp/geotrace/internal/validation"
)

// Register handles POST /api/v1/auth/register. New accounts always get the
// user role; admins are promoted out of band.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req validation.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, verr)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process registration", err)
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Name, req.Email, hash, models.RoleUser)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			respondError(w, http.StatusConflict, "EMAIL_EXISTS", "An account with this email already exists", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create account", err)
		return
	}

	logging.Info().Int64("user_id", user.ID).Msg("User registered")
	h.auditEvent(r, &audit.Event{
		Type:    audit.EventTypeUserCreated,
		Outcome: audit.OutcomeSuccess,
		ActorID: user.ID,
	})
	h.respondWithToken(w, user, start)
}

// Login handles POST /api/v1/auth/login. Unknown email and bad password
// produce the same response so the endpoint cannot be used to enumerate
// accounts.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req validation.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, verr)
		return
	}

	user, err := h.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			h.auditEvent(r, &audit.Event{
				Type:        audit.EventTypeAuthFailure,
				Outcome:     audit.OutcomeFailure,
				Description: "login with unknown email",
			})
			respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to authenticate", err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.auditEvent(r, &audit.Event{
			Type:        audit.EventTypeAuthFailure,
			Outcome:     audit.OutcomeFailure,
			ActorID:     user.ID,
			Description: "login with wrong password",
		})
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}

	h.auditEvent(r, &audit.Event{
		Type:      audit.EventTypeAuthSuccess,
		Outcome:   audit.OutcomeSuccess,
		ActorID:   user.ID,
		ActorRole: user.Role,
	})
	h.respondWithToken(w, user, start)
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID, _, ok := claimsUserID(w, r)
	if !ok {
		return
	}

	user, err := h.db.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Account no longer exists", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load account", err)
		return
	}

	respondData(w, http.StatusOK, user, start)
}

func (h *Handler) respondWithToken(w http.ResponseWriter, user *models.User, start time.Time) {
	token, expiresAt, err := h.jwt.GenerateToken(user.ID, user.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token", err)
		return
	}
	respondData(w, http.StatusOK, &models.AuthResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		User:      user,
	}, start)
}
