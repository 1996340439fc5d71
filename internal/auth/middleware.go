// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/geotraceapp/geotrace/internal/models"
)

type contextKey string

// ClaimsContextKey is where Authenticate stores the validated claims.
const ClaimsContextKey contextKey = "claims"

// ClaimsFromContext returns the claims set by Authenticate, or nil on an
// unauthenticated request.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsContextKey).(*Claims)
	return claims
}

// Middleware provides authentication and authorization for HTTP routes.
type Middleware struct {
	jwtManager *JWTManager
}

// NewMiddleware creates the auth middleware over a JWT manager.
func NewMiddleware(jwtManager *JWTManager) *Middleware {
	return &Middleware{jwtManager: jwtManager}
}

// Authenticate rejects requests without a valid bearer token and stores
// the token's claims in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r)
		if !ok {
			unauthorized(w, "Missing or malformed Authorization header")
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin allows only requests whose claims carry the admin role.
// Mount inside an Authenticate group.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			unauthorized(w, "Authentication required")
			return
		}
		if claims.Role != models.RoleAdmin {
			forbidden(w, "Admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractBearerToken pulls the token from the Authorization header.
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	respondAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func forbidden(w http.ResponseWriter, message string) {
	respondAuthError(w, http.StatusForbidden, "FORBIDDEN", message)
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: code, Message: message},
	})
}
