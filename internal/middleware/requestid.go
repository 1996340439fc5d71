// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

// Package middleware provides HTTP middleware shared by all route groups:
// request id propagation and Prometheus request instrumentation.
package middleware

import (
	"net/http"

	"github.com/geotraceapp/geotrace/internal/logging"
)

// RequestID tags each request with an id, reusing one supplied by an
// upstream proxy via X-Request-ID. The id rides the request context so
// every log line of the request carries it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
