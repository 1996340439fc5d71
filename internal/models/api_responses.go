// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package models

import (
	"time"
)

// APIResponse is the standardized envelope used by all HTTP endpoints.
//
// Status field values:
//   - "success": Request completed successfully, see Data field
//   - "error": Request failed, see Error field for details
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": {"user_id": 42, "latitude": 37.7, ...},
//	  "metadata": {"timestamp": "2026-08-30T12:00:00Z", "query_time_ms": 1}
//	}
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {"code": "VALIDATION_ERROR", "message": "Latitude must be between -90 and 90"},
//	  "metadata": {"timestamp": "2026-08-30T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries per-response observability fields.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ActiveLocationsResponse is the admin bulk-read payload: every active
// user's latest position plus the total active cardinality (which can
// exceed len(Locations) when a limit was applied).
type ActiveLocationsResponse struct {
	Locations        []*LocationRecord `json:"locations"`
	TotalActiveUsers int64             `json:"total_active_users"`
	Showing          int               `json:"showing"`
}

// TrackingStatsResponse summarizes cache and sync health for operators.
type TrackingStatsResponse struct {
	ActiveUsers   int64 `json:"active_users"`
	PendingSync   int64 `json:"pending_sync"`
	LocationTTLs  int   `json:"location_ttl_seconds"`
	SyncIntervalS int   `json:"sync_interval_seconds"`
}

// AuthResponse is returned from login and register.
type AuthResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}
