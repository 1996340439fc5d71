// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

// Package audit records security-relevant events: authentication attempts
// and any access to another user's position. Position data is personal
// data; the audit trail answers "who looked at whom, and when".
package audit

import "time"

// EventType categorizes audit events.
type EventType string

const (
	// Authentication events
	EventTypeAuthSuccess EventType = "auth.success"
	EventTypeAuthFailure EventType = "auth.failure"
	EventTypeUserCreated EventType = "user.created"

	// Location data access events
	EventTypeLocationRead    EventType = "location.read"
	EventTypeLocationList    EventType = "location.list"
	EventTypeLocationDeleted EventType = "location.deleted"
)

// Outcome indicates whether an action succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Outcome   Outcome   `json:"outcome"`

	// ActorID is the authenticated user performing the action, 0 for
	// unauthenticated attempts (failed logins).
	ActorID   int64  `json:"actor_id"`
	ActorRole string `json:"actor_role,omitempty"`

	// TargetUserID is set when the action concerns another user's data.
	TargetUserID *int64 `json:"target_user_id,omitempty"`

	SourceIP    string `json:"source_ip,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Description string `json:"description,omitempty"`
}
