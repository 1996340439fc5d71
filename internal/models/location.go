// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package models

import (
	"time"
)

// LocationRecord is the latest known position for a single user.
//
// Exactly one live record exists per user in the cache at any time; a new
// write for the same user fully replaces the prior record. Replacement is
// last-write-wins by arrival order at the store, NOT by RecordedAt - a stale
// client retry can overwrite a newer fix. That tradeoff keeps the write path
// to a single pipelined round trip.
//
// Optional fields are pointers so that "not reported" survives the full
// round trip (cache hash -> JSON -> DECIMAL NULL column) as null, never zero.
type LocationRecord struct {
	UserID     int64     `json:"user_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Altitude   *float64  `json:"altitude"`    // meters
	Accuracy   *float64  `json:"accuracy"`    // meters, >= 0
	Speed      *float64  `json:"speed"`       // m/s, >= 0
	Heading    *float64  `json:"heading"`     // degrees, [0, 360]
	RecordedAt time.Time `json:"recorded_at"` // device-reported fix time
	UpdatedAt  time.Time `json:"updated_at"`  // ingestion time
}

// ActiveUser is one entry of the recency-ordered active index.
type ActiveUser struct {
	UserID     int64     `json:"user_id"`
	LastUpdate time.Time `json:"last_update"`
}

// SyncStats aggregates the outcome of one sync cycle.
//
// Processed counts records drained from the queue, Synced the rows that were
// durably upserted, Errors the rows that failed and remain queued, and
// Cleaned the stale active-index entries pruned after the durable phase.
type SyncStats struct {
	Processed int `json:"processed"`
	Synced    int `json:"synced"`
	Errors    int `json:"errors"`
	Cleaned   int `json:"cleaned"`
}

// User is an account that can authenticate and report locations.
// Role is either "user" or "admin"; admins may read other users' positions.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
