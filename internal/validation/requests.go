// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package validation

import (
	"time"

	"github.com/geotraceapp/geotrace/internal/models"
)

// StoreLocationRequest is the body of a position update. Coordinates use
// pointers so a literal 0 (equator, prime meridian) stays distinguishable
// from an omitted field.
type StoreLocationRequest struct {
	Latitude   *float64 `json:"latitude" validate:"required,latitude"`
	Longitude  *float64 `json:"longitude" validate:"required,longitude"`
	Altitude   *float64 `json:"altitude,omitempty"`
	Accuracy   *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Speed      *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Heading    *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lte=360"`
	RecordedAt string   `json:"recorded_at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// ToRecord converts a validated request to a location record. Call only
// after ValidateStruct passed; RecordedAt is known parseable then.
func (r *StoreLocationRequest) ToRecord() *models.LocationRecord {
	rec := &models.LocationRecord{
		Latitude:  *r.Latitude,
		Longitude: *r.Longitude,
		Altitude:  r.Altitude,
		Accuracy:  r.Accuracy,
		Speed:     r.Speed,
		Heading:   r.Heading,
	}
	if r.RecordedAt != "" {
		if t, err := time.Parse(time.RFC3339, r.RecordedAt); err == nil {
			rec.RecordedAt = t.UTC()
		}
	}
	return rec
}

// RegisterRequest is the body of an account registration.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest is the body of a login attempt.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
