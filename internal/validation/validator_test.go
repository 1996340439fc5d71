// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package validation

import (
	"strings"
	"testing"
	"time"
)

func f(v float64) *float64 { return &v }

func validLocation() *StoreLocationRequest {
	return &StoreLocationRequest{
		Latitude:  f(40.712776),
		Longitude: f(-74.005974),
	}
}

func TestStoreLocationRequestValid(t *testing.T) {
	req := validLocation()
	req.Accuracy = f(5)
	req.Speed = f(0)
	req.Heading = f(360)
	req.RecordedAt = "2026-08-30T10:00:00Z"

	if err := ValidateStruct(req); err != nil {
		t.Errorf("unexpected validation failure: %v", err)
	}
}

func TestStoreLocationRequestZeroCoordinatesValid(t *testing.T) {
	// Null Island is a legal position; zero must not read as missing.
	req := &StoreLocationRequest{Latitude: f(0), Longitude: f(0)}
	if err := ValidateStruct(req); err != nil {
		t.Errorf("unexpected validation failure for (0, 0): %v", err)
	}
}

func TestStoreLocationRequestInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StoreLocationRequest)
		field  string
	}{
		{"missing latitude", func(r *StoreLocationRequest) { r.Latitude = nil }, "latitude"},
		{"missing longitude", func(r *StoreLocationRequest) { r.Longitude = nil }, "longitude"},
		{"latitude too high", func(r *StoreLocationRequest) { r.Latitude = f(90.1) }, "latitude"},
		{"latitude too low", func(r *StoreLocationRequest) { r.Latitude = f(-90.1) }, "latitude"},
		{"longitude too high", func(r *StoreLocationRequest) { r.Longitude = f(180.1) }, "longitude"},
		{"longitude too low", func(r *StoreLocationRequest) { r.Longitude = f(-180.1) }, "longitude"},
		{"negative accuracy", func(r *StoreLocationRequest) { r.Accuracy = f(-1) }, "accuracy"},
		{"negative speed", func(r *StoreLocationRequest) { r.Speed = f(-0.1) }, "speed"},
		{"heading over 360", func(r *StoreLocationRequest) { r.Heading = f(360.5) }, "heading"},
		{"negative heading", func(r *StoreLocationRequest) { r.Heading = f(-1) }, "heading"},
		{"bad recorded_at", func(r *StoreLocationRequest) { r.RecordedAt = "yesterday" }, "recordedat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validLocation()
			tt.mutate(req)

			err := ValidateStruct(req)
			if err == nil {
				t.Fatal("expected validation failure")
			}
			if _, ok := err.Details()[tt.field]; !ok {
				t.Errorf("details %v missing field %q", err.Details(), tt.field)
			}
		})
	}
}

func TestStoreLocationRequestMultipleErrors(t *testing.T) {
	req := &StoreLocationRequest{Latitude: f(91), Longitude: f(181), Heading: f(400)}

	err := ValidateStruct(req)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if len(err.Errors()) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(err.Errors()), err)
	}
	if !strings.Contains(err.Error(), ";") {
		t.Errorf("combined message %q should join all failures", err.Error())
	}
}

func TestToRecord(t *testing.T) {
	req := validLocation()
	req.Accuracy = f(12.5)
	req.RecordedAt = "2026-08-30T10:30:00Z"

	rec := req.ToRecord()
	if rec.Latitude != 40.712776 || rec.Longitude != -74.005974 {
		t.Errorf("coordinates = (%v, %v)", rec.Latitude, rec.Longitude)
	}
	if rec.Accuracy == nil || *rec.Accuracy != 12.5 {
		t.Errorf("Accuracy = %v, want 12.5", rec.Accuracy)
	}
	want := time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC)
	if !rec.RecordedAt.Equal(want) {
		t.Errorf("RecordedAt = %v, want %v", rec.RecordedAt, want)
	}
}

func TestToRecordWithoutTimestamp(t *testing.T) {
	rec := validLocation().ToRecord()
	if !rec.RecordedAt.IsZero() {
		t.Errorf("RecordedAt = %v, want zero for omitted timestamp", rec.RecordedAt)
	}
}

func TestRegisterRequest(t *testing.T) {
	valid := &RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "correct-horse"}
	if err := ValidateStruct(valid); err != nil {
		t.Errorf("unexpected failure: %v", err)
	}

	short := &RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "short"}
	if err := ValidateStruct(short); err == nil {
		t.Error("expected failure for short password")
	}

	badEmail := &RegisterRequest{Name: "Ada", Email: "not-an-email", Password: "correct-horse"}
	if err := ValidateStruct(badEmail); err == nil {
		t.Error("expected failure for invalid email")
	}
}

func TestLoginRequest(t *testing.T) {
	if err := ValidateStruct(&LoginRequest{Email: "ada@example.com", Password: "pw"}); err != nil {
		t.Errorf("unexpected failure: %v", err)
	}
	if err := ValidateStruct(&LoginRequest{Email: "ada@example.com"}); err == nil {
		t.Error("expected failure for missing password")
	}
}
