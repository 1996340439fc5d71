// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/geotraceapp/geotrace/internal/models"
)

// UpsertUserLocation writes a user's latest position, replacing any
// existing row for that user.
func (db *DB) UpsertUserLocation(ctx context.Context, rec *models.LocationRecord) error {
	query := `
		INSERT INTO user_locations (
			id, user_id, latitude, longitude,
			altitude, accuracy, speed, heading,
			recorded_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			altitude = EXCLUDED.altitude,
			accuracy = EXCLUDED.accuracy,
			speed = EXCLUDED.speed,
			heading = EXCLUDED.heading,
			recorded_at = EXCLUDED.recorded_at,
			updated_at = EXCLUDED.updated_at`

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx, query,
		uuid.New(),
		rec.UserID,
		rec.Latitude,
		rec.Longitude,
		nullableFloat(rec.Altitude),
		nullableFloat(rec.Accuracy),
		nullableFloat(rec.Speed),
		nullableFloat(rec.Heading),
		rec.RecordedAt.UTC(),
		updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert location for user %d: %w", rec.UserID, err)
	}
	return nil
}

// UpsertUserLocations writes a batch of records one row at a time and
// returns the user ids that succeeded plus the per-user failures. Rows are
// deliberately NOT wrapped in a single transaction: a DuckDB statement
// failure aborts its enclosing transaction, which would turn one bad row
// into a lost batch. Autocommit per row keeps record failures isolated and
// preserves partial progress across a crash.
func (db *DB) UpsertUserLocations(ctx context.Context, recs []*models.LocationRecord) (synced []int64, failed map[int64]error) {
	synced = make([]int64, 0, len(recs))
	failed = make(map[int64]error)

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			failed[rec.UserID] = err
			continue
		}
		if err := db.UpsertUserLocation(ctx, rec); err != nil {
			failed[rec.UserID] = err
			continue
		}
		synced = append(synced, rec.UserID)
	}
	return synced, failed
}

// GetUserLocation returns a user's last synced position, or (nil, nil)
// when the user has never been synced.
func (db *DB) GetUserLocation(ctx context.Context, userID int64) (*models.LocationRecord, error) {
	query := `
		SELECT user_id, latitude, longitude,
			altitude, accuracy, speed, heading,
			recorded_at, updated_at
		FROM user_locations
		WHERE user_id = ?`

	rec := &models.LocationRecord{}
	var altitude, accuracy, speed, heading sql.NullFloat64

	err := db.conn.QueryRowContext(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.Latitude,
		&rec.Longitude,
		&altitude,
		&accuracy,
		&speed,
		&heading,
		&rec.RecordedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query location for user %d: %w", userID, err)
	}

	rec.Altitude = floatPtr(altitude)
	rec.Accuracy = floatPtr(accuracy)
	rec.Speed = floatPtr(speed)
	rec.Heading = floatPtr(heading)
	rec.RecordedAt = rec.RecordedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

// CountUserLocations returns the number of users with a synced position.
func (db *DB) CountUserLocations(ctx context.Context) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_locations`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count locations: %w", err)
	}
	return n, nil
}

// DeleteUserLocation removes a user's synced position; used for explicit
// data-deletion requests. Missing rows are not an error.
func (db *DB) DeleteUserLocation(ctx context.Context, userID int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM user_locations WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete location for user %d: %w", userID, err)
	}
	return nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
