// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates tables and indexes. All columns are defined in the
// initial CREATE TABLE statements; there is no migration machinery yet.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS users_id_seq START 1`,

		// User accounts. password_hash holds a bcrypt digest and never
		// leaves this package in API responses.
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY DEFAULT nextval('users_id_seq'),
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			created_at TIMESTAMP NOT NULL
		)`,

		// Latest synced position, one canonical row per user. DECIMAL
		// widths give ~1mm coordinate precision; optional GPS fields are
		// nullable so an absent reading stays distinguishable from zero.
		`CREATE TABLE IF NOT EXISTS user_locations (
			id UUID PRIMARY KEY,
			user_id BIGINT NOT NULL UNIQUE,
			latitude DECIMAL(10,8) NOT NULL,
			longitude DECIMAL(11,8) NOT NULL,
			altitude DECIMAL(8,2),
			accuracy DECIMAL(8,2),
			speed DECIMAL(8,2),
			heading DECIMAL(5,2),
			recorded_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_user_locations_recorded_at
			ON user_locations(recorded_at)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}
