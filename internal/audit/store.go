// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists audit events.
type Store interface {
	Save(ctx context.Context, event *Event) error
	ListRecent(ctx context.Context, limit int) ([]*Event, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// DuckDBStore implements Store on the shared DuckDB connection. Audit rows
// live next to the location data they describe, so one backup captures
// both.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates the store and its table.
func NewDuckDBStore(db *sql.DB) (*DuckDBStore, error) {
	s := &DuckDBStore{db: db}
	if err := s.createSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DuckDBStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			event_time TIMESTAMP NOT NULL,
			event_type VARCHAR NOT NULL,
			outcome VARCHAR NOT NULL,
			actor_id BIGINT NOT NULL,
			actor_role VARCHAR,
			target_user_id BIGINT,
			source_ip VARCHAR,
			request_id VARCHAR,
			description VARCHAR
		)`)
	if err != nil {
		return fmt.Errorf("failed to create audit_events table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_time ON audit_events(event_time)`)
	if err != nil {
		return fmt.Errorf("failed to create audit_events index: %w", err)
	}
	return nil
}

// Save writes one event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	var target any
	if event.TargetUserID != nil {
		target = *event.TargetUserID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, event_time, event_type, outcome, actor_id, actor_role, target_user_id, source_ip, request_id, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp, string(event.Type), string(event.Outcome),
		event.ActorID, event.ActorRole, target, event.SourceIP, event.RequestID, event.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

// ListRecent returns the newest events first.
func (s *DuckDBStore) ListRecent(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_time, event_type, outcome, actor_id, actor_role, target_user_id, source_ip, request_id, description
		FROM audit_events
		ORDER BY event_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e         Event
			eventType string
			outcome   string
			actorRole sql.NullString
			target    sql.NullInt64
			sourceIP  sql.NullString
			requestID sql.NullString
			desc      sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &outcome, &e.ActorID,
			&actorRole, &target, &sourceIP, &requestID, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = EventType(eventType)
		e.Outcome = Outcome(outcome)
		e.ActorRole = actorRole.String
		if target.Valid {
			v := target.Int64
			e.TargetUserID = &v
		}
		e.SourceIP = sourceIP.String
		e.RequestID = requestID.String
		e.Description = desc.String
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// DeleteOlderThan enforces retention, returning the number of rows removed.
func (s *DuckDBStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE event_time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired audit events: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return removed, nil
}
