// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geotraceapp/geotrace/internal/config"
	"github.com/geotraceapp/geotrace/internal/database"
)

func setupStore(t *testing.T) *DuckDBStore {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "512MB",
		Threads:   1,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	store, err := NewDuckDBStore(db.Conn())
	if err != nil {
		t.Fatalf("failed to create audit store: %v", err)
	}
	return store
}

func int64p(v int64) *int64 { return &v }

func TestSaveAndListRecent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := store.Save(ctx, &Event{
			ID:           "00000000-0000-0000-0000-00000000000" + string(rune('1'+i)),
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			Type:         EventTypeLocationRead,
			Outcome:      OutcomeSuccess,
			ActorID:      7,
			ActorRole:    "admin",
			TargetUserID: int64p(int64(100 + i)),
			SourceIP:     "10.0.0.1",
			Description:  "admin read user location",
		})
		if err != nil {
			t.Fatalf("save event %d: %v", i, err)
		}
	}

	events, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if *events[0].TargetUserID != 102 {
		t.Errorf("expected newest event first, got target %d", *events[0].TargetUserID)
	}
	if events[0].Type != EventTypeLocationRead {
		t.Errorf("expected type %q, got %q", EventTypeLocationRead, events[0].Type)
	}
}

func TestSaveWithoutTarget(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	err := store.Save(ctx, &Event{
		ID:        "00000000-0000-0000-0000-000000000001",
		Timestamp: time.Now().UTC(),
		Type:      EventTypeAuthFailure,
		Outcome:   OutcomeFailure,
		ActorID:   0,
		SourceIP:  "192.0.2.1",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	events, err := store.ListRecent(ctx, 1)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if events[0].TargetUserID != nil {
		t.Errorf("expected nil target, got %v", *events[0].TargetUserID)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		err := store.Save(ctx, &Event{
			ID:        "00000000-0000-0000-0000-00000000000" + string(rune('1'+i)),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Type:      EventTypeAuthSuccess,
			Outcome:   OutcomeSuccess,
			ActorID:   1,
		})
		if err != nil {
			t.Fatalf("save event %d: %v", i, err)
		}
	}

	removed, err := store.DeleteOlderThan(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	events, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 remaining, got %d", len(events))
	}
}

func TestRecorderWritesAsync(t *testing.T) {
	store := setupStore(t)
	recorder := NewRecorder(store, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- recorder.Serve(ctx) }()

	recorder.Record(&Event{
		Type:    EventTypeAuthSuccess,
		Outcome: OutcomeSuccess,
		ActorID: 42,
	})

	deadline := time.After(2 * time.Second)
	for {
		events, err := store.ListRecent(context.Background(), 1)
		if err != nil {
			t.Fatalf("ListRecent: %v", err)
		}
		if len(events) == 1 {
			if events[0].ActorID != 42 {
				t.Errorf("expected actor 42, got %d", events[0].ActorID)
			}
			if events[0].ID == "" {
				t.Error("expected generated event id")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("event never persisted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop")
	}
}

func TestRecorderFlushesOnShutdown(t *testing.T) {
	store := setupStore(t)
	recorder := NewRecorder(store, 16)

	recorder.Record(&Event{Type: EventTypeUserCreated, Outcome: OutcomeSuccess, ActorID: 1})
	recorder.Record(&Event{Type: EventTypeAuthSuccess, Outcome: OutcomeSuccess, ActorID: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := recorder.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	events, err := store.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 flushed events, got %d", len(events))
	}
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var recorder *Recorder
	recorder.Record(&Event{Type: EventTypeAuthSuccess})
}
