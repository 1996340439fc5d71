// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/geotraceapp/geotrace/internal/logging"
)

// Recorder accepts events on the request path and writes them to the store
// from a background goroutine, so a slow disk never adds latency to a
// login. A full buffer drops the event with a warning; audit is best
// effort, not a write-ahead log.
type Recorder struct {
	store     Store
	eventChan chan *Event
}

// NewRecorder creates a recorder with the given buffer size.
func NewRecorder(store Store, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Recorder{
		store:     store,
		eventChan: make(chan *Event, bufferSize),
	}
}

// Record queues an event. Never blocks. Safe to call on a nil receiver,
// which makes the recorder trivially optional for callers.
func (r *Recorder) Record(event *Event) {
	if r == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case r.eventChan <- event:
	default:
		logging.Warn().Str("event_type", string(event.Type)).Msg("Audit buffer full, dropping event")
	}
}

// ListRecent reads back the newest persisted events. Queued events not yet
// written by Serve are not included.
func (r *Recorder) ListRecent(ctx context.Context, limit int) ([]*Event, error) {
	if r == nil {
		return nil, nil
	}
	return r.store.ListRecent(ctx, limit)
}

// Serve implements suture.Service, draining the buffer until the context
// is canceled. Queued events are flushed before returning.
func (r *Recorder) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return ctx.Err()
		case event := <-r.eventChan:
			r.write(event)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (r *Recorder) String() string {
	return "audit-recorder"
}

func (r *Recorder) flush() {
	for {
		select {
		case event := <-r.eventChan:
			r.write(event)
		default:
			return
		}
	}
}

func (r *Recorder) write(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to save audit event")
	}
}
