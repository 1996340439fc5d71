// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/geotraceapp/geotrace/internal/config"
	"github.com/geotraceapp/geotrace/internal/logging"
	"github.com/geotraceapp/geotrace/internal/models"
)

// Notifier receives the outcome of each completed cycle, typically to fan
// it out to WebSocket subscribers.
type Notifier interface {
	BroadcastSyncCompleted(stats models.SyncStats)
}

// Scheduler runs sync cycles on a fixed interval. It implements
// suture.Service: Serve blocks until the context is canceled and the
// supervisor restarts it if it ever returns early.
type Scheduler struct {
	coordinator *Coordinator
	interval    time.Duration
	retries     int
	retryDelay  time.Duration
	notifier    Notifier
}

// NewScheduler creates a scheduler over coordinator using the GPS sync
// settings from cfg.
func NewScheduler(coordinator *Coordinator, cfg config.GPSConfig) *Scheduler {
	return &Scheduler{
		coordinator: coordinator,
		interval:    cfg.SyncInterval,
		retries:     cfg.SyncRetryAttempts,
		retryDelay:  cfg.SyncRetryDelay,
	}
}

// SetNotifier registers an optional cycle-completion listener. Call before
// Serve.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// Serve implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("Starting sync scheduler")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Sync scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.runWithRetry(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Scheduler) String() string {
	return "sync-scheduler"
}

// runWithRetry runs one cycle, retrying transient failures. A lease held
// elsewhere is not retried; that cycle's work is happening on another
// instance.
func (s *Scheduler) runWithRetry(ctx context.Context) {
	for attempt := 1; attempt <= s.retries; attempt++ {
		stats, err := s.coordinator.RunCycle(ctx)
		if err == nil {
			if stats.Processed > 0 {
				logging.Info().
					Int("processed", stats.Processed).
					Int("synced", stats.Synced).
					Int("errors", stats.Errors).
					Int("cleaned", stats.Cleaned).
					Msg("Locations synced to durable store")
				if s.notifier != nil {
					s.notifier.BroadcastSyncCompleted(stats)
				}
			}
			return
		}
		if errors.Is(err, ErrCycleInProgress) {
			logging.Debug().Msg("Sync cycle skipped, lease held by another instance")
			return
		}
		if ctx.Err() != nil {
			return
		}

		logging.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", s.retries).Msg("Sync cycle failed")
		if attempt < s.retries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
		}
	}
}
