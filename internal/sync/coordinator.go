// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/geotraceapp/geotrace/internal/logging"
	"github.com/geotraceapp/geotrace/internal/metrics"
	"github.com/geotraceapp/geotrace/internal/models"
)

// ErrCycleInProgress indicates another instance holds the sync lease. The
// skipped cycle is not an error condition; the queue is being drained
// elsewhere.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// CacheStore is the slice of the location cache the coordinator needs.
type CacheStore interface {
	DrainSyncQueue(ctx context.Context, limit int) ([]int64, error)
	GetMany(ctx context.Context, userIDs []int64) (map[int64]*models.LocationRecord, error)
	MarkSynced(ctx context.Context, userIDs []int64) error
	EvictExpired(ctx context.Context) (int, error)
	PendingSyncCount(ctx context.Context) (int64, error)
}

// DurableStore is the slice of the database the coordinator needs.
type DurableStore interface {
	UpsertUserLocations(ctx context.Context, recs []*models.LocationRecord) (synced []int64, failed map[int64]error)
}

// Guard serializes cycles across instances.
type Guard interface {
	Acquire(ctx context.Context) (release func(), acquired bool, err error)
}

// upsertResult carries the per-batch outcome through the circuit breaker.
type upsertResult struct {
	synced []int64
	failed map[int64]error
}

// Coordinator runs sync cycles: queue drain, batched durable upsert,
// queue trim, index eviction.
type Coordinator struct {
	cache     CacheStore
	durable   DurableStore
	guard     Guard
	batchSize int
	breaker   *gobreaker.CircuitBreaker[upsertResult]
}

// NewCoordinator wires a coordinator over the given stores. batchSize caps
// how many users one cycle drains.
func NewCoordinator(cache CacheStore, durable DurableStore, guard Guard, batchSize int) *Coordinator {
	cbName := "durable-store"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[upsertResult](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})

	return &Coordinator{
		cache:     cache,
		durable:   durable,
		guard:     guard,
		batchSize: batchSize,
		breaker:   breaker,
	}
}

// RunCycle executes one sync cycle and returns its stats.
//
// Failure handling is per record: ids whose durable upsert failed stay in
// the queue and are retried next cycle; ids that succeeded, and ids whose
// cached record already expired (nothing left to persist), are removed.
// A transport-level failure of the whole batch, or an open circuit
// breaker, leaves the entire queue intact and returns an error.
//
// When another instance holds the lease, RunCycle returns zero stats and
// ErrCycleInProgress.
func (c *Coordinator) RunCycle(ctx context.Context) (models.SyncStats, error) {
	start := time.Now()
	stats := models.SyncStats{}

	release, acquired, err := c.guard.Acquire(ctx)
	if err != nil {
		metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
		return stats, err
	}
	if !acquired {
		metrics.SyncCyclesTotal.WithLabelValues("skipped").Inc()
		return stats, ErrCycleInProgress
	}
	defer release()

	userIDs, err := c.cache.DrainSyncQueue(ctx, c.batchSize)
	if err != nil {
		metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
		return stats, fmt.Errorf("drain sync queue: %w", err)
	}
	stats.Processed = len(userIDs)

	if len(userIDs) > 0 {
		if err := c.syncBatch(ctx, userIDs, &stats); err != nil {
			metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
			return stats, err
		}
	}

	cleaned, err := c.cache.EvictExpired(ctx)
	if err != nil {
		metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
		return stats, fmt.Errorf("evict expired: %w", err)
	}
	stats.Cleaned = cleaned
	metrics.SyncEvictedTotal.Add(float64(cleaned))

	// Refresh the queue depth gauge; failure here does not fail the cycle.
	_, _ = c.cache.PendingSyncCount(ctx)

	metrics.SyncCyclesTotal.WithLabelValues("success").Inc()
	metrics.SyncCycleDuration.Observe(time.Since(start).Seconds())

	logging.Debug().
		Int("processed", stats.Processed).
		Int("synced", stats.Synced).
		Int("errors", stats.Errors).
		Int("cleaned", stats.Cleaned).
		Dur("duration", time.Since(start)).
		Msg("Sync cycle completed")
	return stats, nil
}

// syncBatch persists the drained users' records and trims the queue.
func (c *Coordinator) syncBatch(ctx context.Context, userIDs []int64, stats *models.SyncStats) error {
	records, err := c.cache.GetMany(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("fetch records for sync: %w", err)
	}

	recs := make([]*models.LocationRecord, 0, len(records))
	// Users whose record expired between enqueue and drain have nothing
	// left to persist; their queue entry is dropped below.
	expired := make([]int64, 0)
	for _, id := range userIDs {
		if rec, ok := records[id]; ok {
			recs = append(recs, rec)
		} else {
			expired = append(expired, id)
		}
	}

	var synced []int64
	if len(recs) > 0 {
		result, err := c.breaker.Execute(func() (upsertResult, error) {
			s, failed := c.durable.UpsertUserLocations(ctx, recs)
			// Only a fully failed batch counts against the breaker;
			// per-row failures are data problems, not store outages.
			if len(s) == 0 && len(failed) > 0 {
				return upsertResult{}, firstError(failed)
			}
			return upsertResult{synced: s, failed: failed}, nil
		})
		if err != nil {
			stats.Errors = len(recs)
			metrics.SyncRecordsTotal.WithLabelValues("error").Add(float64(len(recs)))
			return fmt.Errorf("durable upsert: %w", err)
		}
		synced = result.synced
		stats.Synced = len(result.synced)
		stats.Errors = len(result.failed)
		metrics.SyncRecordsTotal.WithLabelValues("synced").Add(float64(len(result.synced)))
		metrics.SyncRecordsTotal.WithLabelValues("error").Add(float64(len(result.failed)))
		for id, ferr := range result.failed {
			logging.Warn().Int64("user_id", id).Err(ferr).Msg("Failed to sync location record")
		}
	}

	if err := c.cache.MarkSynced(ctx, append(synced, expired...)); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func firstError(failed map[int64]error) error {
	for _, err := range failed {
		return err
	}
	return errors.New("batch upsert failed")
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
