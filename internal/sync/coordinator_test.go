// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"

	"github.com/geotraceapp/geotrace/internal/cache"
	"github.com/geotraceapp/geotrace/internal/config"
	"github.com/geotraceapp/geotrace/internal/models"
)

// fakeDurable is an in-memory stand-in for the database with injectable
// per-user and whole-batch failures.
type fakeDurable struct {
	mu      stdsync.Mutex
	rows    map[int64]*models.LocationRecord
	failIDs map[int64]error
	failAll error
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{
		rows:    make(map[int64]*models.LocationRecord),
		failIDs: make(map[int64]error),
	}
}

func (f *fakeDurable) UpsertUserLocations(ctx context.Context, recs []*models.LocationRecord) ([]int64, map[int64]error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	synced := make([]int64, 0, len(recs))
	failed := make(map[int64]error)
	for _, rec := range recs {
		if f.failAll != nil {
			failed[rec.UserID] = f.failAll
			continue
		}
		if err, ok := f.failIDs[rec.UserID]; ok {
			failed[rec.UserID] = err
			continue
		}
		f.rows[rec.UserID] = rec
		synced = append(synced, rec.UserID)
	}
	return synced, failed
}

func (f *fakeDurable) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type testEnv struct {
	mr      *miniredis.Miniredis
	pool    *redis.Pool
	cache   *cache.Store
	durable *fakeDurable
	coord   *Coordinator
	guard   *LeaseGuard
}

func setupEnv(t *testing.T, batchSize int) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	pool := cache.NewPool(config.RedisConfig{
		Addr:           mr.Addr(),
		MaxIdle:        2,
		MaxActive:      5,
		IdleTimeout:    time.Minute,
		ConnectTimeout: time.Second,
		OpTimeout:      time.Second,
	})
	t.Cleanup(func() { pool.Close() })

	store := cache.NewStore(pool, time.Hour)
	durable := newFakeDurable()
	guard := NewLeaseGuard(pool, time.Minute)

	return &testEnv{
		mr:      mr,
		pool:    pool,
		cache:   store,
		durable: durable,
		coord:   NewCoordinator(store, durable, guard, batchSize),
		guard:   guard,
	}
}

func (e *testEnv) put(t *testing.T, userID int64) {
	t.Helper()
	_, err := e.cache.Put(context.Background(), userID, &models.LocationRecord{
		Latitude:  float64(userID),
		Longitude: 1,
	})
	if err != nil {
		t.Fatalf("put user %d: %v", userID, err)
	}
}

func (e *testEnv) queueLen(t *testing.T) int {
	t.Helper()
	ids, err := e.cache.DrainSyncQueue(context.Background(), 1000)
	if err != nil {
		t.Fatalf("drain queue: %v", err)
	}
	return len(ids)
}

func TestRunCycleEmptyQueue(t *testing.T) {
	env := setupEnv(t, 100)

	stats, err := env.coord.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Processed != 0 || stats.Synced != 0 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want zeros for empty queue", stats)
	}
}

func TestRunCycleSyncsBatch(t *testing.T) {
	env := setupEnv(t, 100)
	for id := int64(1); id <= 3; id++ {
		env.put(t, id)
	}

	stats, err := env.coord.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Processed != 3 || stats.Synced != 3 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want processed=3 synced=3", stats)
	}
	if env.durable.rowCount() != 3 {
		t.Errorf("durable rows = %d, want 3", env.durable.rowCount())
	}
	if n := env.queueLen(t); n != 0 {
		t.Errorf("queue length after cycle = %d, want 0", n)
	}

	// A second cycle finds nothing to do.
	stats, err = env.coord.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if stats.Processed != 0 {
		t.Errorf("second cycle processed %d, want 0", stats.Processed)
	}
}

func TestRunCycleFailedRecordStaysQueued(t *testing.T) {
	env := setupEnv(t, 100)
	for id := int64(1); id <= 3; id++ {
		env.put(t, id)
	}
	env.durable.failIDs[2] = fmt.Errorf("constraint violation")

	stats, err := env.coord.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Synced != 2 || stats.Errors != 1 {
		t.Errorf("stats = %+v, want synced=2 errors=1", stats)
	}

	ids, err := env.cache.DrainSyncQueue(context.Background(), 100)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(ids) != 1 || ids[0] != 2 {
		t.Errorf("queue after cycle = %v, want [2] (failed record retries)", ids)
	}

	// The record syncs once the failure clears.
	delete(env.durable.failIDs, 2)
	stats, err = env.coord.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("retry RunCycle: %v", err)
	}
	if stats.Synced != 1 {
		t.Errorf("retry synced %d, want 1", stats.Synced)
	}
	if n := env.queueLen(t); n != 0 {
		t.Errorf("queue length after retry = %d, want 0", n)
	}
}

func TestRunCycleRespectsBatchSize(t *testing.T) {
	env := setupEnv(t, 3)
	for id := int64(1); id <= 5; id++ {
		env.put(t, id)
	}

	stats, err := env.coord.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Processed != 3 {
		t.Errorf("processed = %d, want batch cap of 3", stats.Processed)
	}
	if n := env.queueLen(t); n != 2 {
		t.Errorf("queue remainder = %d, want 2", n)
	}

	stats, err = env.coord.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if stats.Processed != 2 {
		t.Errorf("second cycle processed %d, want 2", stats.Processed)
	}
	if env.durable.rowCount() != 5 {
		t.Errorf("durable rows = %d, want all 5 after two cycles", env.durable.rowCount())
	}
}

func TestRunCycleSkipsWhenLeaseHeld(t *testing.T) {
	env := setupEnv(t, 100)
	env.put(t, 1)

	release, acquired, err := env.guard.Acquire(context.Background())
	if err != nil || !acquired {
		t.Fatalf("manual lease acquire failed: acquired=%v err=%v", acquired, err)
	}
	defer release()

	stats, err := env.coord.RunCycle(context.Background())
	if !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("err = %v, want ErrCycleInProgress", err)
	}
	if stats.Processed != 0 {
		t.Errorf("skipped cycle processed %d, want 0", stats.Processed)
	}
	if n := env.queueLen(t); n != 1 {
		t.Errorf("queue length = %d, want untouched 1", n)
	}
}

func TestRunCycleDropsExpiredQueueEntries(t *testing.T) {
	env := setupEnv(t, 100)
	env.put(t, 9)

	// Simulate TTL expiry of the record while the queue entry survives.
	env.mr.Del("location:user:9")

	stats, err := env.coord.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Processed != 1 || stats.Synced != 0 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want processed=1 synced=0 errors=0", stats)
	}
	if n := env.queueLen(t); n != 0 {
		t.Errorf("queue length = %d, want 0 (nothing left to persist)", n)
	}
}

func TestRunCycleWholeBatchFailureKeepsQueue(t *testing.T) {
	env := setupEnv(t, 100)
	for id := int64(1); id <= 3; id++ {
		env.put(t, id)
	}
	env.durable.failAll = fmt.Errorf("database unreachable")

	stats, err := env.coord.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected error for fully failed batch")
	}
	if stats.Errors != 3 {
		t.Errorf("errors = %d, want 3", stats.Errors)
	}
	if n := env.queueLen(t); n != 3 {
		t.Errorf("queue length = %d, want all 3 retained for retry", n)
	}
}

func TestRunCycleEvictsExpiredActiveEntries(t *testing.T) {
	env := setupEnv(t, 100)
	env.put(t, 1)

	// Backdate the active-index entry well past the TTL.
	conn := env.pool.Get()
	if _, err := conn.Do("ZADD", "location:active_users", 1, 1); err != nil {
		t.Fatalf("backdate active entry: %v", err)
	}
	_ = conn.Close()

	stats, err := env.coord.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Cleaned != 1 {
		t.Errorf("cleaned = %d, want 1", stats.Cleaned)
	}
}
