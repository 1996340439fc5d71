// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"

	"github.com/geotraceapp/geotrace/internal/cache"
	"github.com/geotraceapp/geotrace/internal/config"
)

func setupGuard(t *testing.T, ttl time.Duration) (*LeaseGuard, *miniredis.Miniredis, *redis.Pool) {
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

	return NewLeaseGuard(pool, ttl), mr, pool
}

func TestLeaseAcquireAndRelease(t *testing.T) {
	guard, _, _ := setupGuard(t, time.Minute)
	ctx := context.Background()

	release, acquired, err := guard.Acquire(ctx)
	if err != nil || !acquired {
		t.Fatalf("first acquire: acquired=%v err=%v", acquired, err)
	}

	_, again, err := guard.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if again {
		t.Error("lease acquired twice concurrently")
	}

	release()

	_, reacquired, err := guard.Acquire(ctx)
	if err != nil || !reacquired {
		t.Errorf("acquire after release: acquired=%v err=%v", reacquired, err)
	}
}

func TestLeaseExpiresAfterTTL(t *testing.T) {
	guard, mr, _ := setupGuard(t, time.Second)
	ctx := context.Background()

	_, acquired, err := guard.Acquire(ctx)
	if err != nil || !acquired {
		t.Fatalf("acquire: acquired=%v err=%v", acquired, err)
	}

	mr.FastForward(2 * time.Second)

	_, reacquired, err := guard.Acquire(ctx)
	if err != nil || !reacquired {
		t.Errorf("acquire after TTL expiry: acquired=%v err=%v", reacquired, err)
	}
}

func TestStaleReleaseDoesNotDropSuccessorLease(t *testing.T) {
	guard, mr, _ := setupGuard(t, time.Second)
	ctx := context.Background()

	staleRelease, acquired, err := guard.Acquire(ctx)
	if err != nil || !acquired {
		t.Fatalf("acquire: acquired=%v err=%v", acquired, err)
	}

	// First holder's lease expires and a second holder takes over.
	mr.FastForward(2 * time.Second)
	_, acquired, err = guard.Acquire(ctx)
	if err != nil || !acquired {
		t.Fatalf("successor acquire: acquired=%v err=%v", acquired, err)
	}

	// The stale release must not remove the successor's lease.
	staleRelease()
	if !mr.Exists(leaseKey) {
		t.Error("stale release removed the successor's lease")
	}
}
