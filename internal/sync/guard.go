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

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"

	"github.com/geotraceapp/geotrace/internal/logging"
)

// leaseKey is the Redis key holding the sync lease.
const leaseKey = "location:sync_lock"

// releaseScript deletes the lease only when it still holds our token, so a
// slow cycle whose lease expired cannot release a successor's lease.
var releaseScript = redis.NewScript(1, `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// LeaseGuard serializes sync cycles across server instances with a Redis
// lease. The lease TTL bounds how long a crashed holder can block others.
type LeaseGuard struct {
	pool *redis.Pool
	ttl  time.Duration
}

// NewLeaseGuard creates a guard whose lease expires after ttl.
func NewLeaseGuard(pool *redis.Pool, ttl time.Duration) *LeaseGuard {
	return &LeaseGuard{pool: pool, ttl: ttl}
}

// Acquire tries to take the lease. On success it returns a release func
// and true. When another holder owns the lease it returns (nil, false,
// nil); the caller skips the cycle.
func (g *LeaseGuard) Acquire(ctx context.Context) (release func(), acquired bool, err error) {
	conn, err := g.pool.GetContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire sync lease: %w", err)
	}
	defer func() { _ = conn.Close() }()

	token := uuid.NewString()
	reply, err := redis.String(conn.Do("SET", leaseKey, token, "NX", "PX", g.ttl.Milliseconds()))
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire sync lease: %w", err)
	}
	if reply != "OK" {
		return nil, false, nil
	}

	return func() { g.release(token) }, true, nil
}

// release gives the lease back. Failure is logged, not returned: the TTL
// reclaims an unreleased lease on its own.
func (g *LeaseGuard) release(token string) {
	conn, err := g.pool.GetContext(context.Background())
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to connect for sync lease release")
		return
	}
	defer func() { _ = conn.Close() }()

	if _, err := releaseScript.Do(conn, leaseKey, token); err != nil {
		logging.Warn().Err(err).Msg("Failed to release sync lease")
	}
}
