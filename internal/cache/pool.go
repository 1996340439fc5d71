// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package cache

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/geotraceapp/geotrace/internal/config"
)

// NewPool builds a redigo connection pool from configuration.
//
// Read and write timeouts are set on every connection so that each command
// round trip is bounded; a command that exceeds them fails with a net error
// which the store surfaces as ErrUnavailable. The pool blocks (Wait) when
// MaxActive is reached rather than failing fast, which smooths out write
// bursts from the ingest path.
func NewPool(cfg config.RedisConfig) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     cfg.MaxIdle,
		MaxActive:   cfg.MaxActive,
		IdleTimeout: cfg.IdleTimeout,
		Wait:        true,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", cfg.Addr,
				redis.DialPassword(cfg.Password),
				redis.DialDatabase(cfg.DB),
				redis.DialConnectTimeout(cfg.ConnectTimeout),
				redis.DialReadTimeout(cfg.OpTimeout),
				redis.DialWriteTimeout(cfg.OpTimeout),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}
