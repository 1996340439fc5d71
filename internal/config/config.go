// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

// Package config provides centralized configuration for all Geotrace
// components: the Redis location cache, the DuckDB durable store, the sync
// coordinator, the HTTP server, and security settings.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Redis    RedisConfig    `koanf:"redis"`
	Database DatabaseConfig `koanf:"database"`
	GPS      GPSConfig      `koanf:"gps"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// RedisConfig holds connection settings for the ephemeral location cache.
//
// Environment Variables:
//   - REDIS_ADDR: host:port (default: 127.0.0.1:6379)
//   - REDIS_PASSWORD: optional AUTH password
//   - REDIS_DB: database number (default: 0)
type RedisConfig struct {
	Addr           string        `koanf:"addr"`
	Password       string        `koanf:"password"`
	DB             int           `koanf:"db"`
	MaxIdle        int           `koanf:"max_idle"`
	MaxActive      int           `koanf:"max_active"`
	IdleTimeout    time.Duration `koanf:"idle_timeout"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	// OpTimeout bounds every cache command round trip. A command that
	// exceeds it surfaces as a store-unavailable error to the caller.
	OpTimeout time.Duration `koanf:"op_timeout"`
}

// DatabaseConfig holds DuckDB settings for the durable location store.
//
// Environment Variables:
//   - DUCKDB_PATH: database file path (default: /data/geotrace.duckdb)
//   - DUCKDB_MAX_MEMORY: memory limit (default: 2GB)
//   - DUCKDB_THREADS: worker threads, 0 = NumCPU (default: 0)
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// GPSConfig holds the tracking engine settings.
//
// Environment Variables:
//   - GPS_LOCATION_TTL: inactivity window in seconds before a cached
//     location expires and its active-index entry is pruned (default: 3600)
//   - GPS_SYNC_INTERVAL: cadence of the cache-to-database sync in seconds
//     (default: 60)
//   - GPS_MAX_BATCH_SIZE: cap on records drained per sync cycle (default: 1000)
//   - GPS_BROADCAST_ENABLED: real-time fan-out of location updates to
//     WebSocket subscribers (default: true)
type GPSConfig struct {
	LocationTTL      time.Duration `koanf:"location_ttl"`
	SyncInterval     time.Duration `koanf:"sync_interval"`
	MaxBatchSize     int           `koanf:"max_batch_size"`
	BroadcastEnabled bool          `koanf:"broadcast_enabled"`
	// SyncRetryAttempts/SyncRetryDelay govern scheduler retries of a
	// failed cycle. Retries are safe: drain-and-upsert is idempotent.
	SyncRetryAttempts int           `koanf:"sync_retry_attempts"`
	SyncRetryDelay    time.Duration `koanf:"sync_retry_delay"`
	// RateLimitUpdates/RateLimitWindow cap location writes per user.
	RateLimitUpdates int           `koanf:"rate_limit_updates"`
	RateLimitWindow  time.Duration `koanf:"rate_limit_window"`
	// BroadcastPerSecond caps messages relayed to WebSocket clients;
	// excess updates are dropped rather than back-pressuring ingest.
	BroadcastPerSecond int `koanf:"broadcast_per_second"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// SecurityConfig holds authentication settings.
//
// Environment Variables:
//   - JWT_SECRET: 32+ character secret for token signing (required)
//   - JWT_TTL: token lifetime (default: 24h)
type SecurityConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	JWTTTL          time.Duration `koanf:"jwt_ttl"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// APIConfig holds pagination limits for read endpoints.
type APIConfig struct {
	DefaultActiveLimit int `koanf:"default_active_limit"`
	MaxActiveLimit     int `koanf:"max_active_limit"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks configuration invariants after loading.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.GPS.LocationTTL <= 0 {
		return fmt.Errorf("gps.location_ttl must be positive, got %v", c.GPS.LocationTTL)
	}
	if c.GPS.SyncInterval <= 0 {
		return fmt.Errorf("gps.sync_interval must be positive, got %v", c.GPS.SyncInterval)
	}
	if c.GPS.MaxBatchSize <= 0 {
		return fmt.Errorf("gps.max_batch_size must be positive, got %d", c.GPS.MaxBatchSize)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if len(c.Security.JWTSecret) > 0 && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	return nil
}
