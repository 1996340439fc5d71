// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/geotrace/config.yaml",
	"/etc/geotrace/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. These are applied
// first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr:           "127.0.0.1:6379",
			Password:       "",
			DB:             0,
			MaxIdle:        64,
			MaxActive:      512,
			IdleTimeout:    4 * time.Minute,
			ConnectTimeout: 5 * time.Second,
			OpTimeout:      2 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/geotrace.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		GPS: GPSConfig{
			LocationTTL:        time.Hour,
			SyncInterval:       time.Minute,
			MaxBatchSize:       1000,
			BroadcastEnabled:   true,
			SyncRetryAttempts:  3,
			SyncRetryDelay:     10 * time.Second,
			RateLimitUpdates:   120,
			RateLimitWindow:    time.Minute,
			BroadcastPerSecond: 200,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8942,
			Timeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			JWTTTL:          24 * time.Hour,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		API: APIConfig{
			DefaultActiveLimit: 1000,
			MaxActiveLimit:     10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources
// (ENV > file > defaults), then validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	if err := processDurationFields(k); err != nil {
		return nil, fmt.Errorf("failed to process duration fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when supplied via environment variables.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars arrive as strings; YAML values are already
// slices and pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// durationConfigPaths lists duration settings whose environment variables
// historically accept bare seconds ("3600") as well as Go duration strings.
var durationConfigPaths = []string{
	"gps.location_ttl",
	"gps.sync_interval",
	"gps.sync_retry_delay",
	"gps.rate_limit_window",
	"redis.op_timeout",
	"security.jwt_ttl",
	"security.rate_limit_window",
	"server.timeout",
}

// processDurationFields rewrites bare-second duration strings ("3600")
// into parseable Go durations ("3600s") before unmarshaling.
func processDurationFields(k *koanf.Koanf) error {
	for _, path := range durationConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		if _, err := time.ParseDuration(strVal); err == nil {
			continue
		}
		if secs, err := strconv.Atoi(strVal); err == nil {
			if err := k.Set(path, fmt.Sprintf("%ds", secs)); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps flat environment variable names to nested config paths.
// Durations accept Go duration strings ("90s", "2m") or bare seconds for
// the GPS_* settings, matching the documented contract.
var envMappings = map[string]string{
	"redis_addr":            "redis.addr",
	"redis_password":        "redis.password",
	"redis_db":              "redis.db",
	"redis_max_idle":        "redis.max_idle",
	"redis_max_active":      "redis.max_active",
	"redis_op_timeout":      "redis.op_timeout",
	"duckdb_path":           "database.path",
	"duckdb_max_memory":     "database.max_memory",
	"duckdb_threads":        "database.threads",
	"gps_location_ttl":      "gps.location_ttl",
	"gps_sync_interval":     "gps.sync_interval",
	"gps_max_batch_size":    "gps.max_batch_size",
	"gps_broadcast_enabled": "gps.broadcast_enabled",
	"gps_rate_limit":        "gps.rate_limit_updates",
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_timeout":          "server.timeout",
	"jwt_secret":            "security.jwt_secret",
	"jwt_ttl":               "security.jwt_ttl",
	"cors_origins":          "security.cors_origins",
	"rate_limit_reqs":       "security.rate_limit_reqs",
	"rate_limit_window":     "security.rate_limit_window",
	"log_level":             "logging.level",
	"log_format":            "logging.format",
	"log_caller":            "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf paths.
// Variables without a mapping are dropped so unrelated environment noise
// cannot leak into the config tree.
func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return ""
}
