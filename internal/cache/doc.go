// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

// Package cache implements the ephemeral location store on Redis.
//
// Three structures share the user-id key space:
//
//   - location:user:<id>: a hash holding the user's latest position, with a
//     TTL so inactive users expire on their own.
//   - location:active_users: a sorted set scored by last write time, used to
//     count and enumerate recently active users and to find TTL-eviction
//     candidates.
//   - location:sync_queue: a sorted set scored by enqueue time, tracking
//     users whose latest write has not yet been mirrored to the durable
//     store. Distinct from the active set: a user can be active but already
//     synced, or synced but still active, and TTL eviction never touches
//     the queue.
//
// Every write applies its four effects (hash replace, TTL refresh, active
// score update, queue enqueue) inside one MULTI/EXEC transaction issued as a
// single round trip, so a concurrent reader never observes an index entry
// without its record or vice versa.
//
// The package performs no validation and no durable-store fallback; both
// belong to its callers. Connectivity failures surface as ErrUnavailable
// with no partial effect.
package cache
