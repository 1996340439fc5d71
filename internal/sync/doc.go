// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

// Package sync drains the Redis sync queue into the durable store.
//
// A cycle is: acquire the distributed lease, drain up to one batch of user
// ids from the queue, fetch their cached records, upsert them through a
// circuit breaker, remove the successfully persisted ids from the queue,
// and prune expired entries from the active index. Record failures are
// isolated; one bad row never aborts the batch. Queue entries survive
// until their record is durably written, so a crashed or failed cycle
// retries the same users on the next tick.
//
// The lease (a Redis SET NX key with a TTL) serializes cycles across all
// server instances. A cycle that finds the lease held returns
// ErrCycleInProgress and does nothing.
package sync
