// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/geotraceapp/geotrace/internal/metrics"
	"github.com/geotraceapp/geotrace/internal/models"
)

// Redis key layout. All keys share the "location:" namespace so a single
// SCAN pattern covers the whole engine.
const (
	locationKeyPrefix = "location:user:"
	activeUsersKey    = "location:active_users"
	syncQueueKey      = "location:sync_queue"
)

// Hash field names for location records.
const (
	fieldUserID     = "user_id"
	fieldLatitude   = "latitude"
	fieldLongitude  = "longitude"
	fieldAltitude   = "altitude"
	fieldAccuracy   = "accuracy"
	fieldSpeed      = "speed"
	fieldHeading    = "heading"
	fieldRecordedAt = "recorded_at" // unix milliseconds
	fieldUpdatedAt  = "updated_at"  // unix milliseconds
)

// Store is the Redis-backed location cache. It is safe for concurrent use;
// all synchronization happens inside the backing store, never in process,
// so one user's write cannot stall another's.
type Store struct {
	pool *redis.Pool
	ttl  time.Duration

	// now is a test hook; production code uses time.Now.
	now func() time.Time
}

// NewStore creates a cache store with the given connection pool and
// location TTL.
func NewStore(pool *redis.Pool, ttl time.Duration) *Store {
	return &Store{
		pool: pool,
		ttl:  ttl,
		now:  time.Now,
	}
}

// locationKey returns the hash key for a user's location record.
func locationKey(userID int64) string {
	return locationKeyPrefix + strconv.FormatInt(userID, 10)
}

// score converts a time to a sorted-set score with millisecond precision.
func score(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

// Put stores or replaces a user's latest position and returns the
// normalized record (missing RecordedAt defaulted to now, timestamps
// truncated to millisecond precision).
//
// The write applies four effects in one MULTI/EXEC round trip: the record
// hash is replaced (DEL then HSET, so absent optional fields do not linger
// from a prior write), its TTL is refreshed, the active index score is
// updated, and the user is (re-)enqueued for sync. Last write wins by
// arrival order regardless of RecordedAt.
func (s *Store) Put(ctx context.Context, userID int64, loc *models.LocationRecord) (rec *models.LocationRecord, err error) {
	defer func(start time.Time) { metrics.ObserveCacheOp("put", start, err) }(s.now())

	now := msTrunc(s.now())
	normalized := *loc
	normalized.UserID = userID
	normalized.UpdatedAt = now
	if normalized.RecordedAt.IsZero() {
		normalized.RecordedAt = now
	} else {
		normalized.RecordedAt = msTrunc(normalized.RecordedAt)
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, unavailable("put", err)
	}
	defer closeConn(conn)

	key := locationKey(userID)
	args := hashArgs(key, &normalized)

	if err = conn.Send("MULTI"); err != nil {
		return nil, unavailable("put", err)
	}
	// DEL before HSET so the hash is a full replacement, not a merge.
	conn.Send("DEL", key)
	conn.Send(args[0].(string), args[1:]...)
	conn.Send("EXPIRE", key, int(s.ttl/time.Second))
	conn.Send("ZADD", activeUsersKey, score(now), userID)
	conn.Send("ZADD", syncQueueKey, score(now), userID)
	if _, err = conn.Do("EXEC"); err != nil {
		return nil, unavailable("put", err)
	}

	return &normalized, nil
}

// Get returns a user's live location record, or (nil, nil) when no
// non-expired record exists. The caller owns any durable-store fallback.
func (s *Store) Get(ctx context.Context, userID int64) (rec *models.LocationRecord, err error) {
	defer func(start time.Time) { metrics.ObserveCacheOp("get", start, err) }(s.now())

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, unavailable("get", err)
	}
	defer closeConn(conn)

	data, err := redis.StringMap(conn.Do("HGETALL", locationKey(userID)))
	if err != nil {
		return nil, unavailable("get", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return parseRecord(data), nil
}

// GetMany returns the live records for the given users in a single
// pipelined round trip. Users without data are omitted from the result.
func (s *Store) GetMany(ctx context.Context, userIDs []int64) (recs map[int64]*models.LocationRecord, err error) {
	defer func(start time.Time) { metrics.ObserveCacheOp("get_many", start, err) }(s.now())

	recs = make(map[int64]*models.LocationRecord, len(userIDs))
	if len(userIDs) == 0 {
		return recs, nil
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, unavailable("get_many", err)
	}
	defer closeConn(conn)

	for _, id := range userIDs {
		if err = conn.Send("HGETALL", locationKey(id)); err != nil {
			return nil, unavailable("get_many", err)
		}
	}
	if err = conn.Flush(); err != nil {
		return nil, unavailable("get_many", err)
	}
	for _, id := range userIDs {
		data, rerr := redis.StringMap(conn.Receive())
		if rerr != nil {
			err = unavailable("get_many", rerr)
			return nil, err
		}
		if len(data) > 0 {
			recs[id] = parseRecord(data)
		}
	}
	return recs, nil
}

// ListActive returns the limit most-recently-active users starting at
// offset, ordered by recency descending.
func (s *Store) ListActive(ctx context.Context, limit, offset int) (users []models.ActiveUser, err error) {
	defer func(start time.Time) { metrics.ObserveCacheOp("list_active", start, err) }(s.now())

	if limit <= 0 {
		return nil, nil
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, unavailable("list_active", err)
	}
	defer closeConn(conn)

	values, err := redis.Values(conn.Do("ZREVRANGE", activeUsersKey, offset, offset+limit-1, "WITHSCORES"))
	if err != nil {
		return nil, unavailable("list_active", err)
	}

	users = make([]models.ActiveUser, 0, len(values)/2)
	for i := 0; i+1 < len(values); i += 2 {
		id, ierr := redis.Int64(values[i], nil)
		if ierr != nil {
			return nil, fmt.Errorf("parse active user id: %w", ierr)
		}
		sc, serr := redis.Float64(values[i+1], nil)
		if serr != nil {
			return nil, fmt.Errorf("parse active user score: %w", serr)
		}
		users = append(users, models.ActiveUser{
			UserID:     id,
			LastUpdate: time.UnixMilli(int64(sc * 1000)).UTC(),
		})
	}
	return users, nil
}

// CountActive returns the cardinality of the active index in O(1).
func (s *Store) CountActive(ctx context.Context) (n int64, err error) {
	defer func(start time.Time) { metrics.ObserveCacheOp("count_active", start, err) }(s.now())

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return 0, unavailable("count_active", err)
	}
	defer closeConn(conn)

	n, err = redis.Int64(conn.Do("ZCARD", activeUsersKey))
	if err != nil {
		return 0, unavailable("count_active", err)
	}
	metrics.ActiveUsers.Set(float64(n))
	return n, nil
}

// PendingSyncCount returns the number of users with unsynced changes.
func (s *Store) PendingSyncCount(ctx context.Context) (n int64, err error) {
	defer func(start time.Time) { metrics.ObserveCacheOp("pending_sync_count", start, err) }(s.now())

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return 0, unavailable("pending_sync_count", err)
	}
	defer closeConn(conn)

	n, err = redis.Int64(conn.Do("ZCARD", syncQueueKey))
	if err != nil {
		return 0, unavailable("pending_sync_count", err)
	}
	metrics.SyncQueueDepth.Set(float64(n))
	return n, nil
}

// DrainSyncQueue returns up to limit user ids from the sync queue, oldest
// enqueue time first. Entries are NOT removed; callers remove them with
// MarkSynced after the durable upsert succeeds, so a failed sync leaves the
// user queued for the next cycle.
func (s *Store) DrainSyncQueue(ctx context.Context, limit int) (userIDs []int64, err error) {
	defer func(start time.Time) { metrics.ObserveCacheOp("drain", start, err) }(s.now())

	if limit <= 0 {
		return nil, nil
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, unavailable("drain", err)
	}
	defer closeConn(conn)

	userIDs, err = redis.Int64s(conn.Do("ZRANGE", syncQueueKey, 0, limit-1))
	if err != nil {
		return nil, unavailable("drain", err)
	}
	return userIDs, nil
}

// MarkSynced removes the given users from the sync queue. Removing an
// already-absent id is a no-op, so the call is idempotent.
func (s *Store) MarkSynced(ctx context.Context, userIDs []int64) (err error) {
	defer func(start time.Time) { metrics.ObserveCacheOp("mark_synced", start, err) }(s.now())

	if len(userIDs) == 0 {
		return nil
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return unavailable("mark_synced", err)
	}
	defer closeConn(conn)

	args := redis.Args{}.Add(syncQueueKey).AddFlat(userIDs)
	if _, err = conn.Do("ZREM", args...); err != nil {
		return unavailable("mark_synced", err)
	}
	return nil
}

// EvictExpired prunes active-index entries whose last update is older than
// now-TTL and returns the number removed. The location hashes expire on
// their own; this only keeps the index from accumulating stale entries.
// The sync queue is deliberately untouched: an unsynced change survives
// until synced even if the user goes inactive.
func (s *Store) EvictExpired(ctx context.Context) (removed int, err error) {
	defer func(start time.Time) { metrics.ObserveCacheOp("evict", start, err) }(s.now())

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return 0, unavailable("evict", err)
	}
	defer closeConn(conn)

	// Exclusive bound: an entry exactly TTL old is not yet expired.
	cutoff := "(" + strconv.FormatFloat(score(s.now().Add(-s.ttl)), 'f', -1, 64)
	removed, err = redis.Int(conn.Do("ZREMRANGEBYSCORE", activeUsersKey, "-inf", cutoff))
	if err != nil {
		return 0, unavailable("evict", err)
	}
	return removed, nil
}

// Delete removes a user's record, active-index entry, and queue entry in
// one MULTI/EXEC round trip; used for explicit data-deletion requests.
func (s *Store) Delete(ctx context.Context, userID int64) (err error) {
	defer func(start time.Time) { metrics.ObserveCacheOp("delete", start, err) }(s.now())

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return unavailable("delete", err)
	}
	defer closeConn(conn)

	if err = conn.Send("MULTI"); err != nil {
		return unavailable("delete", err)
	}
	conn.Send("DEL", locationKey(userID))
	conn.Send("ZREM", activeUsersKey, userID)
	conn.Send("ZREM", syncQueueKey, userID)
	if _, err = conn.Do("EXEC"); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Ping verifies store connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return unavailable("ping", err)
	}
	defer closeConn(conn)

	if _, err := conn.Do("PING"); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// hashArgs builds the HSET argument list for a normalized record. Optional
// nil fields are omitted entirely; combined with the preceding DEL this
// makes them read back as absent, not zero.
func hashArgs(key string, rec *models.LocationRecord) redis.Args {
	args := redis.Args{}.Add("HSET", key,
		fieldUserID, rec.UserID,
		fieldLatitude, rec.Latitude,
		fieldLongitude, rec.Longitude,
		fieldRecordedAt, rec.RecordedAt.UnixMilli(),
		fieldUpdatedAt, rec.UpdatedAt.UnixMilli(),
	)
	if rec.Altitude != nil {
		args = args.Add(fieldAltitude, *rec.Altitude)
	}
	if rec.Accuracy != nil {
		args = args.Add(fieldAccuracy, *rec.Accuracy)
	}
	if rec.Speed != nil {
		args = args.Add(fieldSpeed, *rec.Speed)
	}
	if rec.Heading != nil {
		args = args.Add(fieldHeading, *rec.Heading)
	}
	return args
}

// parseRecord rebuilds a record from its hash fields. An unparseable
// recorded_at falls back to updated_at, then to the zero time; rows are
// never rejected on read.
func parseRecord(data map[string]string) *models.LocationRecord {
	rec := &models.LocationRecord{}
	rec.UserID, _ = strconv.ParseInt(data[fieldUserID], 10, 64)
	rec.Latitude, _ = strconv.ParseFloat(data[fieldLatitude], 64)
	rec.Longitude, _ = strconv.ParseFloat(data[fieldLongitude], 64)
	rec.Altitude = parseOptional(data, fieldAltitude)
	rec.Accuracy = parseOptional(data, fieldAccuracy)
	rec.Speed = parseOptional(data, fieldSpeed)
	rec.Heading = parseOptional(data, fieldHeading)

	if ms, err := strconv.ParseInt(data[fieldUpdatedAt], 10, 64); err == nil {
		rec.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(data[fieldRecordedAt], 10, 64); err == nil {
		rec.RecordedAt = time.UnixMilli(ms).UTC()
	} else {
		rec.RecordedAt = rec.UpdatedAt
	}
	return rec
}

// parseOptional returns a pointer to the parsed field value, or nil when
// the field is absent or malformed.
func parseOptional(data map[string]string, field string) *float64 {
	raw, ok := data[field]
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

// msTrunc truncates a time to millisecond precision in UTC, the resolution
// stored in the cache hash.
func msTrunc(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// closeConn returns a connection to the pool, ignoring the close error:
// the pool discards broken connections itself.
func closeConn(conn redis.Conn) {
	_ = conn.Close()
}
