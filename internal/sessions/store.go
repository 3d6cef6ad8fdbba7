// Package sessions wraps the GORM session store with an L1 cache, giving
// C9's materializer a single read path that most requests never have to hit
// the database for.
package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/creatordisco/discovery/internal/cache"
	gormdb "github.com/creatordisco/discovery/internal/db/gorm"
	"github.com/creatordisco/discovery/pkg/models"
)

// defaultL1TTL bounds how long a materialized session can go unverified in
// the L1 cache; §4.9 names a five-minute figure, well under any sane session
// TTL, so a stale cache entry never meaningfully outlives its DB row.
const defaultL1TTL = 5 * time.Minute

// Materialized is a session plus its ranked result rows, the unit this
// package caches and returns.
type Materialized struct {
	Session models.SearchSession
	Results []models.SearchSessionResult
}

// Store wraps gormdb.SearchSessionStore with an in-memory L1 cache keyed by
// sessionID. The database remains authoritative; the L1 only shortcuts
// repeat reads of a session that was just materialized or fetched.
type Store struct {
	db  *gormdb.SearchSessionStore
	l1  *cache.Cache
	ttl time.Duration
}

// NewStore creates a session store with the given sliding-expiry TTL (the
// duration a materialized session stays valid after being read) and L1
// cache capacity, both sourced from CacheConfig/SessionConfig (§6.2).
func NewStore(db *gormdb.SearchSessionStore, ttl time.Duration, l1Capacity int) *Store {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if l1Capacity <= 0 {
		l1Capacity = 1000
	}
	return &Store{
		db:  db,
		l1:  cache.New(l1Capacity, defaultL1TTL),
		ttl: ttl,
	}
}

// FindValid looks up a non-expired session for (queryDigest, platform),
// preferring the L1 cache. Per §4.9's findValidSession, a cache hit still
// verifies in storage that the session exists and is unexpired, and slides
// its expiry forward; a cached entry the DB no longer recognizes is evicted
// and treated as a miss.
func (s *Store) FindValid(ctx context.Context, queryDigest string, platform models.Platform) (*Materialized, bool, error) {
	key := digestCacheKey(queryDigest, platform)
	if cached, ok := s.l1.Get(key); ok {
		m := cached.(Materialized)
		touched, err := s.db.TouchExpiry(ctx, m.Session.SessionID, s.ttl)
		if err != nil {
			return nil, false, fmt.Errorf("touch cached session: %w", err)
		}
		if !touched {
			s.l1.Delete(key)
			s.l1.Delete(sessionCacheKey(m.Session.SessionID))
			return nil, false, nil
		}
		return &m, true, nil
	}

	sess, results, found, err := s.db.FindValid(ctx, queryDigest, platform, s.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("find valid session: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	m := Materialized{Session: *sess, Results: results}
	s.l1.Put(key, m)
	s.l1.Put(sessionCacheKey(sess.SessionID), m)
	return &m, true, nil
}

// Materialize upserts a session and its ranked results (C9's
// createSession/replace step) and refreshes the L1 cache.
func (s *Store) Materialize(ctx context.Context, session models.SearchSession, results []models.SearchSessionResult) (*Materialized, error) {
	sess, err := s.db.CreateOrReplace(ctx, session, results)
	if err != nil {
		return nil, fmt.Errorf("materialize session: %w", err)
	}

	m := Materialized{Session: *sess, Results: results}
	s.l1.Put(digestCacheKey(sess.QueryDigest, sess.Platform), m)
	s.l1.Put(sessionCacheKey(sess.SessionID), m)
	return &m, nil
}

// BySessionID fetches a session by its public ID, used by the
// GET /search/session/{id} and .../filtered endpoints (§4.10's paginate and
// paginateFiltered). A valid read slides the session's expiry forward, same
// as FindValid, since pagination is activity too; an expired or absent
// session returns (nil, nil).
func (s *Store) BySessionID(ctx context.Context, sessionID string) (*Materialized, error) {
	key := sessionCacheKey(sessionID)
	if cached, ok := s.l1.Get(key); ok {
		m := cached.(Materialized)
		touched, err := s.db.TouchExpiry(ctx, sessionID, s.ttl)
		if err != nil {
			return nil, fmt.Errorf("touch cached session: %w", err)
		}
		if !touched {
			s.l1.Delete(key)
			return nil, nil
		}
		return &m, nil
	}

	sess, results, found, err := s.db.FindValidByID(ctx, sessionID, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	if !found {
		return nil, nil
	}

	m := Materialized{Session: *sess, Results: results}
	s.l1.Put(key, m)
	return &m, nil
}

// SweepExpired deletes sessions past their expiresAt (cascading their result
// rows) and returns the count removed. Called by the maintenance service's
// 5-minute tick.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.db.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	if n > 0 {
		s.l1.Clear()
	}
	return n, nil
}

// Stats returns the L1 session cache's hit/miss/eviction counters, surfaced
// through GET /admin/stats (§4.12).
func (s *Store) Stats() cache.Stats {
	return s.l1.Stats()
}

func digestCacheKey(queryDigest string, platform models.Platform) string {
	return "digest:" + string(platform) + ":" + queryDigest
}

func sessionCacheKey(sessionID string) string {
	return "id:" + sessionID
}
