// Package querycache implements C4: the two-tier query-digest cache that
// sits in front of query expansion. L1 is an in-process LRU; L2 is a
// durable store reached through the L2Store interface so this package stays
// independent of the concrete persistence backend.
package querycache

import (
	"context"
	"time"

	"github.com/creatordisco/discovery/internal/cache"
	"github.com/creatordisco/discovery/internal/normalize"
	"github.com/creatordisco/discovery/pkg/models"
)

const (
	l1Capacity = 1000
	l1TTL      = 5 * time.Minute
	l2TTL      = 24 * time.Hour
)

// L2Store is the durable half of the two-tier cache (§4.4). Implementations
// live in internal/db/gorm.
type L2Store interface {
	// GetExpansion returns the cached expansion for digestKey if it exists
	// and now < expiresAt, and increments its hit counter asynchronously.
	GetExpansion(ctx context.Context, digestKey string) (*models.CachedQueryExpansion, bool, error)
	// PutExpansion upserts the cached expansion for digestKey with a 24h
	// expire-after-write deadline.
	PutExpansion(ctx context.Context, entry models.CachedQueryExpansion) error
}

// Cache is C4: the query-digest cache.
type Cache struct {
	l1 *cache.Cache
	l2 L2Store
}

// New creates a query-digest cache backed by l2.
func New(l2 L2Store) *Cache {
	return &Cache{l1: cache.New(l1Capacity, l1TTL), l2: l2}
}

// Get implements C4's get(raw): probe L1, then L2, installing an L2 hit back
// into L1 before returning. Returns ok=false on a full miss.
func (c *Cache) Get(ctx context.Context, raw string) (models.CachedQueryExpansion, bool, error) {
	digestKey := normalize.Digest(normalize.Normalize(raw))

	if v, ok := c.l1.Get(digestKey); ok {
		return v.(models.CachedQueryExpansion), true, nil
	}

	entry, ok, err := c.l2.GetExpansion(ctx, digestKey)
	if err != nil {
		return models.CachedQueryExpansion{}, false, err
	}
	if !ok {
		return models.CachedQueryExpansion{}, false, nil
	}

	c.l1.Put(digestKey, *entry)
	return *entry, true, nil
}

// Put implements C4's put(raw, queries, tokenCost): install in both tiers
// with a 24h expire-after-write deadline.
func (c *Cache) Put(ctx context.Context, raw string, queries []string, tokenCost int) error {
	normalized := normalize.Normalize(raw)
	digestKey := normalize.Digest(normalized)
	now := time.Now()

	entry := models.CachedQueryExpansion{
		DigestKey:  digestKey,
		Normalized: normalized,
		Queries:    queries,
		TokenCost:  tokenCost,
		CreatedAt:  now,
		ExpiresAt:  now.Add(l2TTL),
	}

	if err := c.l2.PutExpansion(ctx, entry); err != nil {
		return err
	}
	c.l1.Put(digestKey, entry)
	return nil
}

// Stats reports the L1 hit/miss/eviction counters for /admin/stats.
func (c *Cache) Stats() cache.Stats {
	return c.l1.Stats()
}

// Clear empties L1, for /admin/cache/clear. L2 is left intact; it is
// authoritative and self-expires.
func (c *Cache) Clear() {
	c.l1.Clear()
}
