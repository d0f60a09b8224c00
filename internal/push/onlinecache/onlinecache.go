// Package onlinecache wraps the Online collaborator with a local,
// TTL-bounded L1 cache so a hot conversation's fanout doesn't hammer
// Online/Redis with the same batch_get_online_status lookups on every
// push cycle (section 4.5/4.4 interplay).
package onlinecache

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Config bounds the L1 cache's size and freshness.
type Config struct {
	L1TTL  time.Duration `env:"PUSH_ONLINECACHE_L1_TTL" env-default:"5m"`
	L1Size int           `env:"PUSH_ONLINECACHE_L1_SIZE" env-default:"8192"`
}

// Cache is an L1-over-Online read-through cache. It never owns presence
// state, only a short-lived view of it; Online remains authoritative.
type Cache struct {
	online ports.Online
	l1     *lru.LRU[string, ports.OnlineStatus]
}

// New wraps online with an L1 cache sized per cfg.
func New(online ports.Online, cfg Config) *Cache {
	if cfg.L1Size <= 0 {
		cfg.L1Size = 8192
	}
	if cfg.L1TTL <= 0 {
		cfg.L1TTL = 5 * time.Minute
	}
	return &Cache{online: online, l1: lru.NewLRU[string, ports.OnlineStatus](cfg.L1Size, nil, cfg.L1TTL)}
}

// BatchGetOnlineStatus serves as many user ids as possible from L1,
// falling through to Online only for the misses, then backfills L1.
func (c *Cache) BatchGetOnlineStatus(ctx context.Context, userIDs []string) (map[string]ports.OnlineStatus, error) {
	result := make(map[string]ports.OnlineStatus, len(userIDs))
	var missing []string
	for _, id := range userIDs {
		if st, ok := c.l1.Get(id); ok {
			result[id] = st
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := c.online.GetOnlineStatus(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, st := range fetched {
		c.l1.Add(id, st)
		result[id] = st
	}
	return result, nil
}

// IsOnline reports one user's reachability, using the same L1 path as
// BatchGetOnlineStatus.
func (c *Cache) IsOnline(ctx context.Context, userID string) (bool, error) {
	statuses, err := c.BatchGetOnlineStatus(ctx, []string{userID})
	if err != nil {
		return false, err
	}
	return statuses[userID].Online, nil
}

// Invalidate drops a user from L1, for callers that learn of a status
// change out of band (e.g. a Logout they triggered themselves).
func (c *Cache) Invalidate(userID string) {
	c.l1.Remove(userID)
}
