package perm

import (
	"context"
	"sync"
	"time"

	"github.com/ehrma/signalcore/models"
)

const (
	cacheTTL = 30 * time.Second
	// cacheSweepEvery bounds how often a write piggybacks a full prune of
	// stale entries — cheaper than a dedicated sweep goroutine given how
	// often permission lookups already happen on the hub's hot path.
	cacheSweepEvery = 256
)

type permCacheEntry struct {
	value     models.PermissionSet
	expiresAt time.Time
}

// resultCache memoizes resolved permission sets keyed by "userID:serverID:channelID".
// Staleness is cleared lazily rather than by a background sweep goroutine:
// Get drops an expired entry the instant it's touched, and every
// cacheSweepEvery-th Set triggers a full prune so entries nobody ever looks
// up again still get collected, with nothing to shut down on exit.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]permCacheEntry
	writes  uint64
}

func newResultCache() *resultCache {
	return &resultCache{entries: make(map[string]permCacheEntry)}
}

func (c *resultCache) get(key string) (models.PermissionSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *resultCache) set(key string, value models.PermissionSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = permCacheEntry{value: value, expiresAt: time.Now().Add(cacheTTL)}
	c.writes++
	if c.writes%cacheSweepEvery == 0 {
		c.pruneLocked()
	}
}

func (c *resultCache) pruneLocked() {
	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// deleteMatching drops every entry whose key satisfies predicate, used to
// invalidate cached results for a user, server, or channel after a mutation.
func (c *resultCache) deleteMatching(predicate func(key string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if predicate(key) {
			delete(c.entries, key)
		}
	}
}

// CachedResolver wraps Resolver with resultCache so repeated permission
// checks on the same user/channel pair within the TTL window don't re-walk
// the channel tree on every broadcast.
type CachedResolver struct {
	resolver *Resolver
	cache    *resultCache
}

func NewCachedResolver(resolver *Resolver) *CachedResolver {
	return &CachedResolver{
		resolver: resolver,
		cache:    newResultCache(),
	}
}

func (c *CachedResolver) Resolve(ctx context.Context, userID, serverID, channelID string) (models.PermissionSet, error) {
	key := userID + ":" + serverID + ":" + channelID
	if v, ok := c.cache.get(key); ok {
		return v, nil
	}

	v, err := c.resolver.Resolve(ctx, userID, serverID, channelID)
	if err != nil {
		return nil, err
	}
	c.cache.set(key, v)
	return v, nil
}

// InvalidateUser drops every cached entry for userID, called after its role
// assignments change.
func (c *CachedResolver) InvalidateUser(userID string) {
	c.cache.deleteMatching(func(key string) bool {
		return len(key) >= len(userID) && key[:len(userID)] == userID && key[len(userID)] == ':'
	})
}

// InvalidateServer drops every cached entry for a server, called after a
// role's own permissions or priority change (affects every member).
func (c *CachedResolver) InvalidateServer(serverID string) {
	c.cache.deleteMatching(func(key string) bool {
		return containsSegment(key, serverID)
	})
}

// InvalidateChannel drops every cached entry that resolved against channelID,
// called after a channel permission override changes.
func (c *CachedResolver) InvalidateChannel(channelID string) {
	c.cache.deleteMatching(func(key string) bool {
		return containsSegment(key, channelID)
	})
}

func containsSegment(key, segment string) bool {
	for i := 0; i+len(segment) <= len(key); i++ {
		if key[i:i+len(segment)] == segment {
			return true
		}
	}
	return false
}
