// Package cache memoizes remote account lookups. Account metadata is stable
// enough that refetching it on every cycle and every read path is pure waste;
// correctness relies on explicit invalidation when the account is deleted or
// the bearer token rotates, not on TTL expiry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"tweetwatch/internal/gateway"
	"tweetwatch/internal/metrics"
	"tweetwatch/internal/model"
)

// AccountCache caches account-by-id lookups keyed by (remote id, token
// fingerprint). Concurrent misses for the same key share one gateway call.
type AccountCache struct {
	gw gateway.Gateway

	mu      sync.RWMutex
	entries map[string]model.RemoteAccount
	flight  singleflight.Group
}

func NewAccountCache(gw gateway.Gateway) *AccountCache {
	return &AccountCache{
		gw:      gw,
		entries: make(map[string]model.RemoteAccount),
	}
}

// Get returns the remote account for remoteID, fetching it through the
// gateway on a miss. All concurrent callers for the same key receive the
// same result or the same error.
func (c *AccountCache) Get(ctx context.Context, remoteID int64, token string) (model.RemoteAccount, error) {
	key := cacheKey(remoteID, token)
	c.mu.RLock()
	acc, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return acc, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()
	v, err, _ := c.flight.Do(key, func() (any, error) {
		acc, err := c.gw.LookupAccountByID(ctx, remoteID, token)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = acc
		c.mu.Unlock()
		return acc, nil
	})
	if err != nil {
		return model.RemoteAccount{}, err
	}
	return v.(model.RemoteAccount), nil
}

// Invalidate removes one entry; used after an account is deleted.
func (c *AccountCache) Invalidate(remoteID int64, token string) {
	key := cacheKey(remoteID, token)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateAll empties the cache; used on token rotation or forced refresh.
func (c *AccountCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]model.RemoteAccount)
	c.mu.Unlock()
}

// Len reports the number of cached entries.
func (c *AccountCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cacheKey is content-addressed: the token is fingerprinted so a rotated
// token naturally misses without leaking the token itself into the key.
func cacheKey(remoteID int64, token string) string {
	sum := sha256.Sum256([]byte(token))
	return strconv.FormatInt(remoteID, 10) + ":" + hex.EncodeToString(sum[:8])
}
