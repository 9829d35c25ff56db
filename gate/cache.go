package gate

import (
	"sync"
	"time"

	"github.com/eldor47/glucosnap/tokencodec"
)

const defaultCacheTTL = 30 * time.Second

// ResultCache memoises successful verifications for a short window. The
// entry TTL is additionally capped by the token's own expiry, so a rotated
// or expiring token is never accepted past its real lifetime plus the TTL.
type ResultCache struct {
	ttl     time.Duration
	nowFunc func() time.Time

	lock    sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	principal Principal
	expiresAt time.Time
}

// NewResultCache creates a verification-result cache. A non-positive ttl
// selects the default (30s).
func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &ResultCache{
		ttl:     ttl,
		nowFunc: time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *ResultCache) get(rawToken string) (Principal, bool) {
	c.lock.RLock()
	entry, ok := c.entries[rawToken]
	c.lock.RUnlock()

	if !ok || c.nowFunc().After(entry.expiresAt) {
		return Principal{}, false
	}
	return entry.principal, true
}

func (c *ResultCache) put(rawToken string, principal Principal) {
	expiresAt := c.nowFunc().Add(c.ttl)

	// Cap by the token's own expiry. Unverified decoding is fine here:
	// the token was just cryptographically verified.
	if decoded, err := tokencodec.Decode(rawToken); err == nil && !decoded.ExpiresAt.IsZero() {
		if decoded.ExpiresAt.Before(expiresAt) {
			expiresAt = decoded.ExpiresAt
		}
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if len(c.entries) > 1024 {
		c.prune()
	}
	c.entries[rawToken] = cacheEntry{principal: principal, expiresAt: expiresAt}
}

// prune drops expired entries; callers hold the write lock.
func (c *ResultCache) prune() {
	now := c.nowFunc()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
