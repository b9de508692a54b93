package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenFetchFunc exchanges a long-lived credential for a short-lived
// access token at the provider.
type TokenFetchFunc func(ctx context.Context, credential string) (string, error)

type tokenEntry struct {
	token     string
	expiresAt time.Time
}

// TokenCache caches access tokens per credential with a fixed TTL.
// Concurrent callers sharing a credential coordinate on refresh through a
// singleflight group so the provider sees one token request, not N.
type TokenCache struct {
	mu      sync.Mutex
	entries map[string]tokenEntry
	ttl     time.Duration
	fetch   TokenFetchFunc
	group   singleflight.Group
	now     func() time.Time
}

// NewTokenCache creates a token cache. The TTL should sit slightly under
// the provider's actual token lifetime.
func NewTokenCache(ttl time.Duration, fetch TokenFetchFunc) *TokenCache {
	return &TokenCache{
		entries: make(map[string]tokenEntry),
		ttl:     ttl,
		fetch:   fetch,
		now:     time.Now,
	}
}

// Token returns a cached access token for the credential, refreshing it
// through the fetch function when missing or expired.
func (c *TokenCache) Token(ctx context.Context, credential string) (string, error) {
	if token, ok := c.lookup(credential); ok {
		return token, nil
	}

	result, err, _ := c.group.Do(credential, func() (interface{}, error) {
		// A concurrent caller may have refreshed while we waited.
		if token, ok := c.lookup(credential); ok {
			return token, nil
		}

		token, err := c.fetch(ctx, credential)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.entries[credential] = tokenEntry{
			token:     token,
			expiresAt: c.now().Add(c.ttl),
		}
		c.mu.Unlock()

		return token, nil
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

// Evict drops the cached token for a credential, forcing a refresh on the
// next Token call. Called after the provider rejects the token.
func (c *TokenCache) Evict(credential string) {
	c.mu.Lock()
	delete(c.entries, credential)
	c.mu.Unlock()
}

func (c *TokenCache) lookup(credential string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[credential]
	if !ok || c.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.token, true
}
