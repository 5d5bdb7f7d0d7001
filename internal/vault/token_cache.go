package vault

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// refreshMargin is the minimum remaining validity for a cached token to be reused.
const refreshMargin = 60 * time.Second

// FetchFunc performs a fresh login and returns the token and its lifetime.
type FetchFunc func(ctx context.Context) (token string, expiresIn time.Duration, err error)

// TokenCache holds the vault bearer token. Concurrent refreshes collapse into
// a single login.
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	group     singleflight.Group
	now       func() time.Time
}

// NewTokenCache returns an empty cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// Token returns the cached token if it has more than refreshMargin left,
// otherwise calls fetch once for all waiting callers. The shared fetch runs
// detached from any one caller's cancellation; each caller still stops
// waiting when its own ctx is done.
func (c *TokenCache) Token(ctx context.Context, fetch FetchFunc) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("token", func() (any, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}
		token, expiresIn, err := fetch(fetchCtx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = token
		c.expiresAt = c.now().Add(expiresIn)
		c.mu.Unlock()
		return token, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next call re-authenticates.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" || c.expiresAt.Sub(c.now()) <= refreshMargin {
		return "", false
	}
	return c.token, true
}
