package speech

import (
	"context"
	"sync"
	"time"
)

// DefaultRefreshAhead is how long before expiry a token is refreshed
// proactively.
const DefaultRefreshAhead = time.Hour

// RefreshFunc fetches a fresh token and reports when it expires.
type RefreshFunc func(ctx context.Context) (token string, expiry time.Time, err error)

// TokenCache caches a provider auth token and refreshes it before expiry.
//
// Refresh is double-checked under the lock so concurrent callers hitting an
// expired cache trigger exactly one refresh. Safe for concurrent use.
type TokenCache struct {
	refresh RefreshFunc
	ahead   time.Duration
	now     func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenCache creates a TokenCache over refresh with the default
// proactive-refresh window. Use SetRefreshAhead for tokens shorter-lived
// than an hour.
func NewTokenCache(refresh RefreshFunc) *TokenCache {
	return &TokenCache{refresh: refresh, ahead: DefaultRefreshAhead, now: time.Now}
}

// SetRefreshAhead overrides the proactive-refresh window.
func (c *TokenCache) SetRefreshAhead(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ahead = d
}

// Token returns the cached token, refreshing it first when it is within
// the refresh-ahead window of expiry.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Add(c.ahead).Before(c.expiry) {
		return c.token, nil
	}
	token, expiry, err := c.refresh(ctx)
	if err != nil {
		// A still-valid stale token beats a hard failure.
		if c.token != "" && c.now().Before(c.expiry) {
			return c.token, nil
		}
		return "", err
	}
	c.token = token
	c.expiry = expiry
	return token, nil
}

// Invalidate drops the cached token so the next Token call refreshes.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiry = time.Time{}
}
