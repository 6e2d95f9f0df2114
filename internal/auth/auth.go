// Package auth supplies the portal session credential that authenticated
// probes send as a cookie.
package auth

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CookieName is the session cookie issued by the accounts service.
const CookieName = "skynet-jwt"

// Provider returns a credential usable as a Cookie header value. An empty
// credential with a nil error means the portal does not require one.
type Provider interface {
	Credential(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function into a Provider.
type ProviderFunc func(context.Context) (string, error)

func (f ProviderFunc) Credential(ctx context.Context) (string, error) { return f(ctx) }

// Static always returns the same credential.
type Static string

func (s Static) Credential(context.Context) (string, error) { return string(s), nil }

// None is a provider for portals without accounts.
var None Provider = Static("")

// Cookie formats a raw token as a session cookie. Values that already look
// like name=value pairs are returned unchanged.
func Cookie(token string) string {
	token = strings.TrimSpace(token)
	if token == "" || strings.Contains(token, "=") {
		return token
	}
	return CookieName + "=" + token
}

// Cached fetches the credential once and shares it. Concurrent first calls
// share one upstream fetch; failures are not cached.
type Cached struct {
	next Provider

	group singleflight.Group
	mu    sync.RWMutex
	value string
	ok    bool
}

func NewCached(next Provider) *Cached {
	return &Cached{next: next}
}

func (c *Cached) Credential(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.ok {
		defer c.mu.RUnlock()
		return c.value, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("credential", func() (any, error) {
		c.mu.RLock()
		if c.ok {
			defer c.mu.RUnlock()
			return c.value, nil
		}
		c.mu.RUnlock()

		s, err := c.next.Credential(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.value, c.ok = s, true
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Reset drops the cached credential so the next call fetches a fresh one.
func (c *Cached) Reset() {
	c.mu.Lock()
	c.value, c.ok = "", false
	c.mu.Unlock()
}
