// Package adapters contains user directory implementations that wrap or
// stand in for the real backends.
package adapters

import (
	"context"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/ports"
)

var (
	_ ports.UserLister = (*MemoryUsers)(nil)
	_ ports.UserLister = (*CachedUsers)(nil)
)

// MemoryUsers is a fixed user list.
type MemoryUsers struct {
	users []core.User
}

func NewMemoryUsers(users ...core.User) *MemoryUsers {
	return &MemoryUsers{users: append([]core.User(nil), users...)}
}

// DemoUsers is the directory served by the memory backend.
func DemoUsers() []core.User {
	created := time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC)
	return []core.User{
		{ID: 1, Name: "Ada Lovelace", Email: "ada@example.com", Image: "https://avatars.example.com/ada.png", CreatedAt: created},
		{ID: 2, Name: "Grace Hopper", Email: "grace@example.com", CreatedAt: created},
		{ID: 3, Name: "Alan Turing", Email: "alan@example.com", Image: "https://avatars.example.com/alan.png", CreatedAt: created},
	}
}

func (m *MemoryUsers) ListUsers(context.Context) ([]core.User, error) {
	return append([]core.User(nil), m.users...), nil
}

const usersCacheKey = "users:all"

// CachedUsers memoises the full user list of the wrapped directory.
// Errors are never cached.
type CachedUsers struct {
	next   ports.UserLister
	cache  *cache.LRUCache[[]core.User]
	logger *applog.Logger
}

func NewCachedUsers(next ports.UserLister, ttl time.Duration, logger *applog.Logger) *CachedUsers {
	if logger == nil {
		logger = applog.Nop()
	}
	return &CachedUsers{
		next:   next,
		cache:  cache.NewLRUCache[[]core.User](1, ttl),
		logger: logger.WithComponent(applog.ComponentUsers),
	}
}

func (c *CachedUsers) ListUsers(ctx context.Context) ([]core.User, error) {
	if users, ok := c.cache.Get(usersCacheKey); ok {
		return append([]core.User(nil), users...), nil
	}
	users, err := c.next.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(usersCacheKey, users)
	c.logger.DebugContext(ctx, "User directory refreshed", applog.FieldCount, len(users))
	return append([]core.User(nil), users...), nil
}

// Invalidate drops the cached list.
func (c *CachedUsers) Invalidate() { c.cache.Delete(usersCacheKey) }

// Cache exposes the underlying cache for cleanup and metrics.
func (c *CachedUsers) Cache() *cache.LRUCache[[]core.User] { return c.cache }
