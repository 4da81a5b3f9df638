package rules

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/authsync/internal/tenant"
)

// Cache is a per-tenant in-process cache in front of another Store. Entries
// expire after ttl; Invalidate drops them early. A zero ttl never expires.
type Cache struct {
	next Store
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	rules   []LinkingRule
	expires time.Time
}

// NewCache wraps next.
func NewCache(next Store, ttl time.Duration) *Cache {
	return &Cache{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) ListRules(ctx context.Context) ([]LinkingRule, error) {
	key, _ := tenant.FromContext(ctx)

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && (c.ttl == 0 || c.now().Before(e.expires)) {
		return e.rules, nil
	}

	rs, err := c.next.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{rules: rs, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return rs, nil
}

func (c *Cache) RulesForAuthorityField(ctx context.Context, tag string) ([]LinkingRule, error) {
	return listFiltered(ctx, c.ListRules, func(r LinkingRule) bool { return r.AuthorityField == tag })
}

func (c *Cache) RulesForBibField(ctx context.Context, tag string) ([]LinkingRule, error) {
	return listFiltered(ctx, c.ListRules, func(r LinkingRule) bool { return r.BibField == tag })
}

// Invalidate drops the cached rules of tenant id.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
