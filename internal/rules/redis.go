package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/tenant"
)

// RedisCache shares cached rules between processes. A Redis failure falls
// through to the wrapped store; it never fails a lookup on its own.
type RedisCache struct {
	client *redis.Client
	next   Store
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedisCache wraps next with a Redis cache under keys "<prefix>:<tenant>:linking-rules".
func NewRedisCache(client *redis.Client, next Store, ttl time.Duration, prefix string, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "authsync"
	}
	return &RedisCache{client: client, next: next, ttl: ttl, prefix: prefix, logger: logger}
}

func (c *RedisCache) key(ctx context.Context) string {
	id, ok := tenant.FromContext(ctx)
	if !ok {
		id = "_"
	}
	return fmt.Sprintf("%s:%s:linking-rules", c.prefix, id)
}

func (c *RedisCache) ListRules(ctx context.Context) ([]LinkingRule, error) {
	key := c.key(ctx)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rs []LinkingRule
		if jerr := json.Unmarshal(data, &rs); jerr == nil {
			return rs, nil
		}
		c.logger.Warn("discarding corrupt cached rules", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
	}

	rs, err := c.next.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rs); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return rs, nil
}

func (c *RedisCache) RulesForAuthorityField(ctx context.Context, tag string) ([]LinkingRule, error) {
	return listFiltered(ctx, c.ListRules, func(r LinkingRule) bool { return r.AuthorityField == tag })
}

func (c *RedisCache) RulesForBibField(ctx context.Context, tag string) ([]LinkingRule, error) {
	return listFiltered(ctx, c.ListRules, func(r LinkingRule) bool { return r.BibField == tag })
}

// Invalidate drops the cached rules of the tenant carried by ctx.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key(ctx)).Err()
}
