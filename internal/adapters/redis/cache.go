package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bookgrid/availability-engine/internal/domain"
	"github.com/bookgrid/availability-engine/internal/scheduling"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// SetHoldGuard is a SETNX fast-path in front of the conditional day
// update: it cheaply rejects obvious contention before the database is
// touched. It is advisory only; the day grid remains the authority.
func (c *Cache) SetHoldGuard(ctx context.Context, resourceID uuid.UUID, date time.Time, holder uuid.UUID, ttl time.Duration) (bool, error) {
	key := "hold:" + resourceID.String() + ":" + date.Format("2006-01-02")
	res := c.client.SetNX(ctx, key, holder.String(), ttl)
	if res.Err() != nil {
		return false, res.Err()
	}
	if res.Val() {
		return true, nil
	}
	// Same holder re-guarding is not contention.
	cur, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return cur == holder.String(), nil
}

func (c *Cache) DropHoldGuard(ctx context.Context, resourceID uuid.UUID, date time.Time) {
	c.client.Del(ctx, "hold:"+resourceID.String()+":"+date.Format("2006-01-02"))
}

// CachedCatalog caches property settings in front of a slower catalog.
type CachedCatalog struct {
	inner scheduling.PropertyCatalog
	cache *Cache
	ttl   time.Duration
}

func NewCachedCatalog(inner scheduling.PropertyCatalog, cache *Cache, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{inner: inner, cache: cache, ttl: ttl}
}

func (c *CachedCatalog) GetProperty(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	key := "prop:" + id.String()
	if val, err := c.cache.client.Get(ctx, key).Bytes(); err == nil {
		var p domain.Property
		if json.Unmarshal(val, &p) == nil {
			return &p, nil
		}
	}

	p, err := c.inner.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(p); err == nil {
		c.cache.client.Set(ctx, key, data, c.ttl)
	}
	return p, nil
}
