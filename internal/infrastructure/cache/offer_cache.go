package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/redis/go-redis/v9"
)

// ---------------------------------------------------------------------------
// In-memory
// ---------------------------------------------------------------------------

type offerEntry struct {
	offers    []pricing.PublicOffer
	expiresAt time.Time
}

// InMemoryOfferCache caches storefront offers per country with a TTL.
type InMemoryOfferCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]offerEntry
	now     func() time.Time
}

// NewInMemoryOfferCache creates a cache whose entries live for ttl
func NewInMemoryOfferCache(ttl time.Duration) *InMemoryOfferCache {
	return &InMemoryOfferCache{
		ttl:     ttl,
		entries: make(map[string]offerEntry),
		now:     time.Now,
	}
}

func (c *InMemoryOfferCache) Get(_ context.Context, country string) ([]pricing.PublicOffer, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[strings.ToUpper(country)]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.offers, true, nil
}

func (c *InMemoryOfferCache) Set(_ context.Context, country string, offers []pricing.PublicOffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[strings.ToUpper(country)] = offerEntry{offers: offers, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *InMemoryOfferCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]offerEntry)
	c.mu.Unlock()
	return nil
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

const defaultOfferPrefix = "simfly:offers:"

// RedisOfferCache stores JSON-encoded offers under a generation number.
// InvalidateAll bumps the generation so every instance misses at once and
// old keys expire on their own.
type RedisOfferCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisOfferCache wraps an existing client
func NewRedisOfferCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisOfferCache {
	if prefix == "" {
		prefix = defaultOfferPrefix
	}
	return &RedisOfferCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisOfferCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.prefix+"generation").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisOfferCache) key(gen int64, country string) string {
	return fmt.Sprintf("%sv%d:%s", c.prefix, gen, strings.ToUpper(country))
}

func (c *RedisOfferCache) Get(ctx context.Context, country string) ([]pricing.PublicOffer, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read offer cache generation: %w", err)
	}
	raw, err := c.client.Get(ctx, c.key(gen, country)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read offer cache: %w", err)
	}

	var offers []pricing.PublicOffer
	if err := json.Unmarshal(raw, &offers); err != nil {
		return nil, false, fmt.Errorf("corrupt offer cache entry: %w", err)
	}
	return offers, true, nil
}

func (c *RedisOfferCache) Set(ctx context.Context, country string, offers []pricing.PublicOffer) error {
	gen, err := c.generation(ctx)
	if err != nil {
		return fmt.Errorf("failed to read offer cache generation: %w", err)
	}
	raw, err := json.Marshal(offers)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(gen, country), raw, c.ttl).Err()
}

func (c *RedisOfferCache) InvalidateAll(ctx context.Context) error {
	return c.client.Incr(ctx, c.prefix+"generation").Err()
}

var (
	_ pricing.OfferCache = (*InMemoryOfferCache)(nil)
	_ pricing.OfferCache = (*RedisOfferCache)(nil)
)
