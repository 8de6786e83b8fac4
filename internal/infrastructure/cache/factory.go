package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/shared"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/auth"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores bundles the cache-backed components used by the HTTP layer.
type Stores struct {
	Idempotency shared.IdempotencyStore
	Offers      pricing.OfferCache
	Revocations auth.TokenBlacklist
	client      *redis.Client
}

// Close releases the idempotency sweeper and the Redis connection
func (s *Stores) Close() error {
	err := s.Idempotency.Close()
	if s.client != nil {
		if cerr := s.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// NewRedisClient connects and pings Redis
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewStores uses Redis when configured and falls back to in-memory stores
// otherwise or when Redis cannot be reached. In production an unreachable
// configured Redis is an error.
func NewStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Stores, error) {
	if cfg.Redis.Enabled() {
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err == nil {
			log.Info("using Redis caches", zap.String("addr", cfg.Redis.Addr()))
			return &Stores{
				Idempotency: NewRedisIdempotencyStore(client, ""),
				Offers:      NewRedisOfferCache(client, "", cfg.Pricing.CacheTTL),
				Revocations: auth.NewRedisTokenBlacklist(client),
				client:      client,
			}, nil
		}
		if cfg.App.IsProduction() {
			return nil, err
		}
		log.Warn("Redis unavailable, falling back to in-memory caches", zap.Error(err))
	}

	return &Stores{
		Idempotency: NewInMemoryIdempotencyStore(0),
		Offers:      NewInMemoryOfferCache(cfg.Pricing.CacheTTL),
		Revocations: auth.NewInMemoryTokenBlacklist(),
	}, nil
}
