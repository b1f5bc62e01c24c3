// Package cache puts a Redis cache-aside layer in front of product metadata lookups.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"productsearch/internal/catalog"
	"productsearch/internal/contextutil"
)

// RedisOptions configures the Redis client.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisClient creates a Redis client. It does not connect until first use.
func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// productModel is the cached JSON shape.
type productModel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	Price         string `json:"price"`
	About         string `json:"about"`
	Specification string `json:"specification"`
	ImageField    string `json:"image_field"`
}

func toModel(p catalog.Product) productModel {
	return productModel{
		ID:            p.ID,
		Name:          p.Name,
		Category:      p.Category,
		Price:         p.Price,
		About:         p.About,
		Specification: p.Specification,
		ImageField:    p.ImageField,
	}
}

func (m productModel) toProduct() catalog.Product {
	return catalog.Product{
		ID:            m.ID,
		Name:          m.Name,
		Category:      m.Category,
		Price:         m.Price,
		About:         m.About,
		Specification: m.Specification,
		ImageField:    m.ImageField,
	}
}

// RedisProductCache caches products by id with a fixed TTL.
type RedisProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProductCache creates a new RedisProductCache.
func NewRedisProductCache(client *redis.Client, ttl time.Duration) *RedisProductCache {
	return &RedisProductCache{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (r *RedisProductCache) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// GetProducts returns the cached products among ids. Misses are simply absent from the map.
func (r *RedisProductCache) GetProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(ids) == 0 {
		return map[string]catalog.Product{}, nil
	}

	keys := buildProductCacheKeys(ids)
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis MGET failed: %w", err)
	}

	result := make(map[string]catalog.Product, len(values))
	for i, val := range values {
		data, err := redisValueToBytes(val, keys[i])
		if err != nil {
			logger.WarnContext(ctx, "unexpected cache value", "key", keys[i], "error", err)
		}
		if data == nil {
			continue // cache miss
		}

		var model productModel
		if err := json.Unmarshal(data, &model); err != nil {
			logger.WarnContext(ctx, "cache unmarshal failed", "key", keys[i], "error", err)
			continue
		}

		if model.ID != ids[i] {
			logger.WarnContext(ctx, "cache id mismatch", "key_id", ids[i], "model_id", model.ID)
			if err := r.client.Del(ctx, keys[i]).Err(); err != nil {
				logger.WarnContext(ctx, "redis DEL failed", "key", keys[i], "error", err)
			}
			continue
		}
		result[ids[i]] = model.toProduct()
	}

	return result, nil
}

// SetProducts caches products in one pipeline. Individual failures are logged, not returned.
func (r *RedisProductCache) SetProducts(ctx context.Context, products []catalog.Product) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(products) == 0 {
		return nil
	}

	pipeline := r.client.Pipeline()
	for _, p := range products {
		data, err := json.Marshal(toModel(p))
		if err != nil {
			logger.WarnContext(ctx, "failed to marshal product for caching", "product_id", p.ID, "error", err)
			continue
		}
		pipeline.Set(ctx, productKey(p.ID), data, r.ttl)
	}

	if _, err := pipeline.Exec(ctx); err != nil {
		logger.WarnContext(ctx, "cache pipeline failed", "count", len(products), "error", err)
	}
	return nil
}

// DeleteProducts evicts products by id.
func (r *RedisProductCache) DeleteProducts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, buildProductCacheKeys(ids)...).Err(); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "redis DEL failed", "count", len(ids), "error", err)
	}
	return nil
}

func buildProductCacheKeys(ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	return keys
}

func productKey(id string) string {
	return "product:" + id
}

// redisValueToBytes converts an MGET value to bytes. nil is a cache miss.
func redisValueToBytes(val any, key string) ([]byte, error) {
	switch v := val.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected Redis value type for key %s: %T", key, val)
	}
}
