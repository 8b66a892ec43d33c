// Package services – ResultCache
//
// ResultCache is an optional read-through layer in front of the report store
// holding the most recent Ready report per (user, fingerprint). Ready reports
// never change, so an entry can only be superseded by a newer Ready report,
// which overwrites it. Misses and cache errors fall through to the store.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-report-backend/internal/domain"
)

// ResultCache caches the latest Ready report per (user, fingerprint key).
type ResultCache interface {
	// Get returns the cached report, or (nil, nil) on a miss.
	Get(ctx context.Context, userID, fingerprintKey string) (*domain.Report, error)
	// Put stores r, which must be Ready, under its own user and fingerprint key.
	Put(ctx context.Context, r *domain.Report) error
}

// DefaultResultCacheTTL bounds how long an entry lives without being rewritten.
const DefaultResultCacheTTL = 24 * time.Hour

// RedisResultCache implements ResultCache on Redis.
type RedisResultCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisResultCache connects to redisURL and verifies the connection.
func NewRedisResultCache(redisURL string, ttl time.Duration) (*RedisResultCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisResultCacheWithClient(client, ttl), nil
}

// NewRedisResultCacheWithClient wraps an existing client.
func NewRedisResultCacheWithClient(client *redis.Client, ttl time.Duration) *RedisResultCache {
	if ttl <= 0 {
		ttl = DefaultResultCacheTTL
	}
	return &RedisResultCache{client: client, prefix: "report:ready:", ttl: ttl}
}

// key hashes the fingerprint key, which may be long and contain any text.
func (c *RedisResultCache) key(userID, fingerprintKey string) string {
	sum := sha256.Sum256([]byte(fingerprintKey))
	return c.prefix + userID + ":" + hex.EncodeToString(sum[:])
}

// cachedReport carries the fields domain.Report hides from JSON.
type cachedReport struct {
	domain.Report
	FingerprintKey string `json:"fingerprint_key"`
}

// Get implements ResultCache.
func (c *RedisResultCache) Get(ctx context.Context, userID, fingerprintKey string) (*domain.Report, error) {
	raw, err := c.client.Get(ctx, c.key(userID, fingerprintKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup cached report: %w", err)
	}
	var cr cachedReport
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("unmarshal cached report: %w", err)
	}
	// Guard against hash collisions and foreign entries.
	if cr.UserID != userID || cr.FingerprintKey != fingerprintKey || cr.Status != domain.StatusReady {
		return nil, nil
	}
	r := cr.Report
	r.FingerprintKey = cr.FingerprintKey
	return &r, nil
}

// Put implements ResultCache.
func (c *RedisResultCache) Put(ctx context.Context, r *domain.Report) error {
	if r == nil || r.Status != domain.StatusReady {
		return errors.New("only ready reports are cached")
	}
	raw, err := json.Marshal(cachedReport{Report: *r, FingerprintKey: r.FingerprintKey})
	if err != nil {
		return fmt.Errorf("marshal cached report: %w", err)
	}
	if err := c.client.Set(ctx, c.key(r.UserID, r.FingerprintKey), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("save cached report: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *RedisResultCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisResultCache) Close() error {
	return c.client.Close()
}
