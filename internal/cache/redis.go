package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const scoreKeyPrefix = "tipster:score:"

// RedisCache holds final scores read from detail pages so re-scraping a
// past date does not refetch every detail page.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

type cachedScore struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// GetScore returns the cached final score for a detail link
func (rc *RedisCache) GetScore(ctx context.Context, link string) (int, int, bool, error) {
	raw, err := rc.client.Get(ctx, scoreKeyPrefix+link).Result()
	if errors.Is(err, redis.Nil) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}

	var s cachedScore
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return 0, 0, false, err
	}
	return s.Home, s.Away, true, nil
}

// SetScore stores a final score. Final scores do not change, so the TTL only
// bounds memory.
func (rc *RedisCache) SetScore(ctx context.Context, link string, home, away int) error {
	data, err := json.Marshal(cachedScore{Home: home, Away: away})
	if err != nil {
		return err
	}
	return rc.client.Set(ctx, scoreKeyPrefix+link, data, rc.ttl).Err()
}

// FlushScores removes every cached score
func (rc *RedisCache) FlushScores(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, scoreKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return rc.client.Del(ctx, keys...).Err()
}
