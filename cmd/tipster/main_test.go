package main

import (
	"testing"
	"time"

	"github.com/fortuna/tipster/internal/cache"
	"github.com/fortuna/tipster/internal/config"
	"github.com/go-playground/assert/v2"
	"github.com/redis/go-redis/v9"
)

func TestConnectRedis_GivesUpWithoutFatal(t *testing.T) {
	cfg := config.Config{RedisURL: "redis://127.0.0.1:1", RedisRetries: 1, DetailCacheTTL: time.Hour}
	assert.Equal(t, connectRedis(cfg) == nil, true)

	cfg.RedisURL = "not a url"
	assert.Equal(t, connectRedis(cfg) == nil, true)
}

func TestNewRedisExtras_WithoutRedis(t *testing.T) {
	extras := newRedisExtras(nil)

	// untyped nils, so the consumers' nil checks skip them
	assert.Equal(t, extras.scores == nil, true)
	assert.Equal(t, extras.notifier == nil, true)
	assert.Equal(t, extras.events == nil, true)
	assert.Equal(t, extras.health == nil, true)
	assert.Equal(t, extras.Close(), nil)
}

func TestNewRedisExtras_WithRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	extras := newRedisExtras(cache.NewRedisCacheFromClient(client, time.Hour))

	assert.Equal(t, extras.scores != nil, true)
	assert.Equal(t, extras.notifier != nil, true)
	assert.Equal(t, extras.events != nil, true)
	assert.Equal(t, extras.health != nil, true)
	assert.Equal(t, extras.Close(), nil)
}
