package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/google/uuid"
)

// newTestCache connects to REDIS_URL; the test is skipped without one
func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	rc, err := NewRedisCache(url, time.Minute)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { rc.Close() })
	return rc
}

func TestScoreRoundTrip(t *testing.T) {
	rc := newTestCache(t)
	ctx := context.Background()
	link := "https://www.predictz.com/predictions/" + uuid.NewString() + "/"

	_, _, ok, err := rc.GetScore(ctx, link)
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, false)

	assert.Equal(t, rc.SetScore(ctx, link, 3, 1), nil)
	home, away, ok, err := rc.GetScore(ctx, link)
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)
	assert.Equal(t, home, 3)
	assert.Equal(t, away, 1)

	ttl, err := rc.Client().TTL(ctx, scoreKeyPrefix+link).Result()
	assert.Equal(t, err, nil)
	assert.Equal(t, ttl > 0 && ttl <= time.Minute, true)
}

func TestFlushScores(t *testing.T) {
	rc := newTestCache(t)
	ctx := context.Background()
	link := "flush-" + uuid.NewString()

	assert.Equal(t, rc.SetScore(ctx, link, 0, 0), nil)
	assert.Equal(t, rc.FlushScores(ctx), nil)

	_, _, ok, err := rc.GetScore(ctx, link)
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, false)
	assert.Equal(t, rc.HealthCheck(ctx), nil)
}
