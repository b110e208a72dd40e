package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobStream carries scrape job lifecycle events
const JobStream = "scrape.jobs"

// maxStreamLen bounds the stream; older events are trimmed approximately
const maxStreamLen = 10000

// RedisPublisher publishes events to Redis streams
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher from an existing client
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// PublishJobEvent appends a job event to the job stream
func (rp *RedisPublisher) PublishJobEvent(ctx context.Context, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return rp.client.XAdd(ctx, &redis.XAddArgs{
		Stream: JobStream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
}

// StreamMessage is one event read back from a stream
type StreamMessage struct {
	ID   string
	Data []byte
}

// LatestJobEventID returns the id of the newest event on the job stream,
// or "0-0" when the stream is empty. Readers start from it instead of "$"
// so nothing published between two reads is skipped.
func (rp *RedisPublisher) LatestJobEventID(ctx context.Context) (string, error) {
	msgs, err := rp.client.XRevRangeN(ctx, JobStream, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

// ReadJobEvents blocks up to block for events after lastID. It returns
// the id to pass to the next call.
func (rp *RedisPublisher) ReadJobEvents(ctx context.Context, lastID string, block time.Duration) ([]StreamMessage, string, error) {
	streams, err := rp.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{JobStream, lastID},
		Count:   100,
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, lastID, nil
	}
	if err != nil {
		return nil, lastID, err
	}

	var out []StreamMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			lastID = msg.ID
			data, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			out = append(out, StreamMessage{ID: msg.ID, Data: []byte(data)})
		}
	}
	return out, lastID, nil
}
