package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohamedkhairy/news-pipeline/internal/config"
	"github.com/mohamedkhairy/news-pipeline/pkg/logger"
)

// RedisBus implements Bus and SetStore on a Redis Stream. The underlying
// client is safe for concurrent readers and writers; batch publishes use a
// short-lived pipeline.
type RedisBus struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisBus connects to Redis and returns a bus bound to the given stream.
func NewRedisBus(cfg config.RedisConfig, stream string, maxLen int64) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("stream", stream),
	)

	return &RedisBus{client: rdb, stream: stream, maxLen: maxLen}, nil
}

// Publish appends one entry with the approximate ring cap.
func (b *RedisBus) Publish(ctx context.Context, values map[string]interface{}) error {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", b.stream, err)
	}
	return nil
}

// PublishBatch appends all entries in one pipelined round trip. Either the
// whole batch is sent or the caller retries next cycle; partial successes
// inside the pipeline are tolerated by downstream idempotency.
func (b *RedisBus) PublishBatch(ctx context.Context, batch []map[string]interface{}) error {
	if len(batch) == 0 {
		return nil
	}

	pipe := b.client.Pipeline()
	for _, values := range batch {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: b.stream,
			MaxLen: b.maxLen,
			Approx: true,
			Values: values,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish batch to stream %s: %w", b.stream, err)
	}
	return nil
}

// EnsureGroup creates the consumer group from the beginning of the stream,
// creating the stream itself if needed. BUSYGROUP is swallowed as success.
func (b *RedisBus) EnsureGroup(ctx context.Context, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, b.stream, group, "0").Err()
	if err == nil {
		logger.Debug("Created consumer group",
			logger.String("stream", b.stream),
			logger.String("group", group),
		)
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("failed to create consumer group %s: %w", group, err)
}

// ReadNew reads entries newer than the group cursor, blocking up to block.
// An empty result (redis.Nil) is not an error.
func (b *RedisBus) ReadNew(ctx context.Context, group, consumer string, count int, block time.Duration) ([]Entry, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{b.stream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream %s: %w", b.stream, err)
	}
	return flatten(streams), nil
}

// ReadPending replays entries delivered to this consumer but not yet acked.
func (b *RedisBus) ReadPending(ctx context.Context, group, consumer string, count int) ([]Entry, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{b.stream, "0"},
		Count:    int64(count),
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pending from stream %s: %w", b.stream, err)
	}
	return flatten(streams), nil
}

// Ack advances the group cursor past the given ids.
func (b *RedisBus) Ack(ctx context.Context, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := b.client.XAck(ctx, b.stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack on stream %s: %w", b.stream, err)
	}
	return nil
}

// SetContains reports membership of member in the set at key.
func (b *RedisBus) SetContains(ctx context.Context, key, member string) (bool, error) {
	return b.client.SIsMember(ctx, key, member).Result()
}

// SetAddWithTTL adds member to the set at key and refreshes the key's TTL
// in a single pipeline.
func (b *RedisBus) SetAddWithTTL(ctx context.Context, key, member string, ttl time.Duration) error {
	pipe := b.client.Pipeline()
	pipe.SAdd(ctx, key, member)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the Redis connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

func flatten(streams []redis.XStream) []Entry {
	var entries []Entry
	for _, s := range streams {
		for _, m := range s.Messages {
			entries = append(entries, Entry{ID: m.ID, Values: m.Values})
		}
	}
	return entries
}
