package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	readCount = 10
	readBlock = 5 * time.Second
)

// RedisStream publishes alerts to a Redis stream and consumes them through a
// consumer group.
type RedisStream struct {
	client *redis.Client
	stream string
	group  string
	logger *slog.Logger
}

// NewRedisStream connects to the Redis server at url (redis://...).
func NewRedisStream(url, stream, group string, logger *slog.Logger) (*RedisStream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStream{
		client: redis.NewClient(opts),
		stream: stream,
		group:  group,
		logger: logger,
	}, nil
}

// Ping checks the connection.
func (r *RedisStream) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Publish appends an alert to the stream.
func (r *RedisStream) Publish(ctx context.Context, a Alert) error {
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: a.values(),
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// Consume reads alerts as consumer in the stream's group until ctx is done,
// calling handle for each and acknowledging it afterwards. Entries that fail to
// parse are acknowledged and dropped; entries whose handler fails stay pending.
func (r *RedisStream) Consume(ctx context.Context, consumer string, handle func(context.Context, Alert) error) error {
	err := r.client.XGroupCreateMkStream(ctx, r.stream, r.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s: %w", r.group, err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.group,
			Consumer: consumer,
			Streams:  []string{r.stream, ">"},
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("xreadgroup %s: %w", r.stream, err)
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				a, err := parseAlert(msg.Values)
				if err != nil {
					r.logger.Warn("dropping malformed alert", "id", msg.ID, "err", err)
					r.ack(ctx, msg.ID)
					continue
				}
				if err := handle(ctx, a); err != nil {
					r.logger.Error("alert handler failed", "id", msg.ID, "item_id", a.ItemID, "err", err)
					continue
				}
				r.ack(ctx, msg.ID)
			}
		}
	}
}

func (r *RedisStream) ack(ctx context.Context, id string) {
	if err := r.client.XAck(ctx, r.stream, r.group, id).Err(); err != nil {
		r.logger.Warn("xack failed", "id", id, "err", err)
	}
}

func (r *RedisStream) Close() error {
	return r.client.Close()
}
