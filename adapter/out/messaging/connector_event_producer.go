// Package messaging provides the Redis Streams adapters for record events.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"

	"github.com/redis/go-redis/v9"
)

// StreamRecordEvents carries one envelope per mirrored record; the
// downstream indexing pipeline consumes it.
const StreamRecordEvents = "record-events"

// RedisProducer implements out.RecordEventProducer and
// out.SyncProgressReporter using Redis Streams and hashes.
type RedisProducer struct {
	client *redis.Client
}

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// EmitRecordEvent publishes a record envelope to the record stream.
func (p *RedisProducer) EmitRecordEvent(ctx context.Context, event *domain.RecordEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal record event: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamRecordEvents,
		ID:     "*",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", StreamRecordEvents, err)
	}

	return nil
}

// =============================================================================
// Sync Progress (Redis Hash)
// =============================================================================

const (
	syncProgressKeyPrefix = "sync:progress:"
	syncProgressTTL       = 24 * time.Hour
)

func progressKey(email, serviceType string) string {
	return fmt.Sprintf("%s%s:%s", syncProgressKeyPrefix, serviceType, email)
}

// SetSyncProgress stores per-principal progress fields in Redis.
func (p *RedisProducer) SetSyncProgress(ctx context.Context, email, serviceType string, fields map[string]any) error {
	key := progressKey(email, serviceType)

	if err := p.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to set sync progress: %w", err)
	}

	p.client.Expire(ctx, key, syncProgressTTL)

	return nil
}

// IncrSyncCounter atomically increments one progress counter.
func (p *RedisProducer) IncrSyncCounter(ctx context.Context, email, serviceType, field string, by int64) error {
	key := progressKey(email, serviceType)

	if err := p.client.HIncrBy(ctx, key, field, by).Err(); err != nil {
		return fmt.Errorf("failed to increment %s: %w", field, err)
	}

	return nil
}

// GetSyncProgress retrieves the progress hash; nil when none is stored.
func (p *RedisProducer) GetSyncProgress(ctx context.Context, email, serviceType string) (map[string]string, error) {
	key := progressKey(email, serviceType)

	result, err := p.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get sync progress: %w", err)
	}

	if len(result) == 0 {
		return nil, nil
	}

	return result, nil
}

var _ out.RecordEventProducer = (*RedisProducer)(nil)
var _ out.SyncProgressReporter = (*RedisProducer)(nil)
