package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const processedTTL = 24 * time.Hour

// Tracker answers whether a provider event id was already handled.
type Tracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// RedisTracker records processed webhook event ids with a rolling TTL.
// Gateways redeliver for roughly a day, so entries older than that can expire.
type RedisTracker struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisTracker(client *redis.Client, tracer trace.Tracer) *RedisTracker {
	if client == nil {
		panic("dedupe: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("charu.internal.dedupe")
	}
	return &RedisTracker{redis: client, tracer: tracer}
}

var _ Tracker = (*RedisTracker)(nil)

// AlreadyProcessed checks if we've seen this provider event id.
func (t *RedisTracker) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ctx, span := t.tracer.Start(ctx, "dedupe.already_processed")
	defer span.End()

	n, err := t.redis.Exists(ctx, processedKey(provider, eventID)).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("dedupe: check processed: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed claims an event id, returning false if another worker got there first.
func (t *RedisTracker) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ctx, span := t.tracer.Start(ctx, "dedupe.mark_processed")
	defer span.End()

	ok, err := t.redis.SetNX(ctx, processedKey(provider, eventID), 1, processedTTL).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("dedupe: mark processed: %w", err)
	}
	return ok, nil
}

func processedKey(provider, eventID string) string {
	return fmt.Sprintf("processed:%s:%s", provider, eventID)
}
