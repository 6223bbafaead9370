package dedupe

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *RedisTracker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTracker(client, nil)
}

func TestTrackerMarkAndCheck(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	processed, err := tracker.AlreadyProcessed(ctx, "whatsapp", "wamid.1")
	require.NoError(t, err)
	require.False(t, processed)

	ok, err := tracker.MarkProcessed(ctx, "whatsapp", "wamid.1")
	require.NoError(t, err)
	require.True(t, ok)

	processed, err = tracker.AlreadyProcessed(ctx, "whatsapp", "wamid.1")
	require.NoError(t, err)
	require.True(t, processed)
}

func TestTrackerMarkProcessedIsFirstWriterWins(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	ok, err := tracker.MarkProcessed(ctx, "whatsapp", "wamid.2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tracker.MarkProcessed(ctx, "whatsapp", "wamid.2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTrackerKeysAreScopedByProvider(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.MarkProcessed(ctx, "whatsapp", "evt")
	require.NoError(t, err)

	processed, err := tracker.AlreadyProcessed(ctx, "webchat", "evt")
	require.NoError(t, err)
	require.False(t, processed)
}
