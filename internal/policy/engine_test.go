package policy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/exclusions"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
)

func dayHour(hour int) time.Time {
	return time.Date(2025, 6, 10, hour, 30, 0, 0, time.UTC)
}

func newTestEngine(cfg Config, registry exclusions.Registry, clock func() time.Time) (*Engine, *MemoryStore) {
	store := NewMemoryStore(clock)
	engine := NewEngine(cfg, store, registry, nil).WithClock(clock)
	return engine, store
}

func TestCanSendDisabledKillSwitch(t *testing.T) {
	engine, _ := newTestEngine(Config{Enabled: false}, nil, func() time.Time { return dayHour(12) })

	d, err := engine.CanSend(context.Background(), "9969528677", uuid.New())
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "disabled")
}

func TestCanSendExcludedNumber(t *testing.T) {
	registry := exclusions.NewMemoryRegistry(phone.NewNormalizer("91"), "919969528677")
	engine, _ := newTestEngine(Config{Enabled: true, DNDStartHour: 21, DNDEndHour: 9}, registry, func() time.Time { return dayHour(12) })

	d, err := engine.CanSend(context.Background(), "9969528677", uuid.New())
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "exclusion")
}

func TestDNDWindowSpansMidnight(t *testing.T) {
	cases := []struct {
		hour    int
		blocked bool
	}{
		{21, true},
		{23, true},
		{0, true},
		{5, true},
		{8, true},
		{9, false},
		{12, false},
		{20, false},
	}
	for _, tc := range cases {
		clock := func() time.Time { return dayHour(tc.hour) }
		engine, _ := newTestEngine(Config{Enabled: true, DNDStartHour: 21, DNDEndHour: 9}, nil, clock)

		d, err := engine.CanSend(context.Background(), "9969528677", uuid.New())
		require.NoError(t, err)
		if tc.blocked {
			require.False(t, d.Allowed, "hour %d should be inside the dnd window", tc.hour)
			require.Contains(t, d.Reason, "dnd")
		} else {
			require.True(t, d.Allowed, "hour %d should be outside the dnd window", tc.hour)
		}
	}
}

func TestCooldownBlocksSecondSendSameDay(t *testing.T) {
	now := dayHour(12)
	clock := func() time.Time { return now }
	engine, _ := newTestEngine(Config{Enabled: true, DNDStartHour: 21, DNDEndHour: 9, Cooldown: 24 * time.Hour}, nil, clock)
	topicID := uuid.New()

	d, err := engine.CanSend(context.Background(), "9969528677", topicID)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	require.NoError(t, engine.RecordSend(context.Background(), "9969528677", topicID, "follow_up"))

	d, err = engine.CanSend(context.Background(), "9969528677", topicID)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "cooldown")

	// The same number in a different historical format shares the cooldown.
	d, err = engine.CanSend(context.Background(), "919969528677", topicID)
	require.NoError(t, err)
	require.False(t, d.Allowed)
}

func TestPerTopicCap(t *testing.T) {
	now := dayHour(12)
	clock := func() time.Time { return now }
	// Cooldown of a minute so the cap is what trips, not the cooldown.
	engine, _ := newTestEngine(Config{Enabled: true, DNDStartHour: 21, DNDEndHour: 9, Cooldown: time.Minute, MaxPerTopic: 3}, nil, clock)
	topicID := uuid.New()

	for i := 0; i < 3; i++ {
		d, err := engine.CanSend(context.Background(), "9969528677", topicID)
		require.NoError(t, err)
		require.True(t, d.Allowed, "send %d should pass", i+1)
		require.NoError(t, engine.RecordSend(context.Background(), "9969528677", topicID, "follow_up"))
		now = now.Add(2 * time.Minute)
	}

	d, err := engine.CanSend(context.Background(), "9969528677", topicID)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "cap")

	// A fresh topic for the same customer is not capped.
	d, err = engine.CanSend(context.Background(), "9969528677", uuid.New())
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestPerTopicCapIgnoredWithoutTopic(t *testing.T) {
	now := dayHour(12)
	clock := func() time.Time { return now }
	engine, _ := newTestEngine(Config{Enabled: true, DNDStartHour: 21, DNDEndHour: 9, Cooldown: time.Minute, MaxPerTopic: 3}, nil, clock)

	// Topic-less sends must not accumulate into a shared cap bucket.
	for i := 0; i < 3; i++ {
		require.NoError(t, engine.RecordSend(context.Background(), "9969528677", uuid.Nil, "manual"))
		now = now.Add(2 * time.Minute)
	}

	d, err := engine.CanSend(context.Background(), "9969528677", uuid.Nil)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// A real topic still starts from a clean count.
	d, err = engine.CanSend(context.Background(), "9969528677", uuid.New())
	require.NoError(t, err)
	require.True(t, d.Allowed)
}
