package scheduled

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/exclusions"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/policy"
)

type stubMessenger struct {
	sent []string
	err  error
}

func (m *stubMessenger) Send(_ context.Context, to, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to+"|"+body)
	return nil
}

func middayClock() func() time.Time {
	return func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }
}

func queueMessage(t *testing.T, repo *MemoryRepository, phoneNumber string, sendAt time.Time) *Message {
	t.Helper()
	topicID := uuid.New()
	msg := &Message{
		Phone:       phoneNumber,
		PhoneKey:    phone.MatchKey(phoneNumber),
		TopicID:     &topicID,
		Body:        "Hi! Just checking in about your enquiry.",
		MessageType: "follow_up",
		SendAt:      sendAt,
	}
	require.NoError(t, repo.Schedule(context.Background(), msg))
	return msg
}

func newDispatcher(repo *MemoryRepository, registry exclusions.Registry, messenger *stubMessenger, clock func() time.Time) *Dispatcher {
	engine := policy.NewEngine(policy.Config{
		Enabled:      true,
		DNDStartHour: 21,
		DNDEndHour:   9,
		Cooldown:     24 * time.Hour,
		MaxPerTopic:  3,
	}, policy.NewMemoryStore(clock), registry, nil).WithClock(clock)
	return NewDispatcher(repo, engine, messenger, nil).WithClock(clock)
}

func TestRunSendsDueMessages(t *testing.T) {
	repo := NewMemoryRepository()
	clock := middayClock()
	msg := queueMessage(t, repo, "919969528677", clock().Add(-time.Minute))
	queueMessage(t, repo, "919876543210", clock().Add(time.Hour)) // not due yet

	messenger := &stubMessenger{}
	d := newDispatcher(repo, nil, messenger, clock)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Due)
	require.Equal(t, 1, report.Sent)
	require.Len(t, messenger.sent, 1)

	stored, ok := repo.Get(msg.ID)
	require.True(t, ok)
	require.Equal(t, StatusSent, stored.Status)
	require.NotNil(t, stored.SentAt)
}

func TestRunCancelsExcludedNumbers(t *testing.T) {
	repo := NewMemoryRepository()
	clock := middayClock()
	msg := queueMessage(t, repo, "919969528677", clock().Add(-time.Minute))

	registry := exclusions.NewMemoryRegistry(phone.NewNormalizer("91"), "919969528677")
	messenger := &stubMessenger{}
	d := newDispatcher(repo, registry, messenger, clock)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Cancelled)
	require.Empty(t, messenger.sent)

	stored, _ := repo.Get(msg.ID)
	require.Equal(t, StatusCancelled, stored.Status)
	require.Contains(t, stored.StatusReason, "exclusion")
}

func TestRunDefersDuringDNDWindow(t *testing.T) {
	repo := NewMemoryRepository()
	nightClock := func() time.Time { return time.Date(2025, 6, 10, 22, 0, 0, 0, time.UTC) }
	msg := queueMessage(t, repo, "919969528677", nightClock().Add(-time.Minute))

	messenger := &stubMessenger{}
	d := newDispatcher(repo, nil, messenger, nightClock)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Deferred)
	require.Empty(t, messenger.sent)

	// Still pending, so the morning sweep picks it up.
	stored, _ := repo.Get(msg.ID)
	require.Equal(t, StatusPending, stored.Status)
}

func TestRunCancelsOnTransportFailure(t *testing.T) {
	repo := NewMemoryRepository()
	clock := middayClock()
	msg := queueMessage(t, repo, "919969528677", clock().Add(-time.Minute))

	messenger := &stubMessenger{err: errors.New("gateway 502")}
	d := newDispatcher(repo, nil, messenger, clock)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Cancelled)

	stored, _ := repo.Get(msg.ID)
	require.Equal(t, StatusCancelled, stored.Status)
	require.Contains(t, stored.StatusReason, "send failed")
}
