package crm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
)

func newTestResolver(t *testing.T) (*Resolver, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	resolver := NewResolver(repo, phone.NewNormalizer("91"), nil).
		WithClock(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
	return resolver, repo
}

func TestResolveIsIdempotent(t *testing.T) {
	resolver, _ := newTestResolver(t)
	ctx := context.Background()

	customer1, conv1, err := resolver.Resolve(ctx, "9969528677", "")
	require.NoError(t, err)

	// Second call with a differently formatted rendering of the same number.
	customer2, conv2, err := resolver.Resolve(ctx, "+91 99695 28677", "")
	require.NoError(t, err)

	require.Equal(t, customer1.ID, customer2.ID)
	require.Equal(t, conv1.ID, conv2.ID)
}

func TestResolveCreatesWithProvenance(t *testing.T) {
	resolver, _ := newTestResolver(t)
	ctx := context.Background()

	customer, conv, err := resolver.Resolve(ctx, "9876543210", "Foram", "lead/owner-injected")
	require.NoError(t, err)
	require.Equal(t, "Foram", customer.Name)
	require.Equal(t, []string{"lead/owner-injected"}, customer.Tags)
	require.Equal(t, "9876543210", customer.PhoneKey)
	require.Equal(t, ConversationActive, conv.Status)
	require.Zero(t, conv.UnreadCount)
}

func TestResolveRejectsUnparseablePhone(t *testing.T) {
	resolver, _ := newTestResolver(t)
	_, _, err := resolver.Resolve(context.Background(), "no digits here", "")
	require.Error(t, err)
}

func TestEnsureTopicSingleActiveInvariant(t *testing.T) {
	resolver, _ := newTestResolver(t)
	ctx := context.Background()

	customer, conv, err := resolver.Resolve(ctx, "9969528677", "")
	require.NoError(t, err)

	first, created, err := resolver.EnsureTopic(ctx, customer, conv, "my iphone is broken")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, TopicServiceRequest, first.Type)
	require.Equal(t, "iPhone Service", first.Title)

	// A second message while the topic is active attaches to it instead of
	// opening a new one, even when it would classify differently.
	second, created, err := resolver.EnsureTopic(ctx, customer, conv, "what is the price of a macbook")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
}

func TestEnsureTopicReopensAfterResolution(t *testing.T) {
	resolver, repo := newTestResolver(t)
	ctx := context.Background()

	customer, conv, err := resolver.Resolve(ctx, "9969528677", "")
	require.NoError(t, err)

	first, _, err := resolver.EnsureTopic(ctx, customer, conv, "my iphone is broken")
	require.NoError(t, err)
	require.NoError(t, repo.SetTopicStatus(ctx, first.ID, TopicResolved))

	next, created, err := resolver.EnsureTopic(ctx, customer, conv, "interested in airpods now")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.ID, next.ID)
	require.Equal(t, TopicProductInquiry, next.Type)
}
