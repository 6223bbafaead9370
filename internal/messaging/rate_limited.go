package messaging

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedMessenger throttles sends so the gateway never sees bursts
// above what the WhatsApp account is provisioned for.
type RateLimitedMessenger struct {
	inner   Messenger
	limiter *rate.Limiter
}

// NewRateLimitedMessenger wraps inner with a token-bucket limiter of
// perSecond sends and the given burst.
func NewRateLimitedMessenger(inner Messenger, perSecond float64, burst int) *RateLimitedMessenger {
	if inner == nil {
		panic("messaging: inner messenger required")
	}
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 5
	}
	return &RateLimitedMessenger{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

var _ Messenger = (*RateLimitedMessenger)(nil)

// Send blocks until the limiter grants a slot, then delegates.
func (m *RateLimitedMessenger) Send(ctx context.Context, to, body string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("messaging: rate limiter: %w", err)
	}
	return m.inner.Send(ctx, to, body)
}
