package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/exclusions"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

// Config tunes the automated-send policy. Zero values fall back to the
// defaults applied in NewEngine.
type Config struct {
	Enabled      bool
	DNDStartHour int
	DNDEndHour   int
	Cooldown     time.Duration
	MaxPerTopic  int
}

// Decision is the outcome of a policy evaluation. Reason is set only
// when the send is blocked.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Engine gates every automated outbound message. Conversational AI replies
// to a live inbound message do not pass through here; only system-initiated
// traffic (follow-ups, scheduled sends, re-engagement) does.
type Engine struct {
	cfg        Config
	store      Store
	exclusions exclusions.Registry
	clock      func() time.Time
	logger     *logging.Logger
}

// NewEngine wires the policy checks. registry may be nil when exclusion
// checking happens upstream.
func NewEngine(cfg Config, store Store, registry exclusions.Registry, logger *logging.Logger) *Engine {
	if store == nil {
		panic("policy: store required")
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 24 * time.Hour
	}
	if cfg.MaxPerTopic <= 0 {
		cfg.MaxPerTopic = 3
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		cfg:        cfg,
		store:      store,
		exclusions: registry,
		clock:      func() time.Time { return time.Now() },
		logger:     logger,
	}
}

// WithClock overrides the time source. Test hook.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// CanSend evaluates the checks in a fixed order and returns the first
// blocking reason: kill switch, exclusion list, DND window, cooldown,
// then the per-topic cap.
func (e *Engine) CanSend(ctx context.Context, rawPhone string, topicID uuid.UUID) (Decision, error) {
	if !e.cfg.Enabled {
		return Decision{Reason: "auto messages disabled"}, nil
	}

	if e.exclusions != nil {
		excluded, err := e.exclusions.IsExcluded(ctx, rawPhone)
		if err != nil {
			return Decision{}, fmt.Errorf("policy: exclusion check: %w", err)
		}
		if excluded {
			return Decision{Reason: "number is on the exclusion list"}, nil
		}
	}

	if e.inDNDWindow(e.clock()) {
		return Decision{Reason: fmt.Sprintf("dnd window active (%02d:00-%02d:00)", e.cfg.DNDStartHour, e.cfg.DNDEndHour)}, nil
	}

	key := phone.MatchKey(rawPhone)
	lastSent, err := e.store.LastSentAt(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	if lastSent != nil && e.clock().Sub(*lastSent) < e.cfg.Cooldown {
		return Decision{Reason: fmt.Sprintf("cooldown active, last automated message %s ago", e.clock().Sub(*lastSent).Round(time.Minute))}, nil
	}

	// The cap is charged per topic; sends without a topic are only
	// bounded by the cooldown.
	if topicID != uuid.Nil {
		count, err := e.store.CountForTopic(ctx, key, topicID)
		if err != nil {
			return Decision{}, err
		}
		if count >= e.cfg.MaxPerTopic {
			return Decision{Reason: fmt.Sprintf("per-topic cap reached (%d of %d)", count, e.cfg.MaxPerTopic)}, nil
		}
	}

	return Decision{Allowed: true}, nil
}

// RecordSend charges a successful automated send against the cooldown
// and the topic cap.
func (e *Engine) RecordSend(ctx context.Context, rawPhone string, topicID uuid.UUID, messageType string) error {
	return e.store.RecordSend(ctx, phone.MatchKey(rawPhone), topicID, messageType)
}

// inDNDWindow reports whether t falls in the quiet hours. A window whose
// start is after its end spans midnight: [start,24) union [0,end).
func (e *Engine) inDNDWindow(t time.Time) bool {
	start, end := e.cfg.DNDStartHour, e.cfg.DNDEndHour
	if start == end {
		return false
	}
	h := t.Hour()
	if start > end {
		return h >= start || h < end
	}
	return h >= start && h < end
}
