package scheduled

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/messaging"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/policy"
	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

var dispatchTracer = otel.Tracer("charu.internal.scheduled")

const dispatchBatchSize = 50

// Dispatcher drains due messages through the policy engine and the
// WhatsApp gateway. One Run is one sweep; the follow-up worker calls it
// on a ticker.
type Dispatcher struct {
	repo      Repository
	engine    *policy.Engine
	messenger messaging.Messenger
	clock     func() time.Time
	logger    *logging.Logger
}

// NewDispatcher wires the queue drain.
func NewDispatcher(repo Repository, engine *policy.Engine, messenger messaging.Messenger, logger *logging.Logger) *Dispatcher {
	if repo == nil {
		panic("scheduled: repository required")
	}
	if engine == nil {
		panic("scheduled: policy engine required")
	}
	if messenger == nil {
		panic("scheduled: messenger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		repo:      repo,
		engine:    engine,
		messenger: messenger,
		clock:     func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// WithClock overrides the time source. Test hook.
func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	d.clock = clock
	return d
}

// RunReport summarizes one sweep.
type RunReport struct {
	Due       int `json:"due"`
	Sent      int `json:"sent"`
	Deferred  int `json:"deferred"`
	Cancelled int `json:"cancelled"`
}

// Run processes everything currently due. Permanent policy blocks
// (exclusion, topic cap) cancel the message; transient ones (kill switch,
// DND, cooldown) leave it pending for the next sweep. A failed send is
// cancelled rather than retried: scheduled nudges are fire-and-forget and
// a stale follow-up is worse than a missing one.
func (d *Dispatcher) Run(ctx context.Context) (*RunReport, error) {
	ctx, span := dispatchTracer.Start(ctx, "scheduled.run")
	defer span.End()

	now := d.clock()
	due, err := d.repo.Due(ctx, now, dispatchBatchSize)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	report := &RunReport{Due: len(due)}
	for i := range due {
		msg := &due[i]
		topicID := uuid.Nil
		if msg.TopicID != nil {
			topicID = *msg.TopicID
		}

		decision, err := d.engine.CanSend(ctx, msg.Phone, topicID)
		if err != nil {
			d.logger.Error("policy check failed, deferring", "id", msg.ID, "error", err)
			report.Deferred++
			continue
		}
		if !decision.Allowed {
			if permanentBlock(decision.Reason) {
				if err := d.repo.Cancel(ctx, msg.ID, decision.Reason); err != nil {
					d.logger.Error("cancel failed", "id", msg.ID, "error", err)
				}
				report.Cancelled++
				d.logger.Info("scheduled message cancelled", "id", msg.ID, "phone", msg.Phone, "reason", decision.Reason)
			} else {
				report.Deferred++
				d.logger.Debug("scheduled message deferred", "id", msg.ID, "reason", decision.Reason)
			}
			continue
		}

		if err := d.messenger.Send(ctx, msg.Phone, msg.Body); err != nil {
			if cancelErr := d.repo.Cancel(ctx, msg.ID, "send failed: "+err.Error()); cancelErr != nil {
				d.logger.Error("cancel after send failure failed", "id", msg.ID, "error", cancelErr)
			}
			report.Cancelled++
			d.logger.Error("scheduled send failed", "id", msg.ID, "phone", msg.Phone, "error", err)
			continue
		}

		if err := d.repo.MarkSent(ctx, msg.ID, now); err != nil {
			d.logger.Error("mark sent failed", "id", msg.ID, "error", err)
		}
		if err := d.engine.RecordSend(ctx, msg.Phone, topicID, msg.MessageType); err != nil {
			d.logger.Error("record send failed", "id", msg.ID, "error", err)
		}
		report.Sent++
	}
	return report, nil
}

// permanentBlock reports whether a policy reason can never clear on its
// own for this message.
func permanentBlock(reason string) bool {
	return strings.Contains(reason, "exclusion") || strings.Contains(reason, "cap")
}
