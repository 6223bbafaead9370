package escalations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/crm"
	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

var escalationTracer = otel.Tracer("charu.internal.escalations")

var escalationsOpened = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "charu",
		Subsystem: "escalations",
		Name:      "opened_total",
		Help:      "Escalations opened, by trigger",
	},
	[]string{"trigger"},
)

func init() {
	prometheus.MustRegister(escalationsOpened)
}

// Notifier delivers an alert to the store owner.
type Notifier interface {
	NotifyOwner(ctx context.Context, subject, body string) error
}

// Tracker opens escalations, stamps SLA deadlines on conversations, and
// nags the owner when deadlines pass.
type Tracker struct {
	repo         Repository
	crmRepo      crm.Repository
	notifier     Notifier
	slaWindow    time.Duration
	maxReminders int
	clock        func() time.Time
	logger       *logging.Logger
}

// NewTracker wires escalation bookkeeping. notifier may be nil.
func NewTracker(repo Repository, crmRepo crm.Repository, notifier Notifier, slaWindow time.Duration, maxReminders int, logger *logging.Logger) *Tracker {
	if repo == nil {
		panic("escalations: repository required")
	}
	if slaWindow <= 0 {
		slaWindow = 30 * time.Minute
	}
	if maxReminders <= 0 {
		maxReminders = 2
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Tracker{
		repo:         repo,
		crmRepo:      crmRepo,
		notifier:     notifier,
		slaWindow:    slaWindow,
		maxReminders: maxReminders,
		clock:        func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// WithClock overrides the time source. Test hook.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	t.clock = clock
	return t
}

// Escalate opens a pending escalation for the conversation, moves it to
// waiting_for_owner with an SLA deadline, and alerts the owner with the
// customer's verbatim message and the code they can quote to answer it.
func (t *Tracker) Escalate(ctx context.Context, conv *crm.Conversation, topic *crm.Topic, customerMessage, reason string) error {
	ctx, span := escalationTracer.Start(ctx, "escalations.open")
	defer span.End()

	now := t.clock()
	esc := &Escalation{
		CustomerMessage: customerMessage,
		Reason:          reason,
		Priority:        PriorityHigh,
		Status:          StatusPending,
		SLADeadline:     now.Add(t.slaWindow),
		CreatedAt:       now,
	}
	if conv != nil {
		esc.ConversationID = conv.ID
		esc.CustomerPhone = conv.Phone
	}
	if topic != nil {
		id := topic.ID
		esc.TopicID = &id
	}
	if err := t.repo.Create(ctx, esc); err != nil {
		span.RecordError(err)
		return err
	}
	escalationsOpened.WithLabelValues("ai_failure").Inc()

	if conv != nil && t.crmRepo != nil {
		if err := t.crmRepo.MarkConversationEscalated(ctx, conv.ID, now, esc.SLADeadline); err != nil {
			t.logger.Error("failed to mark conversation escalated", "conversation_id", conv.ID, "error", err)
		}
	}
	if topic != nil && t.crmRepo != nil {
		if err := t.crmRepo.SetTopicStatus(ctx, topic.ID, crm.TopicEscalated); err != nil {
			t.logger.Error("failed to mark topic escalated", "topic_id", topic.ID, "error", err)
		}
	}

	t.logger.Info("escalation opened",
		"code", esc.Code,
		"customer_phone", esc.CustomerPhone,
		"reason", reason,
		"sla_deadline", esc.SLADeadline,
	)
	if t.notifyOwner(ctx, esc) == nil && t.notifier != nil {
		// The owner has the code now; the thread waits on their reply.
		if err := t.repo.SetStatus(ctx, esc.ID, StatusPendingOwnerReply); err != nil {
			t.logger.Error("failed to advance escalation status", "code", esc.Code, "error", err)
		} else {
			esc.Status = StatusPendingOwnerReply
		}
	}
	return nil
}

// Resolve closes the escalation with the owner's verbatim reply and
// returns its conversation to active.
func (t *Tracker) Resolve(ctx context.Context, esc *Escalation, ownerReply string) error {
	if err := t.repo.Resolve(ctx, esc.ID, ownerReply); err != nil {
		return err
	}
	if t.crmRepo != nil && esc.ConversationID != uuid.Nil {
		if err := t.crmRepo.SetConversationStatus(ctx, esc.ConversationID, crm.ConversationActive); err != nil {
			t.logger.Error("failed to reactivate conversation", "conversation_id", esc.ConversationID, "error", err)
		}
	}
	t.logger.Info("escalation resolved", "code", esc.Code, "customer_phone", esc.CustomerPhone)
	return nil
}

// ReportItem describes one overdue escalation in a CheckSLA pass.
type ReportItem struct {
	Code           string `json:"code"`
	CustomerPhone  string `json:"customer_phone"`
	MinutesOverdue int    `json:"minutes_overdue"`
	ReminderSent   bool   `json:"reminder_sent"`
}

// Report summarizes one SLA sweep.
type Report struct {
	CheckedAt    time.Time    `json:"checked_at"`
	TotalPending int          `json:"total_pending"`
	OverdueCount int          `json:"overdue_count"`
	Items        []ReportItem `json:"items,omitempty"`
}

// CheckSLA sweeps open escalations, reminding the owner about each one
// past its deadline until the reminder cap is hit.
func (t *Tracker) CheckSLA(ctx context.Context) (*Report, error) {
	ctx, span := escalationTracer.Start(ctx, "escalations.check_sla")
	defer span.End()

	pending, err := t.repo.Pending(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := t.clock()
	report := &Report{CheckedAt: now, TotalPending: len(pending)}
	for i := range pending {
		esc := &pending[i]
		if !now.After(esc.SLADeadline) {
			continue
		}
		report.OverdueCount++
		item := ReportItem{
			Code:           esc.Code,
			CustomerPhone:  esc.CustomerPhone,
			MinutesOverdue: int(now.Sub(esc.SLADeadline).Minutes()),
		}
		if esc.RemindersSent < t.maxReminders {
			t.remindOwner(ctx, esc, item.MinutesOverdue)
			if err := t.repo.IncrementReminders(ctx, esc.ID); err != nil {
				t.logger.Error("failed to bump reminder count", "code", esc.Code, "error", err)
			} else {
				item.ReminderSent = true
			}
		}
		report.Items = append(report.Items, item)
	}
	return report, nil
}

func (t *Tracker) notifyOwner(ctx context.Context, esc *Escalation) error {
	if t.notifier == nil {
		return nil
	}
	subject := fmt.Sprintf("Escalation %s needs a reply", esc.Code)
	body := fmt.Sprintf("%s: customer %s asked: %q. Reason: %s. Reply with \"%s: your answer\" and I will forward it.",
		esc.Code, esc.CustomerPhone, esc.CustomerMessage, esc.Reason, esc.Code)
	if err := t.notifier.NotifyOwner(ctx, subject, body); err != nil {
		t.logger.Error("owner notification failed", "code", esc.Code, "error", err)
		return err
	}
	return nil
}

func (t *Tracker) remindOwner(ctx context.Context, esc *Escalation, minutesOverdue int) {
	if t.notifier == nil {
		return
	}
	subject := fmt.Sprintf("Escalation %s is overdue", esc.Code)
	body := fmt.Sprintf("%s: customer %s has been waiting %d minutes past the SLA. They asked: %q.",
		esc.Code, esc.CustomerPhone, minutesOverdue, esc.CustomerMessage)
	if err := t.notifier.NotifyOwner(ctx, subject, body); err != nil {
		t.logger.Error("owner reminder failed", "code", esc.Code, "error", err)
	}
}
