package escalations

import (
	"time"

	"github.com/google/uuid"
)

// Escalation lifecycle statuses. A fresh escalation is pending; once the
// owner has been alerted it waits in pending_owner_reply; the dashboard
// can park it as reviewed; the owner's forwarded answer resolves it.
const (
	StatusPending           = "pending"
	StatusPendingOwnerReply = "pending_owner_reply"
	StatusReviewed          = "reviewed"
	StatusResolved          = "resolved"
)

// Escalation priorities.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Escalation is a thread handed to a human, addressable by a short code
// the owner can quote from their own WhatsApp. CustomerMessage holds the
// verbatim text that triggered the handoff; OwnerReply the verbatim
// answer once resolved.
type Escalation struct {
	ID              uuid.UUID  `json:"id"`
	Code            string     `json:"code"`
	ConversationID  uuid.UUID  `json:"conversation_id"`
	TopicID         *uuid.UUID `json:"topic_id,omitempty"`
	CustomerPhone   string     `json:"customer_phone"`
	CustomerMessage string     `json:"customer_message"`
	Reason          string     `json:"reason"`
	Priority        string     `json:"priority"`
	Status          string     `json:"status"`
	SLADeadline     time.Time  `json:"sla_deadline"`
	RemindersSent   int        `json:"reminders_sent"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	OwnerReply      *string    `json:"owner_reply,omitempty"`
}

// Open reports whether the escalation still needs a human answer.
func (e *Escalation) Open() bool {
	return e != nil && (e.Status == StatusPending || e.Status == StatusPendingOwnerReply || e.Status == StatusReviewed)
}
