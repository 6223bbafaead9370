package crm

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies which transport a conversation is happening on.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
)

// Conversation lifecycle statuses.
const (
	ConversationActive          = "active"
	ConversationWaitingForOwner = "waiting_for_owner"
	ConversationResolved        = "resolved"
)

// Topic lifecycle statuses.
const (
	TopicOpen       = "open"
	TopicInProgress = "in_progress"
	TopicResolved   = "resolved"
	TopicClosed     = "closed"
	TopicEscalated  = "escalated"
)

// Message sender classes.
const (
	SenderCustomer = "customer"
	SenderAI       = "ai"
	SenderAgent    = "agent"
	SenderSystem   = "system"
)

// Customer is a contact known to the business, created on first touch.
type Customer struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Phone             string    `json:"phone"`
	PhoneFormatted    string    `json:"phone_formatted"`
	PhoneKey          string    `json:"phone_key"`
	CustomerType      string    `json:"customer_type"`
	Tags              []string  `json:"tags"`
	TotalSpend        float64   `json:"total_spend"`
	LastInteractionAt time.Time `json:"last_interaction_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// Conversation is the single active thread per (customer, channel).
type Conversation struct {
	ID                 uuid.UUID  `json:"id"`
	CustomerID         uuid.UUID  `json:"customer_id"`
	Channel            Channel    `json:"channel"`
	Phone              string     `json:"phone"`
	PhoneKey           string     `json:"phone_key"`
	Status             string     `json:"status"`
	LastMessagePreview string     `json:"last_message_preview"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int        `json:"unread_count"`
	EscalatedAt        *time.Time `json:"escalated_at,omitempty"`
	SLADeadline        *time.Time `json:"sla_deadline,omitempty"`
	SLARemindersSent   int        `json:"sla_reminders_sent"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Topic is a customer's request thread within a conversation.
type Topic struct {
	ID                    uuid.UUID  `json:"id"`
	CustomerID            uuid.UUID  `json:"customer_id"`
	ConversationID        uuid.UUID  `json:"conversation_id"`
	Type                  TopicType  `json:"type"`
	Title                 string     `json:"title"`
	Status                string     `json:"status"`
	LastCustomerMessage   string     `json:"last_customer_message"`
	LastCustomerMessageAt *time.Time `json:"last_customer_message_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// Active reports whether the topic should absorb new customer messages.
func (t *Topic) Active() bool {
	return t != nil && (t.Status == TopicOpen || t.Status == TopicInProgress)
}

// Message is an immutable record belonging to a conversation.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Body           string    `json:"body"`
	Historical     bool      `json:"historical"`
	CreatedAt      time.Time `json:"created_at"`
}
