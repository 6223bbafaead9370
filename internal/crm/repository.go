package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/storage"
)

// Repository is the persistence contract the resolver and router depend on.
type Repository interface {
	FindCustomerByPhoneKey(ctx context.Context, phoneKey string) (*Customer, error)
	UpsertCustomer(ctx context.Context, c *Customer) (*Customer, error)
	TouchCustomer(ctx context.Context, id uuid.UUID, at time.Time) error

	FindConversation(ctx context.Context, customerID uuid.UUID, channel Channel, phoneKey string) (*Conversation, error)
	UpsertConversation(ctx context.Context, c *Conversation) (*Conversation, error)
	UpdateConversationPreview(ctx context.Context, id uuid.UUID, preview string, at time.Time, incrementUnread bool) error
	SetConversationStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkConversationEscalated(ctx context.Context, id uuid.UUID, escalatedAt, slaDeadline time.Time) error

	FindActiveTopic(ctx context.Context, customerID uuid.UUID) (*Topic, error)
	CreateTopic(ctx context.Context, t *Topic) (*Topic, error)
	UpdateTopicLastMessage(ctx context.Context, id uuid.UUID, body string, at time.Time) error
	SetTopicStatus(ctx context.Context, id uuid.UUID, status string) error

	InsertMessage(ctx context.Context, m *Message) (*Message, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
}

// PostgresRepository stores CRM entities in PostgreSQL via pgx.
type PostgresRepository struct {
	pool storage.DB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool storage.DB) *PostgresRepository {
	if pool == nil {
		panic("crm: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const customerColumns = `id, name, phone, phone_formatted, phone_key, customer_type, tags, total_spend, last_interaction_at, created_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	if err := row.Scan(
		&c.ID, &c.Name, &c.Phone, &c.PhoneFormatted, &c.PhoneKey,
		&c.CustomerType, &c.Tags, &c.TotalSpend, &c.LastInteractionAt, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindCustomerByPhoneKey looks up a customer by last-10-digit suffix match
// across stored phone fields.
func (r *PostgresRepository) FindCustomerByPhoneKey(ctx context.Context, phoneKey string) (*Customer, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE phone_key = $1 OR phone LIKE '%' || $1
		ORDER BY created_at ASC
		LIMIT 1
	`, phoneKey)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("crm: select customer: %w", err)
	}
	return c, nil
}

// UpsertCustomer inserts the customer, or returns the existing row when the
// phone key is already taken. The unique index on phone_key closes the
// concurrent first-contact race.
func (r *PostgresRepository) UpsertCustomer(ctx context.Context, c *Customer) (*Customer, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO customers (id, name, phone, phone_formatted, phone_key, customer_type, tags, total_spend, last_interaction_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (phone_key) DO UPDATE SET last_interaction_at = EXCLUDED.last_interaction_at
		RETURNING `+customerColumns+`
	`, c.ID, c.Name, c.Phone, c.PhoneFormatted, c.PhoneKey, c.CustomerType, c.Tags, c.TotalSpend, c.LastInteractionAt)
	saved, err := scanCustomer(row)
	if err != nil {
		return nil, fmt.Errorf("crm: upsert customer: %w", err)
	}
	return saved, nil
}

// TouchCustomer stamps the last interaction time.
func (r *PostgresRepository) TouchCustomer(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE customers SET last_interaction_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("crm: touch customer: %w", err)
	}
	return nil
}

const conversationColumns = `id, customer_id, channel, phone, phone_key, status, last_message_preview, last_message_at, unread_count, escalated_at, sla_deadline, sla_reminders_sent, created_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	if err := row.Scan(
		&c.ID, &c.CustomerID, &c.Channel, &c.Phone, &c.PhoneKey, &c.Status,
		&c.LastMessagePreview, &c.LastMessageAt, &c.UnreadCount,
		&c.EscalatedAt, &c.SLADeadline, &c.SLARemindersSent, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindConversation performs the defensive dual lookup: by customer id first,
// then by phone-suffix match, to survive inconsistent historical data.
func (r *PostgresRepository) FindConversation(ctx context.Context, customerID uuid.UUID, channel Channel, phoneKey string) (*Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE channel = $2 AND (customer_id = $1 OR phone_key = $3 OR phone LIKE '%' || $3)
		ORDER BY (customer_id = $1) DESC, created_at ASC
		LIMIT 1
	`, customerID, channel, phoneKey)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("crm: select conversation: %w", err)
	}
	return c, nil
}

// UpsertConversation inserts the conversation or returns the existing active
// row for the (customer, channel) pair.
func (r *PostgresRepository) UpsertConversation(ctx context.Context, c *Conversation) (*Conversation, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ConversationActive
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, customer_id, channel, phone, phone_key, status, unread_count)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
		ON CONFLICT (customer_id, channel) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING `+conversationColumns+`
	`, c.ID, c.CustomerID, c.Channel, c.Phone, c.PhoneKey, c.Status)
	saved, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("crm: upsert conversation: %w", err)
	}
	return saved, nil
}

// UpdateConversationPreview stores the last-message preview and optionally
// bumps the unread counter.
func (r *PostgresRepository) UpdateConversationPreview(ctx context.Context, id uuid.UUID, preview string, at time.Time, incrementUnread bool) error {
	bump := 0
	if incrementUnread {
		bump = 1
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET last_message_preview = $1, last_message_at = $2, unread_count = unread_count + $3
		WHERE id = $4
	`, truncatePreview(preview), at, bump, id)
	if err != nil {
		return fmt.Errorf("crm: update conversation preview: %w", err)
	}
	return nil
}

// SetConversationStatus transitions conversation lifecycle status.
func (r *PostgresRepository) SetConversationStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE conversations SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("crm: set conversation status: %w", err)
	}
	return nil
}

// MarkConversationEscalated stamps escalation bookkeeping on the conversation.
func (r *PostgresRepository) MarkConversationEscalated(ctx context.Context, id uuid.UUID, escalatedAt, slaDeadline time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET status = $1, escalated_at = $2, sla_deadline = $3
		WHERE id = $4
	`, ConversationWaitingForOwner, escalatedAt, slaDeadline, id)
	if err != nil {
		return fmt.Errorf("crm: mark conversation escalated: %w", err)
	}
	return nil
}

const topicColumns = `id, customer_id, conversation_id, type, title, status, last_customer_message, last_customer_message_at, created_at`

func scanTopic(row pgx.Row) (*Topic, error) {
	var t Topic
	if err := row.Scan(
		&t.ID, &t.CustomerID, &t.ConversationID, &t.Type, &t.Title, &t.Status,
		&t.LastCustomerMessage, &t.LastCustomerMessageAt, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

// FindActiveTopic returns the customer's single active topic, oldest first
// when legacy data holds more than one.
func (r *PostgresRepository) FindActiveTopic(ctx context.Context, customerID uuid.UUID) (*Topic, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+topicColumns+`
		FROM topics
		WHERE customer_id = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC
		LIMIT 1
	`, customerID, TopicOpen, TopicInProgress)
	t, err := scanTopic(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTopicNotFound
		}
		return nil, fmt.Errorf("crm: select active topic: %w", err)
	}
	return t, nil
}

// CreateTopic inserts a fresh topic in open state.
func (r *PostgresRepository) CreateTopic(ctx context.Context, t *Topic) (*Topic, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TopicOpen
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO topics (id, customer_id, conversation_id, type, title, status, last_customer_message, last_customer_message_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+topicColumns+`
	`, t.ID, t.CustomerID, t.ConversationID, t.Type, t.Title, t.Status, t.LastCustomerMessage, t.LastCustomerMessageAt)
	saved, err := scanTopic(row)
	if err != nil {
		return nil, fmt.Errorf("crm: insert topic: %w", err)
	}
	return saved, nil
}

// UpdateTopicLastMessage records the latest customer message on the topic.
func (r *PostgresRepository) UpdateTopicLastMessage(ctx context.Context, id uuid.UUID, body string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE topics SET last_customer_message = $1, last_customer_message_at = $2 WHERE id = $3
	`, body, at, id)
	if err != nil {
		return fmt.Errorf("crm: update topic last message: %w", err)
	}
	return nil
}

// SetTopicStatus transitions topic lifecycle status.
func (r *PostgresRepository) SetTopicStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE topics SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("crm: set topic status: %w", err)
	}
	return nil
}

// InsertMessage appends an immutable message row.
func (r *PostgresRepository) InsertMessage(ctx context.Context, m *Message) (*Message, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender, body, historical, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, m.ID, m.ConversationID, m.Sender, m.Body, m.Historical, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("crm: insert message: %w", err)
	}
	return m, nil
}

// RecentMessages returns up to limit messages in chronological order.
func (r *PostgresRepository) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 15
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, sender, body, historical, created_at
		FROM (
			SELECT id, conversation_id, sender, body, historical, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("crm: select recent messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Body, &m.Historical, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("crm: scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// truncatePreview cuts on a rune boundary; a byte slice could split a
// multi-byte character (Devanagari, emoji) and corrupt the preview.
func truncatePreview(body string) string {
	const max = 120
	if len(body) <= max {
		return body
	}
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max])
}
