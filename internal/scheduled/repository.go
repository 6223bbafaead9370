package scheduled

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/storage"
)

// Scheduled message lifecycle statuses.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusCancelled = "cancelled"
)

// Message is an automated outbound message queued for a future time,
// such as a follow-up or a re-engagement nudge.
type Message struct {
	ID           uuid.UUID  `json:"id"`
	Phone        string     `json:"phone"`
	PhoneKey     string     `json:"phone_key"`
	TopicID      *uuid.UUID `json:"topic_id,omitempty"`
	Body         string     `json:"body"`
	MessageType  string     `json:"message_type"`
	SendAt       time.Time  `json:"send_at"`
	Status       string     `json:"status"`
	StatusReason string     `json:"status_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

// Repository persists the outbound queue.
type Repository interface {
	Schedule(ctx context.Context, msg *Message) error
	Due(ctx context.Context, now time.Time, limit int) ([]Message, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	Cancel(ctx context.Context, id uuid.UUID, reason string) error
}

// PostgresRepository stores the queue in scheduled_messages via pgx.
type PostgresRepository struct {
	pool storage.DB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool storage.DB) *PostgresRepository {
	if pool == nil {
		panic("scheduled: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

// Schedule enqueues one message.
func (r *PostgresRepository) Schedule(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Status == "" {
		msg.Status = StatusPending
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduled_messages (id, phone, phone_key, topic_id, body, message_type, send_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.Phone, msg.PhoneKey, msg.TopicID, msg.Body, msg.MessageType, msg.SendAt, msg.Status, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("scheduled: insert: %w", err)
	}
	return nil
}

// Due returns pending messages whose send time has arrived, oldest first.
func (r *PostgresRepository) Due(ctx context.Context, now time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, phone, phone_key, topic_id, body, message_type, send_at, status, status_reason, created_at, sent_at
		FROM scheduled_messages
		WHERE status = $1 AND send_at <= $2
		ORDER BY send_at ASC
		LIMIT $3
	`, StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("scheduled: select due: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// MarkSent stamps delivery.
func (r *PostgresRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_messages SET status = $2, sent_at = $3 WHERE id = $1
	`, id, StatusSent, at)
	if err != nil {
		return fmt.Errorf("scheduled: mark sent: %w", err)
	}
	return nil
}

// Cancel drops the message from the queue with a reason for the audit trail.
func (r *PostgresRepository) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_messages SET status = $2, status_reason = $3 WHERE id = $1
	`, id, StatusCancelled, reason)
	if err != nil {
		return fmt.Errorf("scheduled: cancel: %w", err)
	}
	return nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var msg Message
	err := row.Scan(&msg.ID, &msg.Phone, &msg.PhoneKey, &msg.TopicID, &msg.Body, &msg.MessageType,
		&msg.SendAt, &msg.Status, &msg.StatusReason, &msg.CreatedAt, &msg.SentAt)
	if err != nil {
		return Message{}, fmt.Errorf("scheduled: scan: %w", err)
	}
	return msg, nil
}

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Message
}

// NewMemoryRepository builds an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[uuid.UUID]*Message)}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Schedule(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Status == "" {
		msg.Status = StatusPending
	}
	cp := *msg
	r.records[msg.ID] = &cp
	return nil
}

func (r *MemoryRepository) Due(_ context.Context, now time.Time, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []Message
	for _, msg := range r.records {
		if msg.Status == StatusPending && !msg.SendAt.After(now) {
			out = append(out, *msg)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.records[id]; ok {
		msg.Status = StatusSent
		msg.SentAt = &at
	}
	return nil
}

func (r *MemoryRepository) Cancel(_ context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.records[id]; ok {
		msg.Status = StatusCancelled
		msg.StatusReason = reason
	}
	return nil
}

// Get returns a copy of one queued message. Test helper.
func (r *MemoryRepository) Get(id uuid.UUID) (*Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.records[id]
	if !ok {
		return nil, false
	}
	cp := *msg
	return &cp, true
}
