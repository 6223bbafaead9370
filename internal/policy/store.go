package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/storage"
)

// Store tracks automated sends so the engine can enforce cooldowns and caps.
type Store interface {
	LastSentAt(ctx context.Context, phoneKey string) (*time.Time, error)
	CountForTopic(ctx context.Context, phoneKey string, topicID uuid.UUID) (int, error)
	RecordSend(ctx context.Context, phoneKey string, topicID uuid.UUID, messageType string) error
}

// PostgresStore persists the audit trail in auto_messages_sent.
type PostgresStore struct {
	pool storage.DB
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool storage.DB) *PostgresStore {
	if pool == nil {
		panic("policy: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// LastSentAt returns the time of the most recent automated send to this
// number across all topics, or nil when nothing was ever sent.
func (s *PostgresStore) LastSentAt(ctx context.Context, phoneKey string) (*time.Time, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT sent_at FROM auto_messages_sent
		WHERE phone_key = $1
		ORDER BY sent_at DESC
		LIMIT 1
	`, phoneKey)

	var sentAt time.Time
	if err := row.Scan(&sentAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("policy: last sent: %w", err)
	}
	return &sentAt, nil
}

// CountForTopic counts automated sends already charged against a topic.
func (s *PostgresStore) CountForTopic(ctx context.Context, phoneKey string, topicID uuid.UUID) (int, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM auto_messages_sent
		WHERE phone_key = $1 AND topic_id = $2
	`, phoneKey, topicID)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("policy: count for topic: %w", err)
	}
	return n, nil
}

// RecordSend appends one audit row after a successful automated send.
// A topic-less send is stored with a NULL topic so it never pollutes a
// shared zero-UUID bucket.
func (s *PostgresStore) RecordSend(ctx context.Context, phoneKey string, topicID uuid.UUID, messageType string) error {
	var topic *uuid.UUID
	if topicID != uuid.Nil {
		topic = &topicID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auto_messages_sent (id, phone_key, topic_id, message_type, sent_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), phoneKey, topic, messageType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("policy: record send: %w", err)
	}
	return nil
}

type sendRecord struct {
	phoneKey    string
	topicID     uuid.UUID
	messageType string
	sentAt      time.Time
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	records []sendRecord
	now     func() time.Time
}

// NewMemoryStore builds an empty store. clock may be nil.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{now: clock}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) LastSentAt(_ context.Context, phoneKey string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *time.Time
	for i := range s.records {
		if s.records[i].phoneKey != phoneKey {
			continue
		}
		t := s.records[i].sentAt
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}
	return latest, nil
}

func (s *MemoryStore) CountForTopic(_ context.Context, phoneKey string, topicID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.records {
		if s.records[i].phoneKey == phoneKey && s.records[i].topicID == topicID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) RecordSend(_ context.Context, phoneKey string, topicID uuid.UUID, messageType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, sendRecord{
		phoneKey:    phoneKey,
		topicID:     topicID,
		messageType: messageType,
		sentAt:      s.now(),
	})
	return nil
}
