package exclusions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/storage"
)

// SilentMessage is an audit row for traffic from excluded numbers.
type SilentMessage struct {
	ID        uuid.UUID `json:"id"`
	Phone     string    `json:"phone"`
	Body      string    `json:"body"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// SilentLog persists messages that were observed but never answered.
type SilentLog interface {
	Record(ctx context.Context, phone, body, reason string) error
}

// PostgresSilentLog appends silent_messages rows.
type PostgresSilentLog struct {
	pool storage.DB
}

// NewPostgresSilentLog initializes the log backed by pgxpool.
func NewPostgresSilentLog(pool storage.DB) *PostgresSilentLog {
	if pool == nil {
		panic("exclusions: pgx pool required")
	}
	return &PostgresSilentLog{pool: pool}
}

var _ SilentLog = (*PostgresSilentLog)(nil)

// Record appends one audit row keyed by phone.
func (l *PostgresSilentLog) Record(ctx context.Context, phone, body, reason string) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO silent_messages (id, phone, body, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), phone, body, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("exclusions: record silent message: %w", err)
	}
	return nil
}

// MemorySilentLog collects silent messages in memory for tests.
type MemorySilentLog struct {
	mu      sync.Mutex
	Entries []SilentMessage
}

var _ SilentLog = (*MemorySilentLog)(nil)

func (l *MemorySilentLog) Record(_ context.Context, phone, body, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, SilentMessage{
		ID:        uuid.New(),
		Phone:     phone,
		Body:      body,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}
