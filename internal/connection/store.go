package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/storage"
)

// Store remembers, per phone, when the WhatsApp gateway connection went
// live. Anything timestamped before a number's cutover is a backfilled
// historical message, not live traffic.
type Store interface {
	RecordCutover(ctx context.Context, rawPhone string, at time.Time) error
	CutoverFor(ctx context.Context, rawPhone string) (*time.Time, error)
}

// PostgresStore persists cutovers keyed by the last-10-digit phone key.
type PostgresStore struct {
	pool storage.DB
	norm *phone.Normalizer
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool storage.DB, norm *phone.Normalizer) *PostgresStore {
	if pool == nil {
		panic("connection: pgx pool required")
	}
	if norm == nil {
		norm = phone.NewNormalizer("")
	}
	return &PostgresStore{pool: pool, norm: norm}
}

var _ Store = (*PostgresStore)(nil)

// RecordCutover upserts the connection time for a number. A reconnect
// moves the cutover forward.
func (s *PostgresStore) RecordCutover(ctx context.Context, rawPhone string, at time.Time) error {
	key := s.norm.MatchKey(rawPhone)
	if key == "" {
		return fmt.Errorf("connection: cannot derive phone key from %q", rawPhone)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO connection_cutovers (phone_key, phone, connected_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone_key) DO UPDATE SET phone = EXCLUDED.phone, connected_at = EXCLUDED.connected_at
	`, key, rawPhone, at.UTC())
	if err != nil {
		return fmt.Errorf("connection: record cutover: %w", err)
	}
	return nil
}

// CutoverFor returns the connection time for a number, or nil when the
// number was never connected through the gateway.
func (s *PostgresStore) CutoverFor(ctx context.Context, rawPhone string) (*time.Time, error) {
	key := s.norm.MatchKey(rawPhone)
	if key == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `
		SELECT connected_at FROM connection_cutovers WHERE phone_key = $1
	`, key)

	var at time.Time
	if err := row.Scan(&at); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("connection: select cutover: %w", err)
	}
	return &at, nil
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu       sync.Mutex
	cutovers map[string]time.Time
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cutovers: make(map[string]time.Time)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) RecordCutover(_ context.Context, rawPhone string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutovers[phone.MatchKey(rawPhone)] = at.UTC()
	return nil
}

func (s *MemoryStore) CutoverFor(_ context.Context, rawPhone string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.cutovers[phone.MatchKey(rawPhone)]
	if !ok {
		return nil, nil
	}
	return &at, nil
}
