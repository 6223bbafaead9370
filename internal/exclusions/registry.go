package exclusions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/storage"
)

// ExclusionRecord describes a number on the silent-monitoring list.
type ExclusionRecord struct {
	ID        uuid.UUID `json:"id"`
	Phone     string    `json:"phone"`
	Tag       string    `json:"tag"`
	Reason    string    `json:"reason"`
	Temporary bool      `json:"temporary"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry answers whether a number is on the silent-monitoring list.
// The core only reads it; list maintenance is an external CRUD concern.
type Registry interface {
	IsExcluded(ctx context.Context, rawPhone string) (bool, error)
	Info(ctx context.Context, rawPhone string) (*ExclusionRecord, error)
}

// PostgresRegistry reads excluded_numbers via pgx.
type PostgresRegistry struct {
	pool storage.DB
	norm *phone.Normalizer
}

// NewPostgresRegistry initializes a registry backed by pgxpool.
func NewPostgresRegistry(pool storage.DB, norm *phone.Normalizer) *PostgresRegistry {
	if pool == nil {
		panic("exclusions: pgx pool required")
	}
	if norm == nil {
		norm = phone.NewNormalizer("")
	}
	return &PostgresRegistry{pool: pool, norm: norm}
}

var _ Registry = (*PostgresRegistry)(nil)

// IsExcluded reports list membership for a phone in any historical format.
func (r *PostgresRegistry) IsExcluded(ctx context.Context, rawPhone string) (bool, error) {
	rec, err := r.Info(ctx, rawPhone)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Info returns the exclusion record, or nil when the number is not listed.
// Stored numbers match by last-10-digit suffix containment or raw equality.
func (r *PostgresRegistry) Info(ctx context.Context, rawPhone string) (*ExclusionRecord, error) {
	key := r.norm.MatchKey(rawPhone)
	if key == "" {
		return nil, nil
	}
	row := r.pool.QueryRow(ctx, `
		SELECT id, phone, tag, reason, temporary, created_at
		FROM excluded_numbers
		WHERE phone LIKE '%' || $1 || '%' OR phone = $2
		LIMIT 1
	`, key, rawPhone)

	var rec ExclusionRecord
	if err := row.Scan(&rec.ID, &rec.Phone, &rec.Tag, &rec.Reason, &rec.Temporary, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("exclusions: select: %w", err)
	}
	return &rec, nil
}

// MemoryRegistry is an in-memory Registry for tests.
type MemoryRegistry struct {
	records map[string]*ExclusionRecord
}

// NewMemoryRegistry builds a registry over a fixed set of phone numbers.
func NewMemoryRegistry(norm *phone.Normalizer, phones ...string) *MemoryRegistry {
	if norm == nil {
		norm = phone.NewNormalizer("")
	}
	records := make(map[string]*ExclusionRecord, len(phones))
	for _, p := range phones {
		records[norm.MatchKey(p)] = &ExclusionRecord{
			ID:     uuid.New(),
			Phone:  p,
			Tag:    "test",
			Reason: "seeded",
		}
	}
	return &MemoryRegistry{records: records}
}

var _ Registry = (*MemoryRegistry)(nil)

func (r *MemoryRegistry) IsExcluded(_ context.Context, rawPhone string) (bool, error) {
	_, ok := r.records[phone.MatchKey(rawPhone)]
	return ok, nil
}

func (r *MemoryRegistry) Info(_ context.Context, rawPhone string) (*ExclusionRecord, error) {
	rec, ok := r.records[phone.MatchKey(rawPhone)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}
