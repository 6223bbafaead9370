package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/storage"
)

// Product is a sellable item referenced by lead-injection opening messages.
type Product struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	InStock   bool      `json:"in_stock"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository looks up products by fuzzy name match.
type Repository interface {
	FindByName(ctx context.Context, name string) (*Product, error)
}

// ErrProductNotFound is returned when no product matches the name.
var ErrProductNotFound = errors.New("product not found")

// PostgresRepository reads products via pgx.
type PostgresRepository struct {
	pool storage.DB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool storage.DB) *PostgresRepository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

// FindByName returns the closest product whose name contains the query
// (case-insensitive), preferring in-stock items.
func (r *PostgresRepository) FindByName(ctx context.Context, name string) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrProductNotFound
	}
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, price, in_stock, created_at
		FROM products
		WHERE lower(name) LIKE '%' || lower($1) || '%'
		ORDER BY in_stock DESC, length(name) ASC
		LIMIT 1
	`, name)

	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.InStock, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("catalog: select product: %w", err)
	}
	return &p, nil
}

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	Products []Product
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) FindByName(_ context.Context, name string) (*Product, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return nil, ErrProductNotFound
	}
	for _, p := range r.Products {
		if strings.Contains(strings.ToLower(p.Name), lower) || strings.Contains(lower, strings.ToLower(p.Name)) {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrProductNotFound
}
