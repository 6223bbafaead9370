package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/storage"
)

// Entry is one knowledge-base excerpt fed into the AI context window.
// Ingestion (Excel import, website scraping) happens outside the core.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Keywords  []string  `json:"keywords"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository retrieves excerpts relevant to a customer message.
type Repository interface {
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
}

// PostgresRepository searches knowledge_entries via pgx.
type PostgresRepository struct {
	pool storage.DB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool storage.DB) *PostgresRepository {
	if pool == nil {
		panic("knowledge: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

// Search returns entries whose title, content or keywords overlap the query
// words. Plain ILIKE matching is enough at the knowledge-base sizes this
// system carries.
func (r *PostgresRepository) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 3
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, content, keywords, created_at
		FROM knowledge_entries
		WHERE lower(title) LIKE $1
		   OR lower(content) LIKE $1
		   OR EXISTS (SELECT 1 FROM unnest(keywords) kw WHERE $2 LIKE '%' || lower(kw) || '%')
		ORDER BY created_at DESC
		LIMIT $3
	`, pattern, strings.ToLower(query), limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Title, &e.Content, &e.Keywords, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("knowledge: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	Entries []Entry
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Search(_ context.Context, query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 3
	}
	lower := strings.ToLower(query)
	var out []Entry
	for _, e := range r.Entries {
		if len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(e.Title), lower) || strings.Contains(strings.ToLower(e.Content), lower) {
			out = append(out, e)
			continue
		}
		for _, kw := range e.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}
