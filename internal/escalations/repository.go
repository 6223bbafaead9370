package escalations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/storage"
)

// ErrEscalationNotFound is returned when a lookup by code or id misses.
var ErrEscalationNotFound = errors.New("escalation not found")

// Repository persists escalations and their SLA bookkeeping.
type Repository interface {
	Create(ctx context.Context, esc *Escalation) error
	Pending(ctx context.Context) ([]Escalation, error)
	MostRecentPending(ctx context.Context) (*Escalation, error)
	FindPendingByCode(ctx context.Context, code string) (*Escalation, error)
	Resolve(ctx context.Context, id uuid.UUID, ownerReply string) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	IncrementReminders(ctx context.Context, id uuid.UUID) error
	CountPending(ctx context.Context) (int, error)
}

const pendingStatuses = "('pending', 'pending_owner_reply', 'reviewed')"

// PostgresRepository stores escalations via pgx. Codes come from a
// dedicated sequence so they stay short and human-quotable.
type PostgresRepository struct {
	pool storage.DB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool storage.DB) *PostgresRepository {
	if pool == nil {
		panic("escalations: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

// Create inserts the escalation, assigning the next ESCnn code.
func (r *PostgresRepository) Create(ctx context.Context, esc *Escalation) error {
	if esc.ID == uuid.Nil {
		esc.ID = uuid.New()
	}
	if esc.Status == "" {
		esc.Status = StatusPending
	}
	if esc.Priority == "" {
		esc.Priority = PriorityNormal
	}
	if esc.CreatedAt.IsZero() {
		esc.CreatedAt = time.Now().UTC()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO escalations (id, code, conversation_id, topic_id, customer_phone, customer_message, reason, priority, status, sla_deadline, reminders_sent, created_at)
		VALUES ($1, 'ESC' || lpad(nextval('escalation_code_seq')::text, 2, '0'), $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)
		RETURNING code
	`, esc.ID, esc.ConversationID, esc.TopicID, esc.CustomerPhone, esc.CustomerMessage, esc.Reason, esc.Priority, esc.Status, esc.SLADeadline, esc.CreatedAt)
	if err := row.Scan(&esc.Code); err != nil {
		return fmt.Errorf("escalations: insert: %w", err)
	}
	return nil
}

// Pending lists open escalations, oldest deadline first.
func (r *PostgresRepository) Pending(ctx context.Context) ([]Escalation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, conversation_id, topic_id, customer_phone, customer_message, reason, priority, status, sla_deadline, reminders_sent, created_at, resolved_at, owner_reply
		FROM escalations
		WHERE status IN `+pendingStatuses+`
		ORDER BY sla_deadline ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("escalations: select pending: %w", err)
	}
	defer rows.Close()

	var out []Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, esc)
	}
	return out, rows.Err()
}

// MostRecentPending returns the newest open escalation, or nil when the
// queue is empty. Used to resolve owner replies that carry no code.
func (r *PostgresRepository) MostRecentPending(ctx context.Context) (*Escalation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, code, conversation_id, topic_id, customer_phone, customer_message, reason, priority, status, sla_deadline, reminders_sent, created_at, resolved_at, owner_reply
		FROM escalations
		WHERE status IN `+pendingStatuses+`
		ORDER BY created_at DESC
		LIMIT 1
	`)
	esc, err := scanEscalation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &esc, nil
}

// FindPendingByCode looks up an open escalation by its ESCnn code.
func (r *PostgresRepository) FindPendingByCode(ctx context.Context, code string) (*Escalation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, code, conversation_id, topic_id, customer_phone, customer_message, reason, priority, status, sla_deadline, reminders_sent, created_at, resolved_at, owner_reply
		FROM escalations
		WHERE code = $1 AND status IN `+pendingStatuses+`
		LIMIT 1
	`, strings.ToUpper(strings.TrimSpace(code)))
	esc, err := scanEscalation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEscalationNotFound
		}
		return nil, err
	}
	return &esc, nil
}

// Resolve closes the escalation, keeping the owner's verbatim answer on
// the record.
func (r *PostgresRepository) Resolve(ctx context.Context, id uuid.UUID, ownerReply string) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE escalations
		SET status = $2, resolved_at = $3, owner_reply = $4
		WHERE id = $1
	`, id, StatusResolved, time.Now().UTC(), ownerReply)
	if err != nil {
		return fmt.Errorf("escalations: resolve: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrEscalationNotFound
	}
	return nil
}

// SetStatus moves the escalation through its lifecycle without touching
// resolution fields.
func (r *PostgresRepository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE escalations SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("escalations: set status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrEscalationNotFound
	}
	return nil
}

// IncrementReminders bumps the reminder counter after an SLA nudge.
func (r *PostgresRepository) IncrementReminders(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE escalations SET reminders_sent = reminders_sent + 1 WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("escalations: increment reminders: %w", err)
	}
	return nil
}

// CountPending returns the size of the open queue.
func (r *PostgresRepository) CountPending(ctx context.Context) (int, error) {
	row := r.pool.QueryRow(ctx, `SELECT count(*) FROM escalations WHERE status IN `+pendingStatuses)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("escalations: count pending: %w", err)
	}
	return n, nil
}

func scanEscalation(row pgx.Row) (Escalation, error) {
	var esc Escalation
	err := row.Scan(&esc.ID, &esc.Code, &esc.ConversationID, &esc.TopicID, &esc.CustomerPhone, &esc.CustomerMessage,
		&esc.Reason, &esc.Priority, &esc.Status, &esc.SLADeadline, &esc.RemindersSent, &esc.CreatedAt, &esc.ResolvedAt, &esc.OwnerReply)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escalation{}, pgx.ErrNoRows
		}
		return Escalation{}, fmt.Errorf("escalations: scan: %w", err)
	}
	return esc, nil
}

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	seq     int
	records map[uuid.UUID]*Escalation
}

// NewMemoryRepository builds an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[uuid.UUID]*Escalation)}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Create(_ context.Context, esc *Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if esc.ID == uuid.Nil {
		esc.ID = uuid.New()
	}
	if esc.Status == "" {
		esc.Status = StatusPending
	}
	if esc.Priority == "" {
		esc.Priority = PriorityNormal
	}
	if esc.CreatedAt.IsZero() {
		esc.CreatedAt = time.Now().UTC()
	}
	r.seq++
	esc.Code = fmt.Sprintf("ESC%02d", r.seq)
	cp := *esc
	r.records[esc.ID] = &cp
	return nil
}

func (r *MemoryRepository) Pending(_ context.Context) ([]Escalation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Escalation
	for _, esc := range r.records {
		if esc.Open() {
			out = append(out, *esc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SLADeadline.Before(out[j].SLADeadline) })
	return out, nil
}

func (r *MemoryRepository) MostRecentPending(_ context.Context) (*Escalation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *Escalation
	for _, esc := range r.records {
		if !esc.Open() {
			continue
		}
		if latest == nil || esc.CreatedAt.After(latest.CreatedAt) {
			latest = esc
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryRepository) FindPendingByCode(_ context.Context, code string) (*Escalation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, esc := range r.records {
		if esc.Code == code && esc.Open() {
			cp := *esc
			return &cp, nil
		}
	}
	return nil, ErrEscalationNotFound
}

func (r *MemoryRepository) Resolve(_ context.Context, id uuid.UUID, ownerReply string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	esc, ok := r.records[id]
	if !ok {
		return ErrEscalationNotFound
	}
	now := time.Now().UTC()
	esc.Status = StatusResolved
	esc.ResolvedAt = &now
	esc.OwnerReply = &ownerReply
	return nil
}

func (r *MemoryRepository) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	esc, ok := r.records[id]
	if !ok {
		return ErrEscalationNotFound
	}
	esc.Status = status
	return nil
}

func (r *MemoryRepository) IncrementReminders(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	esc, ok := r.records[id]
	if !ok {
		return ErrEscalationNotFound
	}
	esc.RemindersSent++
	return nil
}

func (r *MemoryRepository) CountPending(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, esc := range r.records {
		if esc.Open() {
			n++
		}
	}
	return n, nil
}
