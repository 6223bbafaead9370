package crm

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository used by tests and local tooling.
// It mirrors the uniqueness guarantees the Postgres schema enforces.
type MemoryRepository struct {
	mu            sync.Mutex
	customers     map[uuid.UUID]*Customer
	conversations map[uuid.UUID]*Conversation
	topics        map[uuid.UUID]*Topic
	messages      []Message
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		customers:     make(map[uuid.UUID]*Customer),
		conversations: make(map[uuid.UUID]*Conversation),
		topics:        make(map[uuid.UUID]*Topic),
	}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) FindCustomerByPhoneKey(_ context.Context, phoneKey string) (*Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *Customer
	for _, c := range r.customers {
		if c.PhoneKey == phoneKey || strings.HasSuffix(c.Phone, phoneKey) {
			if found == nil || c.CreatedAt.Before(found.CreatedAt) {
				found = c
			}
		}
	}
	if found == nil {
		return nil, ErrCustomerNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *MemoryRepository) UpsertCustomer(_ context.Context, c *Customer) (*Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.customers {
		if existing.PhoneKey == c.PhoneKey {
			existing.LastInteractionAt = c.LastInteractionAt
			cp := *existing
			return &cp, nil
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	r.customers[c.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryRepository) TouchCustomer(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.customers[id]; ok {
		c.LastInteractionAt = at
	}
	return nil
}

func (r *MemoryRepository) FindConversation(_ context.Context, customerID uuid.UUID, channel Channel, phoneKey string) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conversations {
		if c.Channel != channel {
			continue
		}
		if c.CustomerID == customerID || c.PhoneKey == phoneKey || strings.HasSuffix(c.Phone, phoneKey) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrConversationNotFound
}

func (r *MemoryRepository) UpsertConversation(_ context.Context, c *Conversation) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.conversations {
		if existing.CustomerID == c.CustomerID && existing.Channel == c.Channel {
			cp := *existing
			return &cp, nil
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ConversationActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	r.conversations[c.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryRepository) UpdateConversationPreview(_ context.Context, id uuid.UUID, preview string, at time.Time, incrementUnread bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	c.LastMessagePreview = preview
	c.LastMessageAt = &at
	if incrementUnread {
		c.UnreadCount++
	}
	return nil
}

func (r *MemoryRepository) SetConversationStatus(_ context.Context, id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	c.Status = status
	return nil
}

func (r *MemoryRepository) MarkConversationEscalated(_ context.Context, id uuid.UUID, escalatedAt, slaDeadline time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	c.Status = ConversationWaitingForOwner
	c.EscalatedAt = &escalatedAt
	c.SLADeadline = &slaDeadline
	return nil
}

func (r *MemoryRepository) FindActiveTopic(_ context.Context, customerID uuid.UUID) (*Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *Topic
	for _, t := range r.topics {
		if t.CustomerID != customerID || !t.Active() {
			continue
		}
		if found == nil || t.CreatedAt.Before(found.CreatedAt) {
			found = t
		}
	}
	if found == nil {
		return nil, ErrTopicNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *MemoryRepository) CreateTopic(_ context.Context, t *Topic) (*Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TopicOpen
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	cp := *t
	r.topics[t.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryRepository) UpdateTopicLastMessage(_ context.Context, id uuid.UUID, body string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok {
		return ErrTopicNotFound
	}
	t.LastCustomerMessage = body
	t.LastCustomerMessageAt = &at
	return nil
}

func (r *MemoryRepository) SetTopicStatus(_ context.Context, id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok {
		return ErrTopicNotFound
	}
	t.Status = status
	return nil
}

func (r *MemoryRepository) InsertMessage(_ context.Context, m *Message) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	r.messages = append(r.messages, *m)
	cp := *m
	return &cp, nil
}

func (r *MemoryRepository) RecentMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Messages returns a copy of all stored messages, for assertions in tests.
func (r *MemoryRepository) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Conversation returns a stored conversation by id, for assertions in tests.
func (r *MemoryRepository) Conversation(id uuid.UUID) (*Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}
