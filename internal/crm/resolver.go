package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

// Resolver idempotently finds or creates the customer, conversation and
// active topic for a normalized phone number.
type Resolver struct {
	repo   Repository
	norm   *phone.Normalizer
	clock  func() time.Time
	logger *logging.Logger
}

// NewResolver wires a resolver over the CRM repository.
func NewResolver(repo Repository, norm *phone.Normalizer, logger *logging.Logger) *Resolver {
	if repo == nil {
		panic("crm: repository required")
	}
	if norm == nil {
		norm = phone.NewNormalizer("")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		repo:   repo,
		norm:   norm,
		clock:  func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// WithClock overrides the resolver clock, for tests.
func (r *Resolver) WithClock(clock func() time.Time) *Resolver {
	r.clock = clock
	return r
}

// Resolve returns the customer and active conversation for a phone number,
// creating both when absent. Calling it twice with the same number and no
// intervening state change yields the same identifiers.
func (r *Resolver) Resolve(ctx context.Context, rawPhone, nameHint string, provenanceTags ...string) (*Customer, *Conversation, error) {
	number := r.norm.Normalize(rawPhone)
	if number.Clean == "" {
		return nil, nil, fmt.Errorf("crm: unresolvable phone %q", rawPhone)
	}
	key := phone.MatchKey(number.Clean)
	now := r.clock()

	customer, err := r.repo.FindCustomerByPhoneKey(ctx, key)
	switch {
	case errors.Is(err, ErrCustomerNotFound):
		name := nameHint
		if name == "" {
			name = number.Formatted
		}
		tags := provenanceTags
		if len(tags) == 0 {
			tags = []string{"whatsapp/new"}
		}
		customer, err = r.repo.UpsertCustomer(ctx, &Customer{
			Name:              name,
			Phone:             number.Clean,
			PhoneFormatted:    number.Formatted,
			PhoneKey:          key,
			CustomerType:      "retail",
			Tags:              tags,
			LastInteractionAt: now,
		})
		if err != nil {
			return nil, nil, err
		}
		r.logger.Info("customer created", "customer_id", customer.ID, "phone_key", key)
	case err != nil:
		return nil, nil, err
	}

	conversation, err := r.repo.FindConversation(ctx, customer.ID, ChannelWhatsApp, key)
	switch {
	case errors.Is(err, ErrConversationNotFound):
		conversation, err = r.repo.UpsertConversation(ctx, &Conversation{
			CustomerID: customer.ID,
			Channel:    ChannelWhatsApp,
			Phone:      number.Clean,
			PhoneKey:   key,
			Status:     ConversationActive,
		})
		if err != nil {
			return nil, nil, err
		}
		r.logger.Info("conversation created", "conversation_id", conversation.ID, "customer_id", customer.ID)
	case err != nil:
		return nil, nil, err
	}

	return customer, conversation, nil
}

// EnsureTopic attaches the message to the customer's active topic, creating
// one classified from the message when none exists. A second open or
// in-progress topic is never created while one is active.
func (r *Resolver) EnsureTopic(ctx context.Context, customer *Customer, conversation *Conversation, message string) (*Topic, bool, error) {
	topic, err := r.repo.FindActiveTopic(ctx, customer.ID)
	if err == nil {
		return topic, false, nil
	}
	if !errors.Is(err, ErrTopicNotFound) {
		return nil, false, err
	}

	topicType := ClassifyTopic(message)
	now := r.clock()
	topic, err = r.repo.CreateTopic(ctx, &Topic{
		CustomerID:            customer.ID,
		ConversationID:        conversation.ID,
		Type:                  topicType,
		Title:                 TopicTitle(message, topicType),
		Status:                TopicOpen,
		LastCustomerMessage:   message,
		LastCustomerMessageAt: &now,
	})
	if err != nil {
		return nil, false, err
	}
	r.logger.Info("topic created", "topic_id", topic.ID, "type", topic.Type, "title", topic.Title)
	return topic, true, nil
}
