package inbound

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/ai"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/catalog"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/commands"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/connection"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/crm"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/escalations"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/exclusions"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/messaging"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/observability/metrics"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/policy"
	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

var routerTracer = otel.Tracer("charu.internal.inbound")

// Routing outcomes, in the order the router considers them.
const (
	ModeHistorical     = "historical"
	ModeSilent         = "silent"
	ModeOwnerReply     = "owner_reply_forwarded"
	ModeOwnerNoPending = "owner_no_pending"
	ModeLeadInjection  = "lead_injection"
	ModeNormal         = "normal"
)

// InboundMessage is one message delivered by the WhatsApp gateway.
type InboundMessage struct {
	Phone      string    `json:"phone"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
	MessageID  string    `json:"message_id"`
	HasMedia   bool      `json:"has_media"`
	Historical bool      `json:"historical"`
}

// Outcome reports what the router did with a message. It is always
// produced; a panic or downstream failure yields Success=false.
type Outcome struct {
	Success        bool      `json:"success"`
	Mode           string    `json:"mode"`
	CustomerID     uuid.UUID `json:"customer_id,omitempty"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
	TopicID        uuid.UUID `json:"topic_id,omitempty"`
	Reply          string    `json:"reply,omitempty"`
	Escalated      bool      `json:"escalated,omitempty"`
	Ambiguous      bool      `json:"ambiguous,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Config carries the router's scalar knobs.
type Config struct {
	OwnerPhone    string
	HistoryWindow int
	// AutoReplyDisabled turns the bot off: inbound messages are still
	// persisted for the owner to read, but no AI reply goes out.
	AutoReplyDisabled bool
}

// Router is the single entry point for inbound traffic. It decides, in
// priority order, whether a message is historical backfill, excluded,
// an owner command, or a normal customer message.
type Router struct {
	resolver  *crm.Resolver
	repo      crm.Repository
	registry  exclusions.Registry
	silentLog exclusions.SilentLog
	generator *ai.Generator
	messenger messaging.Messenger
	engine    *policy.Engine
	escRepo   escalations.Repository
	tracker   *escalations.Tracker
	catalog   catalog.Repository
	cutovers  connection.Store
	norm      *phone.Normalizer
	cfg       Config
	locks     *keyedMutex
	clock     func() time.Time
	metrics   *metrics.RouterMetrics
	logger    *logging.Logger
}

// Deps bundles the router's collaborators.
type Deps struct {
	Resolver  *crm.Resolver
	Repo      crm.Repository
	Registry  exclusions.Registry
	SilentLog exclusions.SilentLog
	Generator *ai.Generator
	Messenger messaging.Messenger
	Engine    *policy.Engine
	EscRepo   escalations.Repository
	Tracker   *escalations.Tracker
	Catalog   catalog.Repository
	Cutovers  connection.Store
	Normalizer *phone.Normalizer
	Metrics   *metrics.RouterMetrics
	Logger    *logging.Logger
}

// NewRouter wires the orchestrator. Registry, SilentLog, Catalog,
// Cutovers and Metrics may be nil; the matching branches degrade to
// no-ops.
func NewRouter(deps Deps, cfg Config) *Router {
	if deps.Resolver == nil {
		panic("inbound: resolver required")
	}
	if deps.Repo == nil {
		panic("inbound: crm repository required")
	}
	if deps.Generator == nil {
		panic("inbound: ai generator required")
	}
	if deps.Messenger == nil {
		panic("inbound: messenger required")
	}
	if deps.Normalizer == nil {
		deps.Normalizer = phone.NewNormalizer("")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 15
	}
	return &Router{
		resolver:  deps.Resolver,
		repo:      deps.Repo,
		registry:  deps.Registry,
		silentLog: deps.SilentLog,
		generator: deps.Generator,
		messenger: deps.Messenger,
		engine:    deps.Engine,
		escRepo:   deps.EscRepo,
		tracker:   deps.Tracker,
		catalog:   deps.Catalog,
		cutovers:  deps.Cutovers,
		norm:      deps.Normalizer,
		cfg:       cfg,
		locks:     newKeyedMutex(),
		clock:     func() time.Time { return time.Now().UTC() },
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// WithClock overrides the time source. Test hook.
func (r *Router) WithClock(clock func() time.Time) *Router {
	r.clock = clock
	return r
}

// Route processes one inbound message end to end. It never panics out:
// any failure is captured in the outcome so the webhook can always ack.
func (r *Router) Route(ctx context.Context, msg InboundMessage) (out Outcome) {
	ctx, span := routerTracer.Start(ctx, "inbound.route")
	defer span.End()
	start := r.clock()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("inbound routing panicked", "phone", msg.Phone, "panic", rec)
			out = Outcome{Success: false, Mode: out.Mode, Error: fmt.Sprintf("panic: %v", rec)}
		}
		span.SetAttributes(attribute.String("charu.route_mode", out.Mode))
		r.metrics.ObserveInbound(out.Mode, out.Success)
		r.metrics.ObserveWebhookLatency(out.Mode, r.clock().Sub(start).Seconds())
	}()

	key := r.norm.MatchKey(msg.Phone)
	if key == "" {
		return Outcome{Success: false, Mode: ModeNormal, Error: fmt.Sprintf("unresolvable phone %q", msg.Phone)}
	}
	unlock := r.locks.Lock(key)
	defer unlock()

	if r.isHistorical(ctx, msg) {
		return r.routeHistorical(ctx, msg)
	}

	if r.registry != nil {
		excluded, err := r.registry.IsExcluded(ctx, msg.Phone)
		if err != nil {
			return Outcome{Success: false, Mode: ModeSilent, Error: err.Error()}
		}
		if excluded {
			return r.routeSilent(ctx, msg)
		}
	}

	if r.isOwner(key) {
		return r.routeOwner(ctx, msg)
	}

	return r.routeNormal(ctx, msg)
}

func (r *Router) isOwner(phoneKey string) bool {
	owner := r.norm.MatchKey(r.cfg.OwnerPhone)
	return owner != "" && owner == phoneKey
}

// isHistorical treats the gateway's backfill flag and anything stamped
// before the number's connection cutover as history, not live traffic.
func (r *Router) isHistorical(ctx context.Context, msg InboundMessage) bool {
	if msg.Historical {
		return true
	}
	if r.cutovers == nil || msg.Timestamp.IsZero() {
		return false
	}
	cutover, err := r.cutovers.CutoverFor(ctx, msg.Phone)
	if err != nil {
		r.logger.Warn("cutover lookup failed", "phone", msg.Phone, "error", err)
		return false
	}
	return cutover != nil && msg.Timestamp.Before(*cutover)
}

// routeHistorical archives the message without unread counts, topics,
// or replies. Backfilled history must never trigger the bot.
func (r *Router) routeHistorical(ctx context.Context, msg InboundMessage) Outcome {
	customer, conv, err := r.resolver.Resolve(ctx, msg.Phone, "", "whatsapp/backfill")
	if err != nil {
		return Outcome{Success: false, Mode: ModeHistorical, Error: err.Error()}
	}
	if _, err := r.repo.InsertMessage(ctx, &crm.Message{
		ConversationID: conv.ID,
		Sender:         crm.SenderCustomer,
		Body:           msg.Body,
		Historical:     true,
		CreatedAt:      msg.Timestamp,
	}); err != nil {
		return Outcome{Success: false, Mode: ModeHistorical, Error: err.Error()}
	}
	return Outcome{Success: true, Mode: ModeHistorical, CustomerID: customer.ID, ConversationID: conv.ID}
}

// routeSilent records the message for audit and stays quiet.
func (r *Router) routeSilent(ctx context.Context, msg InboundMessage) Outcome {
	if r.silentLog != nil {
		if err := r.silentLog.Record(ctx, msg.Phone, msg.Body, "excluded number"); err != nil {
			r.logger.Error("silent log failed", "phone", msg.Phone, "error", err)
		}
	}
	r.logger.Info("message from excluded number suppressed", "phone", msg.Phone)
	return Outcome{Success: true, Mode: ModeSilent}
}

// routeOwner handles the store owner texting the bot's number: either
// an escalation answer (coded or bare) or a lead injection command.
func (r *Router) routeOwner(ctx context.Context, msg InboundMessage) Outcome {
	code, remainder := commands.ParseEscalationCode(msg.Body)
	if code != "" && r.escRepo != nil {
		esc, err := r.escRepo.FindPendingByCode(ctx, code)
		switch {
		case err == nil && esc != nil:
			return r.forwardOwnerReply(ctx, esc, remainder, false)
		case errors.Is(err, escalations.ErrEscalationNotFound):
			// A mistyped code must not fall through to the newest
			// pending thread: that forwards the answer to the wrong
			// customer.
			r.logger.Warn("owner quoted unknown escalation code", "code", code)
			r.notifyOwnerDirect(ctx, fmt.Sprintf("%s is not a pending escalation. Check the code and resend.", code))
			return Outcome{Success: false, Mode: ModeOwnerReply, Error: fmt.Sprintf("unknown escalation code %s", code)}
		case err != nil:
			return Outcome{Success: false, Mode: ModeOwnerReply, Error: err.Error()}
		}
	}

	if lead, ok := commands.ParseLeadCommand(msg.Body); ok {
		return r.routeLeadInjection(ctx, lead)
	}

	if r.escRepo != nil {
		esc, err := r.escRepo.MostRecentPending(ctx)
		if err != nil {
			return Outcome{Success: false, Mode: ModeOwnerReply, Error: err.Error()}
		}
		if esc != nil {
			// No code given: assume the newest escalation and say so.
			return r.forwardOwnerReply(ctx, esc, msg.Body, true)
		}
	}

	r.notifyOwnerDirect(ctx, "Nothing is pending right now. Use \"lead inject <product> <name> <phone>\" to start a conversation.")
	return Outcome{Success: true, Mode: ModeOwnerNoPending}
}

// forwardOwnerReply relays the owner's text to the waiting customer and
// closes out the escalation.
func (r *Router) forwardOwnerReply(ctx context.Context, esc *escalations.Escalation, reply string, ambiguous bool) Outcome {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		r.notifyOwnerDirect(ctx, fmt.Sprintf("%s: got your message but it had no answer text. Reply with \"%s: your answer\".", esc.Code, esc.Code))
		return Outcome{Success: false, Mode: ModeOwnerReply, Error: "empty owner reply"}
	}

	if err := r.messenger.Send(ctx, esc.CustomerPhone, reply); err != nil {
		r.metrics.ObserveOutbound("owner_reply", err)
		return Outcome{Success: false, Mode: ModeOwnerReply, Error: err.Error()}
	}
	r.metrics.ObserveOutbound("owner_reply", nil)

	if _, err := r.repo.InsertMessage(ctx, &crm.Message{
		ConversationID: esc.ConversationID,
		Sender:         crm.SenderAgent,
		Body:           reply,
		CreatedAt:      r.clock(),
	}); err != nil {
		r.logger.Error("failed to persist owner reply", "code", esc.Code, "error", err)
	}
	if err := r.repo.UpdateConversationPreview(ctx, esc.ConversationID, reply, r.clock(), false); err != nil {
		r.logger.Error("failed to update preview", "code", esc.Code, "error", err)
	}

	if r.tracker != nil {
		if err := r.tracker.Resolve(ctx, esc, reply); err != nil {
			r.logger.Error("failed to resolve escalation", "code", esc.Code, "error", err)
		}
	}

	confirm := fmt.Sprintf("Sent to %s. %s resolved.", esc.CustomerPhone, esc.Code)
	if ambiguous {
		confirm = fmt.Sprintf("Sent to %s for %s (newest pending). If you meant another thread, reply with its code.", esc.CustomerPhone, esc.Code)
	}
	r.notifyOwnerDirect(ctx, confirm)

	return Outcome{
		Success:        true,
		Mode:           ModeOwnerReply,
		ConversationID: esc.ConversationID,
		Reply:          reply,
		Ambiguous:      ambiguous,
	}
}

// routeLeadInjection creates the customer, conversation and topic for an
// owner-sourced lead and, policy permitting, sends the opening message.
func (r *Router) routeLeadInjection(ctx context.Context, lead *commands.LeadCommand) Outcome {
	customer, conv, err := r.resolver.Resolve(ctx, lead.Phone, lead.CustomerName, "lead/owner-injected")
	if err != nil {
		return Outcome{Success: false, Mode: ModeLeadInjection, Error: err.Error()}
	}
	topic, _, err := r.resolver.EnsureTopic(ctx, customer, conv, lead.ProductInterest)
	if err != nil {
		return Outcome{Success: false, Mode: ModeLeadInjection, Error: err.Error()}
	}

	out := Outcome{
		Success:        true,
		Mode:           ModeLeadInjection,
		CustomerID:     customer.ID,
		ConversationID: conv.ID,
		TopicID:        topic.ID,
	}

	opening := r.leadOpeningMessage(ctx, lead)
	if r.engine != nil {
		decision, err := r.engine.CanSend(ctx, lead.Phone, topic.ID)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		if !decision.Allowed {
			r.logger.Info("lead opening message blocked by policy", "phone", lead.Phone, "reason", decision.Reason)
			out.Error = decision.Reason
			r.notifyOwnerDirect(ctx, fmt.Sprintf("Lead %s saved, but the opening message was held: %s.", lead.CustomerName, decision.Reason))
			return out
		}
	}

	if err := r.messenger.Send(ctx, customer.Phone, opening); err != nil {
		r.metrics.ObserveOutbound("lead_opening", err)
		out.Error = err.Error()
		return out
	}
	r.metrics.ObserveOutbound("lead_opening", nil)
	out.Reply = opening

	if _, err := r.repo.InsertMessage(ctx, &crm.Message{
		ConversationID: conv.ID,
		Sender:         crm.SenderAI,
		Body:           opening,
		CreatedAt:      r.clock(),
	}); err != nil {
		r.logger.Error("failed to persist lead opening", "phone", lead.Phone, "error", err)
	}
	if err := r.repo.UpdateConversationPreview(ctx, conv.ID, opening, r.clock(), false); err != nil {
		r.logger.Error("failed to update preview", "phone", lead.Phone, "error", err)
	}
	if r.engine != nil {
		if err := r.engine.RecordSend(ctx, lead.Phone, topic.ID, "lead_opening"); err != nil {
			r.logger.Error("failed to record lead opening send", "phone", lead.Phone, "error", err)
		}
	}
	r.notifyOwnerDirect(ctx, fmt.Sprintf("Lead %s (%s) created for %s. Opening message sent.", lead.CustomerName, customer.PhoneFormatted, lead.ProductInterest))
	return out
}

func (r *Router) leadOpeningMessage(ctx context.Context, lead *commands.LeadCommand) string {
	name := lead.CustomerName
	if name == "" || name == "Unknown" {
		name = "there"
	}
	if r.catalog != nil {
		if p, err := r.catalog.FindByName(ctx, lead.ProductInterest); err == nil {
			if p.InStock {
				return fmt.Sprintf("Hi %s! Thanks for your interest in the %s. It is in stock at ₹%.0f. Would you like to visit the store, or shall I hold one for you?", name, p.Name, p.Price)
			}
			return fmt.Sprintf("Hi %s! Thanks for your interest in the %s. It is currently out of stock, but I can let you know the moment it arrives. Shall I?", name, p.Name)
		}
	}
	return fmt.Sprintf("Hi %s! Thanks for your interest in %s. How can I help you today?", name, lead.ProductInterest)
}

// routeNormal persists the customer message, ensures the topic, asks the
// model for a reply and delivers it. Conversational replies to live
// inbound messages deliberately skip the anti-spam engine.
func (r *Router) routeNormal(ctx context.Context, msg InboundMessage) Outcome {
	now := r.clock()

	customer, conv, err := r.resolver.Resolve(ctx, msg.Phone, "")
	if err != nil {
		return Outcome{Success: false, Mode: ModeNormal, Error: err.Error()}
	}
	out := Outcome{Mode: ModeNormal, CustomerID: customer.ID, ConversationID: conv.ID}

	if _, err := r.repo.InsertMessage(ctx, &crm.Message{
		ConversationID: conv.ID,
		Sender:         crm.SenderCustomer,
		Body:           msg.Body,
		CreatedAt:      now,
	}); err != nil {
		out.Error = err.Error()
		return out
	}
	if err := r.repo.UpdateConversationPreview(ctx, conv.ID, msg.Body, now, true); err != nil {
		r.logger.Error("failed to update preview", "phone", msg.Phone, "error", err)
	}
	if err := r.repo.TouchCustomer(ctx, customer.ID, now); err != nil {
		r.logger.Error("failed to touch customer", "customer_id", customer.ID, "error", err)
	}

	topic, _, err := r.resolver.EnsureTopic(ctx, customer, conv, msg.Body)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.TopicID = topic.ID
	if err := r.repo.UpdateTopicLastMessage(ctx, topic.ID, msg.Body, now); err != nil {
		r.logger.Error("failed to update topic", "topic_id", topic.ID, "error", err)
	}

	if r.cfg.AutoReplyDisabled {
		out.Success = true
		return out
	}

	history, err := r.repo.RecentMessages(ctx, conv.ID, r.cfg.HistoryWindow)
	if err != nil {
		r.logger.Warn("history load failed, replying without context", "conversation_id", conv.ID, "error", err)
		history = nil
	}
	// The just-persisted inbound message goes in as the final user turn.
	if n := len(history); n > 0 && history[n-1].Sender == crm.SenderCustomer && history[n-1].Body == msg.Body {
		history = history[:n-1]
	}

	result := r.generator.Generate(ctx, ai.GenerateInput{
		Customer:     customer,
		Conversation: conv,
		Topic:        topic,
		History:      history,
		Message:      msg.Body,
	})
	out.Reply = result.Reply
	out.Escalated = result.Escalated

	if err := r.messenger.Send(ctx, customer.Phone, result.Reply); err != nil {
		r.metrics.ObserveOutbound("ai_reply", err)
		out.Error = fmt.Sprintf("send failed: %v", err)
		return out
	}
	r.metrics.ObserveOutbound("ai_reply", nil)

	// The outbound row is written only after a confirmed send, so the
	// transcript never claims a reply the customer did not get.
	if _, err := r.repo.InsertMessage(ctx, &crm.Message{
		ConversationID: conv.ID,
		Sender:         crm.SenderAI,
		Body:           result.Reply,
		CreatedAt:      r.clock(),
	}); err != nil {
		r.logger.Error("failed to persist ai reply", "conversation_id", conv.ID, "error", err)
	}
	if err := r.repo.UpdateConversationPreview(ctx, conv.ID, result.Reply, r.clock(), false); err != nil {
		r.logger.Error("failed to update preview", "conversation_id", conv.ID, "error", err)
	}

	out.Success = true
	return out
}

// notifyOwnerDirect sends a short status note back to the owner's chat.
func (r *Router) notifyOwnerDirect(ctx context.Context, body string) {
	if strings.TrimSpace(r.cfg.OwnerPhone) == "" {
		return
	}
	if err := r.messenger.Send(ctx, r.cfg.OwnerPhone, body); err != nil {
		r.logger.Error("owner status note failed", "error", err)
	}
}
