package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/crm"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/knowledge"
	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

// FallbackReply is sent to the customer when the model could not produce
// a usable answer and the thread was handed to a human.
const FallbackReply = "Let me check on that and get back to you shortly."

// maxAttempts bounds LLM calls per inbound message: one call plus one retry.
const maxAttempts = 2

var aiTracer = otel.Tracer("charu.internal.ai")

var aiLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "charu",
		Subsystem: "ai",
		Name:      "completion_latency_seconds",
		Help:      "Latency of LLM completions",
		Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30},
	},
	[]string{"model", "status"},
)

func init() {
	prometheus.MustRegister(aiLatency)
}

// Escalator hands a conversation to a human when the model gives up. The
// customer's verbatim message travels with the handoff so the owner sees
// what they are answering.
type Escalator interface {
	Escalate(ctx context.Context, conv *crm.Conversation, topic *crm.Topic, customerMessage, reason string) error
}

// Generator produces conversational replies with a bounded retry and a
// guaranteed outcome: either a model reply or an escalation plus fallback.
type Generator struct {
	client       LLMClient
	model        string
	knowledge    knowledge.Repository
	escalator    Escalator
	instructions string
	logger       *logging.Logger
}

// NewGenerator wires the reply pipeline. knowledge and escalator may be nil.
func NewGenerator(client LLMClient, model string, kb knowledge.Repository, escalator Escalator, instructions string, logger *logging.Logger) *Generator {
	if client == nil {
		panic("ai: llm client cannot be nil")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{
		client:       client,
		model:        model,
		knowledge:    kb,
		escalator:    escalator,
		instructions: instructions,
		logger:       logger,
	}
}

// GenerateInput carries everything the prompt needs for one customer message.
type GenerateInput struct {
	Customer     *crm.Customer
	Conversation *crm.Conversation
	Topic        *crm.Topic
	History      []crm.Message
	Message      string
}

// GenerateResult always carries a reply the caller can send. When the model
// failed, Escalated is set and Reply holds the fallback text.
type GenerateResult struct {
	Reply     string
	Escalated bool
	Reason    string
}

// Generate answers a customer message. It never returns an error: a model
// failure after the retry becomes an escalation and the fallback reply.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) GenerateResult {
	ctx, span := aiTracer.Start(ctx, "ai.generate")
	defer span.End()
	if in.Conversation != nil {
		span.SetAttributes(attribute.String("charu.conversation_id", in.Conversation.ID.String()))
	}

	var entries []knowledge.Entry
	if g.knowledge != nil {
		found, err := g.knowledge.Search(ctx, in.Message, 3)
		if err != nil {
			g.logger.Warn("knowledge search failed", "error", err)
		} else {
			entries = found
		}
	}

	system := BuildSystemPrompt(g.instructions, in.Customer, in.Topic, entries)
	messages := append(HistoryMessages(in.History), ChatMessage{Role: ChatRoleUser, Content: in.Message})

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		reply, err := g.complete(ctx, system, messages)
		if err == nil {
			return GenerateResult{Reply: reply}
		}
		lastErr = err
		span.RecordError(err)
		g.logger.Warn("ai completion attempt failed",
			"attempt", attempt,
			"model", g.model,
			"error", err,
		)
	}

	reason := fmt.Sprintf("AI reply failed after %d attempts: %v", maxAttempts, lastErr)
	if g.escalator != nil {
		if err := g.escalator.Escalate(ctx, in.Conversation, in.Topic, in.Message, reason); err != nil {
			g.logger.Error("failed to open escalation", "error", err)
		}
	}
	return GenerateResult{Reply: FallbackReply, Escalated: true, Reason: reason}
}

func (g *Generator) complete(ctx context.Context, system []string, messages []ChatMessage) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Complete(callCtx, LLMRequest{
		Model:       g.model,
		System:      system,
		Messages:    messages,
		MaxTokens:   450,
		Temperature: 0.2,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	aiLatency.WithLabelValues(g.model, status).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("ai: completion failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("ai: llm returned empty response")
	}
	return sanitizeReply(text), nil
}

var (
	italicsRE  = regexp.MustCompile(`\*([^\s*][^*]*[^\s*])\*`)
	bulletRE   = regexp.MustCompile(`(?m)^[\s]*[-•]\s+`)
	numberedRE = regexp.MustCompile(`(?m)^[\s]*\d+\.\s+`)
	spacesRE   = regexp.MustCompile(`\s{2,}`)
)

// sanitizeReply strips markdown that slipped past the prompt rules.
// WhatsApp renders it as literal punctuation.
func sanitizeReply(msg string) string {
	msg = strings.ReplaceAll(msg, "**", "")
	msg = italicsRE.ReplaceAllString(msg, "$1")
	msg = bulletRE.ReplaceAllString(msg, "")
	msg = numberedRE.ReplaceAllString(msg, "")
	msg = spacesRE.ReplaceAllString(msg, " ")
	return strings.TrimSpace(msg)
}
