package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/messaging"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/policy"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/scheduled"
	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

// AdminMessagingHandler exposes operator controls over outbound traffic:
// an immediate policy-gated send and the follow-up queue.
type AdminMessagingHandler struct {
	engine    *policy.Engine
	messenger messaging.Messenger
	queue     scheduled.Repository
	norm      *phone.Normalizer
	clock     func() time.Time
	logger    *logging.Logger
}

type AdminMessagingConfig struct {
	Engine     *policy.Engine
	Messenger  messaging.Messenger
	Queue      scheduled.Repository
	Normalizer *phone.Normalizer
	Logger     *logging.Logger
}

func NewAdminMessagingHandler(cfg AdminMessagingConfig) *AdminMessagingHandler {
	if cfg.Messenger == nil {
		panic("handlers: messenger required")
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = phone.NewNormalizer("")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AdminMessagingHandler{
		engine:    cfg.Engine,
		messenger: cfg.Messenger,
		queue:     cfg.Queue,
		norm:      cfg.Normalizer,
		clock:     func() time.Time { return time.Now().UTC() },
		logger:    cfg.Logger,
	}
}

type sendRequest struct {
	Phone          string     `json:"phone"`
	Body           string     `json:"body"`
	TopicID        *uuid.UUID `json:"topic_id,omitempty"`
	MessageType    string     `json:"message_type,omitempty"`
	OverridePolicy bool       `json:"override_policy,omitempty"`
}

// SendMessage delivers one operator-initiated message. The anti-spam
// policy applies unless the operator explicitly overrides it.
func (h *AdminMessagingHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Body) == "" {
		http.Error(w, "phone and body are required", http.StatusBadRequest)
		return
	}
	number := h.norm.Normalize(req.Phone)
	if number.Clean == "" {
		http.Error(w, "unresolvable phone", http.StatusBadRequest)
		return
	}

	topicID := uuid.Nil
	if req.TopicID != nil {
		topicID = *req.TopicID
	}
	if h.engine != nil && !req.OverridePolicy {
		decision, err := h.engine.CanSend(r.Context(), req.Phone, topicID)
		if err != nil {
			h.logger.Error("policy check failed", "phone", req.Phone, "error", err)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if !decision.Allowed {
			respondJSON(w, http.StatusConflict, decision)
			return
		}
	}

	if err := h.messenger.Send(r.Context(), number.Clean, req.Body); err != nil {
		h.logger.Error("admin send failed", "phone", req.Phone, "error", err)
		http.Error(w, "send failed", http.StatusBadGateway)
		return
	}

	messageType := req.MessageType
	if messageType == "" {
		messageType = "manual"
	}
	if h.engine != nil {
		if err := h.engine.RecordSend(r.Context(), req.Phone, topicID, messageType); err != nil {
			h.logger.Error("failed to record admin send", "phone", req.Phone, "error", err)
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sent": true, "to": number.Formatted})
}

type scheduleRequest struct {
	Phone       string     `json:"phone"`
	Body        string     `json:"body"`
	MessageType string     `json:"message_type,omitempty"`
	SendAt      time.Time  `json:"send_at"`
	TopicID     *uuid.UUID `json:"topic_id,omitempty"`
}

// ScheduleMessage queues a follow-up. Policy is evaluated at dispatch
// time, not at enqueue time, so a queued message can still be held or
// cancelled later.
func (h *AdminMessagingHandler) ScheduleMessage(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		http.Error(w, "scheduling not configured", http.StatusServiceUnavailable)
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Body) == "" {
		http.Error(w, "phone and body are required", http.StatusBadRequest)
		return
	}
	number := h.norm.Normalize(req.Phone)
	if number.Clean == "" {
		http.Error(w, "unresolvable phone", http.StatusBadRequest)
		return
	}
	if req.SendAt.IsZero() || req.SendAt.Before(h.clock()) {
		http.Error(w, "send_at must be in the future", http.StatusBadRequest)
		return
	}

	messageType := req.MessageType
	if messageType == "" {
		messageType = "follow_up"
	}
	msg := &scheduled.Message{
		Phone:       number.Clean,
		PhoneKey:    phone.MatchKey(number.Clean),
		TopicID:     req.TopicID,
		Body:        req.Body,
		MessageType: messageType,
		SendAt:      req.SendAt.UTC(),
	}
	if err := h.queue.Schedule(r.Context(), msg); err != nil {
		h.logger.Error("failed to schedule message", "phone", req.Phone, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}
