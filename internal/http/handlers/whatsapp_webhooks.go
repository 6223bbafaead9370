package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/connection"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/inbound"
	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

const webhookProvider = "whatsapp"

type messageRouter interface {
	Route(ctx context.Context, msg inbound.InboundMessage) inbound.Outcome
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// WhatsAppWebhookHandler receives gateway callbacks: inbound messages
// and number-connected lifecycle events.
type WhatsAppWebhookHandler struct {
	router    messageRouter
	processed processedTracker
	cutovers  connection.Store
	logger    *logging.Logger
}

type WhatsAppWebhookConfig struct {
	Router    messageRouter
	Processed processedTracker
	Cutovers  connection.Store
	Logger    *logging.Logger
}

func NewWhatsAppWebhookHandler(cfg WhatsAppWebhookConfig) *WhatsAppWebhookHandler {
	if cfg.Router == nil {
		panic("handlers: message router required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WhatsAppWebhookHandler{
		router:    cfg.Router,
		processed: cfg.Processed,
		cutovers:  cfg.Cutovers,
		logger:    cfg.Logger,
	}
}

type incomingPayload struct {
	Phone      string `json:"phone"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
	HasMedia   bool   `json:"hasMedia"`
	Historical bool   `json:"isHistorical"`
}

// HandleIncoming processes one inbound message webhook. Duplicate
// deliveries (gateway retries) are acked without reprocessing.
func (h *WhatsAppWebhookHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	var payload incomingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Phone) == "" {
		http.Error(w, "missing sender phone", http.StatusBadRequest)
		return
	}

	if h.processed != nil && payload.MessageID != "" {
		seen, err := h.processed.AlreadyProcessed(r.Context(), webhookProvider, payload.MessageID)
		if err != nil {
			h.logger.Error("processed lookup failed", "error", err)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if seen {
			respondJSON(w, http.StatusOK, map[string]any{"duplicate": true})
			return
		}
	}

	msg := inbound.InboundMessage{
		Phone:      payload.Phone,
		Body:       payload.Message,
		MessageID:  payload.MessageID,
		HasMedia:   payload.HasMedia,
		Historical: payload.Historical,
	}
	if payload.Timestamp > 0 {
		msg.Timestamp = time.Unix(payload.Timestamp, 0).UTC()
	}

	outcome := h.router.Route(r.Context(), msg)
	if !outcome.Success {
		// Not marked processed: the gateway retry gets another attempt.
		h.logger.Error("inbound routing failed", "phone", payload.Phone, "mode", outcome.Mode, "error", outcome.Error)
		respondJSON(w, http.StatusInternalServerError, outcome)
		return
	}

	if h.processed != nil && payload.MessageID != "" {
		if _, err := h.processed.MarkProcessed(r.Context(), webhookProvider, payload.MessageID); err != nil {
			h.logger.Error("failed to mark message processed", "error", err, "message_id", payload.MessageID)
		}
	}
	respondJSON(w, http.StatusOK, outcome)
}

type connectedPayload struct {
	Phone       string `json:"phone"`
	ConnectedAt int64  `json:"connectionTimestamp"`
}

// HandleConnected records the moment a number came online. Messages
// stamped earlier than this are treated as backfilled history.
func (h *WhatsAppWebhookHandler) HandleConnected(w http.ResponseWriter, r *http.Request) {
	if h.cutovers == nil {
		http.Error(w, "connection tracking not configured", http.StatusServiceUnavailable)
		return
	}
	var payload connectedPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Phone) == "" {
		http.Error(w, "missing phone", http.StatusBadRequest)
		return
	}

	at := time.Now().UTC()
	if payload.ConnectedAt > 0 {
		at = time.Unix(payload.ConnectedAt, 0).UTC()
	}
	if err := h.cutovers.RecordCutover(r.Context(), payload.Phone, at); err != nil {
		h.logger.Error("failed to record connection cutover", "phone", payload.Phone, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("connection cutover recorded", "phone", payload.Phone, "at", at)
	respondJSON(w, http.StatusOK, map[string]any{"phone": payload.Phone, "connected_at": at})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
