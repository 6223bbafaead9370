package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/connection"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/inbound"
)

type stubRouter struct {
	mu       sync.Mutex
	outcome  inbound.Outcome
	received []inbound.InboundMessage
}

func (s *stubRouter) Route(_ context.Context, msg inbound.InboundMessage) inbound.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, msg)
	return s.outcome
}

type stubProcessed struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newStubProcessed() *stubProcessed {
	return &stubProcessed{seen: make(map[string]bool)}
}

func (s *stubProcessed) AlreadyProcessed(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[provider+":"+eventID], nil
}

func (s *stubProcessed) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := provider + ":" + eventID
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleIncomingRoutesAndAcks(t *testing.T) {
	router := &stubRouter{outcome: inbound.Outcome{Success: true, Mode: inbound.ModeNormal, Reply: "Yes, in stock!"}}
	processed := newStubProcessed()
	h := NewWhatsAppWebhookHandler(WhatsAppWebhookConfig{Router: router, Processed: processed})

	rec := postJSON(t, h.HandleIncoming, map[string]any{
		"messageId": "wamid.123",
		"phone":     "919969528677",
		"message":   "Do you have the iPhone 17?",
		"timestamp": 1749556800,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var out inbound.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.True(t, out.Success)
	require.Equal(t, "Yes, in stock!", out.Reply)

	require.Len(t, router.received, 1)
	require.Equal(t, "919969528677", router.received[0].Phone)
	require.Equal(t, time.Unix(1749556800, 0).UTC(), router.received[0].Timestamp)

	seen, err := processed.AlreadyProcessed(context.Background(), "whatsapp", "wamid.123")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestHandleIncomingDuplicateIsNotReprocessed(t *testing.T) {
	router := &stubRouter{outcome: inbound.Outcome{Success: true, Mode: inbound.ModeNormal}}
	processed := newStubProcessed()
	_, err := processed.MarkProcessed(context.Background(), "whatsapp", "wamid.dup")
	require.NoError(t, err)
	h := NewWhatsAppWebhookHandler(WhatsAppWebhookConfig{Router: router, Processed: processed})

	rec := postJSON(t, h.HandleIncoming, map[string]any{
		"messageId": "wamid.dup",
		"phone":     "919969528677",
		"message":   "hello again",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "duplicate")
	require.Empty(t, router.received)
}

func TestHandleIncomingFailureLeavesEventUnmarked(t *testing.T) {
	router := &stubRouter{outcome: inbound.Outcome{Success: false, Mode: inbound.ModeNormal, Error: "db down"}}
	processed := newStubProcessed()
	h := NewWhatsAppWebhookHandler(WhatsAppWebhookConfig{Router: router, Processed: processed})

	rec := postJSON(t, h.HandleIncoming, map[string]any{
		"messageId": "wamid.456",
		"phone":     "919969528677",
		"message":   "hi",
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	seen, err := processed.AlreadyProcessed(context.Background(), "whatsapp", "wamid.456")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestHandleIncomingRejectsMissingPhone(t *testing.T) {
	h := NewWhatsAppWebhookHandler(WhatsAppWebhookConfig{Router: &stubRouter{}})

	rec := postJSON(t, h.HandleIncoming, map[string]any{"messageId": "x", "message": "hi"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleConnectedRecordsCutover(t *testing.T) {
	cutovers := connection.NewMemoryStore()
	h := NewWhatsAppWebhookHandler(WhatsAppWebhookConfig{Router: &stubRouter{}, Cutovers: cutovers})

	at := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	rec := postJSON(t, h.HandleConnected, map[string]any{
		"phone":               "919969528677",
		"connectionTimestamp": at.Unix(),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	got, err := cutovers.CutoverFor(context.Background(), "9969528677")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.Equal(at))
}
