package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/http/handlers"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/inbound"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
)

type fixedRouter struct {
	outcome inbound.Outcome
}

func (f *fixedRouter) Route(_ context.Context, _ inbound.InboundMessage) inbound.Outcome {
	return f.outcome
}

type noopSender struct{}

func (noopSender) Send(_ context.Context, _, _ string) error { return nil }

func newTestServer(t *testing.T, secret string) http.Handler {
	t.Helper()
	webhooks := handlers.NewWhatsAppWebhookHandler(handlers.WhatsAppWebhookConfig{
		Router: &fixedRouter{outcome: inbound.Outcome{Success: true, Mode: inbound.ModeNormal, Reply: "hi"}},
	})
	admin := handlers.NewAdminMessagingHandler(handlers.AdminMessagingConfig{
		Messenger:  noopSender{},
		Normalizer: phone.NewNormalizer("91"),
	})
	return New(&Config{
		WhatsAppWebhooks: webhooks,
		AdminMessaging:   admin,
		AdminAuthSecret:  secret,
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestIncomingWebhookRoute(t *testing.T) {
	srv := newTestServer(t, "")

	payload, _ := json.Marshal(map[string]any{
		"messageId": "wamid.1",
		"phone":     "919969528677",
		"message":   "hello",
	})
	req := httptest.NewRequest(http.MethodPost, "/whatsapp/incoming", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"reply":"hi"`)
}

func TestAdminRoutesRequireJWT(t *testing.T) {
	const secret = "test-secret"
	srv := newTestServer(t, secret)

	body := func() *bytes.Reader {
		raw, _ := json.Marshal(map[string]any{"phone": "9969528677", "body": "pickup reminder"})
		return bytes.NewReader(raw)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/messages/send", body())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "owner",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/admin/messages/send", body())
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteReturns404(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
