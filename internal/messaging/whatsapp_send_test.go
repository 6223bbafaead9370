package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWhatsAppSenderSuccess(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(srv.URL, "token-123", nil)
	err := sender.Send(context.Background(), "919969528677", "hello")
	require.NoError(t, err)
	require.Equal(t, "Bearer token-123", auth)
	require.Equal(t, "919969528677", got["to"])
	require.Equal(t, "hello", got["text"].(map[string]any)["body"])
}

func TestWhatsAppSenderRetriesTransientFailure(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(srv.URL, "", nil)
	err := sender.Send(context.Background(), "919969528677", "hello again")
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestWhatsAppSenderDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(srv.URL, "bad", nil)
	err := sender.Send(context.Background(), "919969528677", "hi")
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestWhatsAppSenderValidatesInput(t *testing.T) {
	sender := NewWhatsAppSender("http://gateway.local", "t", nil)
	require.Error(t, sender.Send(context.Background(), "", "hi"))
	require.Error(t, sender.Send(context.Background(), "919969528677", "   "))
}

type stubMessenger struct {
	sent []string
	err  error
}

func (m *stubMessenger) Send(_ context.Context, to, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to+":"+body)
	return nil
}

func TestRateLimitedMessengerDelegates(t *testing.T) {
	inner := &stubMessenger{}
	limited := NewRateLimitedMessenger(inner, 100, 10)

	require.NoError(t, limited.Send(context.Background(), "919969528677", "one"))
	require.NoError(t, limited.Send(context.Background(), "919969528677", "two"))
	require.Len(t, inner.sent, 2)
}

func TestRateLimitedMessengerPropagatesErrors(t *testing.T) {
	inner := &stubMessenger{err: errors.New("gateway down")}
	limited := NewRateLimitedMessenger(inner, 100, 10)

	err := limited.Send(context.Background(), "919969528677", "one")
	require.ErrorContains(t, err, "gateway down")
}
