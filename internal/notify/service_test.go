package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubMessenger struct {
	sent []string
	err  error
}

func (m *stubMessenger) Send(_ context.Context, to, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to+"|"+body)
	return nil
}

type stubEmail struct {
	msgs []EmailMessage
	err  error
}

func (e *stubEmail) Send(_ context.Context, msg EmailMessage) error {
	if e.err != nil {
		return e.err
	}
	e.msgs = append(e.msgs, msg)
	return nil
}

func TestNotifyOwnerSendsBothChannels(t *testing.T) {
	m := &stubMessenger{}
	e := &stubEmail{}
	svc := NewService(m, e, "919876543210", "owner@example.com", nil)

	err := svc.NotifyOwner(context.Background(), "Escalation ESC01", "ESC01: customer needs pricing")
	require.NoError(t, err)
	require.Len(t, m.sent, 1)
	require.Contains(t, m.sent[0], "ESC01")
	require.Len(t, e.msgs, 1)
	require.Equal(t, "owner@example.com", e.msgs[0].To)
}

func TestNotifyOwnerSucceedsWhenOneChannelFails(t *testing.T) {
	m := &stubMessenger{err: errors.New("gateway down")}
	e := &stubEmail{}
	svc := NewService(m, e, "919876543210", "owner@example.com", nil)

	err := svc.NotifyOwner(context.Background(), "subject", "body")
	require.NoError(t, err)
	require.Len(t, e.msgs, 1)
}

func TestNotifyOwnerFailsWhenAllChannelsFail(t *testing.T) {
	m := &stubMessenger{err: errors.New("gateway down")}
	e := &stubEmail{err: errors.New("smtp down")}
	svc := NewService(m, e, "919876543210", "owner@example.com", nil)

	err := svc.NotifyOwner(context.Background(), "subject", "body")
	require.Error(t, err)
}

func TestNotifyOwnerNoChannelsIsNotAnError(t *testing.T) {
	svc := NewService(nil, nil, "", "", nil)
	require.NoError(t, svc.NotifyOwner(context.Background(), "subject", "body"))
}
