package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRouterMetricsRegisterAndObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRouterMetrics(reg)

	m.ObserveInbound("normal", true)
	m.ObserveInbound("silent", true)
	m.ObserveInbound("normal", false)
	m.ObserveOutbound("ai_reply", nil)
	m.ObserveWebhookLatency("normal", 0.05)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["charu_inbound_messages_total"])
	require.True(t, names["charu_outbound_messages_total"])
	require.True(t, names["charu_inbound_webhook_latency_seconds"])
}

func TestRouterMetricsNilReceiverIsSafe(t *testing.T) {
	var m *RouterMetrics
	m.ObserveInbound("normal", true)
	m.ObserveOutbound("ai_reply", nil)
	m.ObserveWebhookLatency("normal", 0.1)
}
