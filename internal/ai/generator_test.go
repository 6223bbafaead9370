package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/crm"
)

type scriptedClient struct {
	responses []LLMResponse
	errs      []error
	calls     int
}

func (c *scriptedClient) Complete(_ context.Context, _ LLMRequest) (LLMResponse, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return LLMResponse{}, c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return LLMResponse{}, errors.New("no scripted response")
}

type recordingEscalator struct {
	messages []string
	reasons  []string
}

func (e *recordingEscalator) Escalate(_ context.Context, _ *crm.Conversation, _ *crm.Topic, customerMessage, reason string) error {
	e.messages = append(e.messages, customerMessage)
	e.reasons = append(e.reasons, reason)
	return nil
}

func TestGenerateFirstAttemptSucceeds(t *testing.T) {
	client := &scriptedClient{responses: []LLMResponse{{Text: "We have the iPhone 17 in stock!"}}}
	esc := &recordingEscalator{}
	gen := NewGenerator(client, "gpt-4o-mini", nil, esc, "", nil)

	res := gen.Generate(context.Background(), GenerateInput{Message: "do you have iphone 17?"})

	require.False(t, res.Escalated)
	require.Equal(t, "We have the iPhone 17 in stock!", res.Reply)
	require.Equal(t, 1, client.calls)
	require.Empty(t, esc.reasons)
}

func TestGenerateRetriesOnceThenSucceeds(t *testing.T) {
	client := &scriptedClient{
		errs:      []error{errors.New("rate limited"), nil},
		responses: []LLMResponse{{}, {Text: "Sure, bringing it in tomorrow works."}},
	}
	esc := &recordingEscalator{}
	gen := NewGenerator(client, "gpt-4o-mini", nil, esc, "", nil)

	res := gen.Generate(context.Background(), GenerateInput{Message: "can I come tomorrow?"})

	require.False(t, res.Escalated)
	require.Equal(t, "Sure, bringing it in tomorrow works.", res.Reply)
	require.Equal(t, 2, client.calls)
	require.Empty(t, esc.reasons)
}

func TestGenerateEscalatesAfterSecondFailure(t *testing.T) {
	client := &scriptedClient{
		errs: []error{errors.New("upstream timeout"), errors.New("upstream timeout")},
	}
	esc := &recordingEscalator{}
	gen := NewGenerator(client, "gpt-4o-mini", nil, esc, "", nil)

	res := gen.Generate(context.Background(), GenerateInput{Message: "hello?"})

	require.True(t, res.Escalated)
	require.Equal(t, FallbackReply, res.Reply)
	require.Equal(t, 2, client.calls)
	require.Len(t, esc.reasons, 1)
	require.Contains(t, esc.reasons[0], "upstream timeout")
	// The handoff carries the customer's verbatim question.
	require.Equal(t, []string{"hello?"}, esc.messages)
}

func TestGenerateTreatsEmptyReplyAsFailure(t *testing.T) {
	client := &scriptedClient{responses: []LLMResponse{{Text: "   "}, {Text: ""}}}
	esc := &recordingEscalator{}
	gen := NewGenerator(client, "gpt-4o-mini", nil, esc, "", nil)

	res := gen.Generate(context.Background(), GenerateInput{Message: "price?"})

	require.True(t, res.Escalated)
	require.Equal(t, FallbackReply, res.Reply)
	require.Equal(t, 2, client.calls)
	require.Contains(t, esc.reasons[0], "empty")
}

func TestGenerateSurvivesNilEscalator(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("down"), errors.New("down")}}
	gen := NewGenerator(client, "gpt-4o-mini", nil, nil, "", nil)

	res := gen.Generate(context.Background(), GenerateInput{Message: "hi"})

	require.True(t, res.Escalated)
	require.Equal(t, FallbackReply, res.Reply)
}

func TestSanitizeReplyStripsMarkdown(t *testing.T) {
	in := "**Great choice!** We have:\n- iPhone 17 at *best* price\n1. Visit the store"
	out := sanitizeReply(in)
	require.NotContains(t, out, "**")
	require.NotContains(t, out, "- ")
	require.NotContains(t, out, "*best*")
}
