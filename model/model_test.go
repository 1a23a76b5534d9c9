package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stancld/rossum-agents-sub001/core"
)

func userContent(text string) []core.Content {
	return []core.Content{{Role: core.RoleUser, Parts: []core.Part{core.TextPart{Text: text}}}}
}

func TestSend_Echo(t *testing.T) {
	m := NewMockModel("mock", "test")

	resp, err := Send(context.Background(), m, Request{Contents: userContent("hello")})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello", resp.Content.Text())
	assert.False(t, resp.Partial)
	assert.Equal(t, 1, m.CallCount())
}

func TestSend_CannedResponse(t *testing.T) {
	m := NewMockModel("mock", "test")
	m.AddResponse("ping", "pong")

	resp, err := Send(context.Background(), m, Request{Contents: userContent("ping")})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content.Text())
}

func TestSend_StreamingPartials(t *testing.T) {
	m := NewMockModel("mock", "test")
	m.Enqueue(Response{Content: core.Content{Parts: []core.Part{
		core.ThinkingBlock{Thinking: "let me think", Signature: "s"},
		core.TextPart{Text: "the answer is 42"},
	}}, FinishReason: FinishStop})

	var thinking, text strings.Builder
	resp, err := Send(context.Background(), m, Request{Contents: userContent("q"), Stream: true}, func(r Response) {
		for _, p := range r.Content.Parts {
			switch v := p.(type) {
			case core.ThinkingBlock:
				thinking.WriteString(v.Thinking)
			case core.TextPart:
				text.WriteString(v.Text)
			}
		}
	})
	require.NoError(t, err)

	assert.Equal(t, "let me think", thinking.String())
	assert.Equal(t, "the answer is 42", text.String())
	assert.Equal(t, "the answer is 42", resp.Content.Text())
	assert.Equal(t, core.RoleAssistant, resp.Content.Role)
	require.Len(t, resp.Content.ThinkingBlocks(), 1)
	assert.Equal(t, "s", resp.Content.ThinkingBlocks()[0].Signature)
}

func TestSend_Error(t *testing.T) {
	m := NewMockModel("mock", "test")
	m.EnqueueError(errors.New("overloaded"))

	_, err := Send(context.Background(), m, Request{Contents: userContent("q")})
	assert.EqualError(t, err, "overloaded")
}

func TestSend_QueueThenHandler(t *testing.T) {
	m := NewMockModel("mock", "test")
	m.Enqueue(ToolCallResponse("", core.ToolCall{ID: "1", Name: "list_queues"}))
	m.SetHandler(func(_ context.Context, req Request) (Response, error) {
		return TextResponse("done"), nil
	})

	first, err := Send(context.Background(), m, Request{Contents: userContent("q")})
	require.NoError(t, err)
	assert.Equal(t, FinishToolCalls, first.FinishReason)
	require.Len(t, first.Content.ToolCalls(), 1)

	second, err := Send(context.Background(), m, Request{Contents: userContent("q")})
	require.NoError(t, err)
	assert.Equal(t, "done", second.Content.Text())
	assert.Len(t, m.Calls(), 2)
}

func TestSend_CancelledContext(t *testing.T) {
	m := NewMockModel("mock", "test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Send(ctx, m, Request{Contents: userContent("q")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUsage_Add(t *testing.T) {
	u := Usage{InputTokens: 1, OutputTokens: 2}
	u.Add(Usage{InputTokens: 10, OutputTokens: 20, CacheReadInputTokens: 5})

	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 22, CacheReadInputTokens: 5}, u)
}

func TestChunks(t *testing.T) {
	assert.Equal(t, []string{"a ", "b ", "c"}, chunks("a b c"))
	assert.Nil(t, chunks(""))
}
