package openai

import (
	"encoding/json"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/model"
)

func TestBuildMessages(t *testing.T) {
	req := model.Request{
		System: []model.SystemBlock{{Text: "a"}, {Text: "b"}},
		Contents: []core.Content{
			{Role: core.RoleUser, Parts: []core.Part{core.TextPart{Text: "hi"}}},
			{Role: core.RoleAssistant, Parts: []core.Part{
				core.TextPart{Text: "checking"},
				core.ToolCall{ID: "c1", Name: "list_queues", Arguments: map[string]any{"page": 1}},
			}},
			{Role: core.RoleUser, Parts: []core.Part{core.ToolResult{ToolCallID: "c1", Content: "[]"}}},
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 4)

	b, err := json.Marshal(msgs)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, "system", decoded[0]["role"])
	assert.Equal(t, "a\n\nb", decoded[0]["content"])
	assert.Equal(t, "user", decoded[1]["role"])
	assert.Equal(t, "assistant", decoded[2]["role"])
	calls := decoded[2]["tool_calls"].([]any)
	require.Len(t, calls, 1)
	fn := calls[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "list_queues", fn["name"])
	assert.JSONEq(t, `{"page":1}`, fn["arguments"].(string))
	assert.Equal(t, "tool", decoded[3]["role"])
	assert.Equal(t, "c1", decoded[3]["tool_call_id"])
}

func TestFinalResponse_OrdersToolCalls(t *testing.T) {
	agg := map[int64]*aggCall{
		1: {id: "b", name: "get_hook", args: `{"hook_id":2}`},
		0: {id: "a", name: "get_schema", args: ``},
	}

	resp := finalResponse("text", agg, "tool_calls", nil)

	calls := resp.Content.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ID)
	assert.Equal(t, map[string]any{}, calls[0].Arguments)
	assert.Equal(t, float64(2), calls[1].Arguments["hook_id"])
	assert.Equal(t, model.FinishToolCalls, resp.FinishReason)
	assert.Equal(t, "text", resp.Content.Text())
}

func TestNormalizeFinish(t *testing.T) {
	assert.Equal(t, model.FinishStop, normalizeFinish(""))
	assert.Equal(t, model.FinishStop, normalizeFinish("stop"))
	assert.Equal(t, model.FinishLength, normalizeFinish("length"))
	assert.Equal(t, "content_filter", normalizeFinish("content_filter"))
}

func TestInfo(t *testing.T) {
	client := openai.NewClient()
	m := NewModelFromClient(&client, func(o *Options) { o.Model = "gpt-x" })
	assert.Equal(t, model.Info{Name: "gpt-x", Provider: "openai", SupportsTools: true}, m.Info())
}
