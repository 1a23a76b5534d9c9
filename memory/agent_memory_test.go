package memory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stancld/rossum-agents-sub001/core"
)

func toolStep(n int, id, name, content string) MemoryStep {
	return MemoryStep{
		StepNumber:  n,
		ToolCalls:   []core.ToolCall{{ID: id, Name: name, Arguments: map[string]any{"schema_id": "7"}}},
		ToolResults: []core.ToolResult{{ToolCallID: id, Name: name, Content: content}},
	}
}

func resultContents(msgs []core.Content) map[string]string {
	out := map[string]string{}
	for _, m := range msgs {
		for _, r := range m.ToolResults() {
			out[r.ToolCallID] = r.Content
		}
	}
	return out
}

func TestWriteToMessages_Layout(t *testing.T) {
	m := New()
	m.AddTask("list my queues")
	m.AddStep(MemoryStep{
		StepNumber:     1,
		Text:           "Let me look.",
		ThinkingBlocks: []core.ThinkingBlock{{Thinking: "plan", Signature: "sig"}},
		ToolCalls:      []core.ToolCall{{ID: "c1", Name: "list_queues", Arguments: map[string]any{}}},
		ToolResults:    []core.ToolResult{{ToolCallID: "c1", Name: "list_queues", Content: "[]"}},
	})
	m.AddStep(MemoryStep{StepNumber: 2, Text: "You have no queues."})

	msgs := m.WriteToMessages()
	require.Len(t, msgs, 4)

	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, "list my queues", msgs[0].Text())

	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Parts, 3)
	assert.IsType(t, core.ThinkingBlock{}, msgs[1].Parts[0])
	assert.IsType(t, core.TextPart{}, msgs[1].Parts[1])
	assert.IsType(t, core.ToolCall{}, msgs[1].Parts[2])

	assert.Equal(t, core.RoleUser, msgs[2].Role)
	require.Len(t, msgs[2].ToolResults(), 1)

	assert.Equal(t, core.RoleAssistant, msgs[3].Role)
	assert.Equal(t, "You have no queues.", msgs[3].Text())
}

func TestWriteToMessages_CollapsesAllButLast(t *testing.T) {
	m := New(WithCollapsibleTools("get_schema"))
	m.AddTask("fix schema")
	m.AddStep(toolStep(1, "a", "get_schema", "schema v1"))
	m.AddStep(toolStep(2, "b", "list_hooks", "hooks v1"))
	m.AddStep(toolStep(3, "c", "get_schema", "schema v2"))
	m.AddStep(toolStep(4, "d", "list_hooks", "hooks v2"))
	m.AddStep(toolStep(5, "e", "get_schema", "schema v3"))

	got := resultContents(m.WriteToMessages())

	assert.Equal(t, CollapsedPlaceholder, got["a"])
	assert.Equal(t, CollapsedPlaceholder, got["c"])
	assert.Equal(t, "schema v3", got["e"])
	// Non-collapsible tools are never altered.
	assert.Equal(t, "hooks v1", got["b"])
	assert.Equal(t, "hooks v2", got["d"])
}

func TestWriteToMessages_SeveralCollapsibleTools(t *testing.T) {
	m := New(WithCollapsibleTools("get_schema", "get_hook"))
	m.AddTask("t")
	m.AddStep(toolStep(1, "a", "get_schema", "s1"))
	m.AddStep(toolStep(2, "b", "get_hook", "h1"))
	m.AddStep(toolStep(3, "c", "get_hook", "h2"))

	got := resultContents(m.WriteToMessages())
	assert.Equal(t, "s1", got["a"])
	assert.Equal(t, CollapsedPlaceholder, got["b"])
	assert.Equal(t, "h2", got["c"])
}

func TestWriteToMessages_ResolvesNameFromCall(t *testing.T) {
	m := New(WithCollapsibleTools("get_schema"))
	m.AddTask("t")
	for i, id := range []string{"a", "b"} {
		m.AddStep(MemoryStep{
			StepNumber:  i + 1,
			ToolCalls:   []core.ToolCall{{ID: id, Name: "get_schema"}},
			ToolResults: []core.ToolResult{{ToolCallID: id, Content: "schema " + id}},
		})
	}

	got := resultContents(m.WriteToMessages())
	assert.Equal(t, CollapsedPlaceholder, got["a"])
	assert.Equal(t, "schema b", got["b"])
}

func TestWriteToMessages_DoesNotMutateSteps(t *testing.T) {
	m := New(WithCollapsibleTools("get_schema"))
	m.AddTask("t")
	m.AddStep(toolStep(1, "a", "get_schema", "full schema one"))
	m.AddStep(toolStep(2, "b", "get_schema", "full schema two"))

	first := m.WriteToMessages()
	second := m.WriteToMessages()
	assert.Equal(t, first, second)

	steps := m.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "full schema one", steps[0].ToolResults[0].Content)
	assert.Equal(t, "full schema two", steps[1].ToolResults[0].Content)
}

func TestWriteToMessages_SingleResultUntouched(t *testing.T) {
	m := New(WithCollapsibleTools("get_schema"))
	m.AddTask("t")
	m.AddStep(toolStep(1, "a", "get_schema", "only"))

	assert.Equal(t, "only", resultContents(m.WriteToMessages())["a"])
}

func TestWriteToMessages_ImagesInTask(t *testing.T) {
	m := New()
	m.AddTask("what is in this invoice?", core.ImagePart{MediaType: "image/png", Data: "aGVsbG8="})

	msgs := m.WriteToMessages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 2)
	assert.IsType(t, core.ImagePart{}, msgs[0].Parts[0])
}

func sampleMemory() *AgentMemory {
	m := New()
	m.AddTask("first", core.ImagePart{MediaType: "image/jpeg", Data: "Zm9v"})
	m.AddStep(MemoryStep{
		StepNumber: 1,
		Text:       "thinking out loud",
		ToolCalls:  []core.ToolCall{{ID: "c1", Name: "get_schema", Arguments: map[string]any{"schema_id": "12", "deep": true}}},
		ToolResults: []core.ToolResult{
			{ToolCallID: "c1", Name: "get_schema", Content: "{}", IsError: true},
		},
		ThinkingBlocks: []core.ThinkingBlock{
			{Thinking: "reason", Signature: "sig-1"},
			{Redacted: true, Data: "opaque"},
		},
		InputTokens:  120,
		OutputTokens: 45,
	})
	m.AddStep(MemoryStep{StepNumber: 2, Text: "done", InputTokens: 10, OutputTokens: 2})
	m.AddTask("second")
	return m
}

func TestToDictFromDict_RoundTrip(t *testing.T) {
	m := sampleMemory()

	d, err := m.ToDict()
	require.NoError(t, err)

	restored, err := FromDict(d)
	require.NoError(t, err)

	assert.Equal(t, m.Entries(), restored.Entries())
	assert.Equal(t, m.WriteToMessages(), restored.WriteToMessages())
}

func TestJSON_RoundTrip(t *testing.T) {
	m := sampleMemory()

	b, err := json.Marshal(m)
	require.NoError(t, err)

	restored := New()
	require.NoError(t, json.Unmarshal(b, restored))
	assert.Equal(t, m.Entries(), restored.Entries())
}

func TestFromDict_UnknownType(t *testing.T) {
	_, err := FromDict(map[string]any{"steps": []any{map[string]any{"type": "bogus"}}})
	assert.Error(t, err)
}

func TestClone_Independent(t *testing.T) {
	m := sampleMemory()
	c := m.Clone()
	c.AddTask("only in clone")

	assert.Equal(t, 4, m.Len())
	assert.Equal(t, 5, c.Len())
}
