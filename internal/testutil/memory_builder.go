package testutil

import (
	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/memory"
)

// MemoryBuilder helps construct memories with fluent chaining for tests.
// Example:
//
//	mem := NewMemoryBuilder().Task("list queues").ToolStep("get_schema", "c1", "{}").Answer("done").Build()
//
// Step numbers are assigned in call order starting at 1.
type MemoryBuilder struct {
	opts    []memory.Option
	entries []memory.Entry
	next    int
}

// NewMemoryBuilder creates an empty builder.
func NewMemoryBuilder(opts ...memory.Option) *MemoryBuilder {
	return &MemoryBuilder{opts: opts, next: 1}
}

// Task appends a user prompt (chainable).
func (b *MemoryBuilder) Task(text string, images ...core.ImagePart) *MemoryBuilder {
	b.entries = append(b.entries, memory.TaskStep{Task: text, Images: images})
	return b
}

// ToolStep appends an iteration with a single tool call and its result (chainable).
func (b *MemoryBuilder) ToolStep(toolName, callID, result string) *MemoryBuilder {
	b.entries = append(b.entries, memory.MemoryStep{
		StepNumber:  b.next,
		ToolCalls:   []core.ToolCall{{ID: callID, Name: toolName, Arguments: map[string]any{}}},
		ToolResults: []core.ToolResult{{ToolCallID: callID, Name: toolName, Content: result}},
	})
	b.next++
	return b
}

// Answer appends a final text iteration without tool calls (chainable).
func (b *MemoryBuilder) Answer(text string) *MemoryBuilder {
	b.entries = append(b.entries, memory.MemoryStep{StepNumber: b.next, Text: text})
	b.next++
	return b
}

// Step appends an arbitrary iteration as is (chainable).
func (b *MemoryBuilder) Step(s memory.MemoryStep) *MemoryBuilder {
	b.entries = append(b.entries, s)
	b.next = s.StepNumber + 1
	return b
}

// Build materializes the memory.
func (b *MemoryBuilder) Build() *memory.AgentMemory {
	mem := memory.New(b.opts...)
	for _, e := range b.entries {
		switch v := e.(type) {
		case memory.TaskStep:
			mem.AddTask(v.Task, v.Images...)
		case memory.MemoryStep:
			mem.AddStep(v)
		}
	}

	return mem
}
