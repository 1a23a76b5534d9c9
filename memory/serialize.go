package memory

import (
	"encoding/json"
	"fmt"

	"github.com/stancld/rossum-agents-sub001/core"
)

type wireEntry struct {
	Type string `json:"type"`

	Task   string           `json:"task,omitempty"`
	Images []core.ImagePart `json:"images,omitempty"`

	StepNumber     int                  `json:"step_number,omitempty"`
	Text           string               `json:"text,omitempty"`
	ToolCalls      []core.ToolCall      `json:"tool_calls,omitempty"`
	ToolResults    []core.ToolResult    `json:"tool_results,omitempty"`
	ThinkingBlocks []core.ThinkingBlock `json:"thinking_blocks,omitempty"`
	InputTokens    int                  `json:"input_tokens,omitempty"`
	OutputTokens   int                  `json:"output_tokens,omitempty"`
}

type wireMemory struct {
	Steps []wireEntry `json:"steps"`
}

func (m *AgentMemory) toWire() wireMemory {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w := wireMemory{Steps: make([]wireEntry, 0, len(m.entries))}
	for _, e := range m.entries {
		switch v := e.(type) {
		case TaskStep:
			w.Steps = append(w.Steps, wireEntry{Type: entryTask, Task: v.Task, Images: v.Images})
		case MemoryStep:
			w.Steps = append(w.Steps, wireEntry{
				Type:           entryMemory,
				StepNumber:     v.StepNumber,
				Text:           v.Text,
				ToolCalls:      v.ToolCalls,
				ToolResults:    v.ToolResults,
				ThinkingBlocks: v.ThinkingBlocks,
				InputTokens:    v.InputTokens,
				OutputTokens:   v.OutputTokens,
			})
		}
	}

	return w
}

func (m *AgentMemory) fromWire(w wireMemory) error {
	entries := make([]Entry, 0, len(w.Steps))
	for i, s := range w.Steps {
		switch s.Type {
		case entryTask:
			entries = append(entries, TaskStep{Task: s.Task, Images: s.Images})
		case entryMemory:
			entries = append(entries, MemoryStep{
				StepNumber:     s.StepNumber,
				Text:           s.Text,
				ToolCalls:      s.ToolCalls,
				ToolResults:    s.ToolResults,
				ThinkingBlocks: s.ThinkingBlocks,
				InputTokens:    s.InputTokens,
				OutputTokens:   s.OutputTokens,
			})
		default:
			return fmt.Errorf("memory: step %d has unknown type %q", i, s.Type)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries

	return nil
}

// MarshalJSON implements json.Marshaler.
func (m *AgentMemory) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.toWire())
}

// UnmarshalJSON implements json.Unmarshaler. The collapsible set is kept
// (or defaulted when m is zero valued).
func (m *AgentMemory) UnmarshalJSON(data []byte) error {
	var w wireMemory
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("memory: decode: %w", err)
	}

	if m.collapsible == nil {
		WithCollapsibleTools(DefaultCollapsibleTools...)(m)
	}

	return m.fromWire(w)
}

// ToDict returns the memory as a generic JSON object suitable for a chat store.
func (m *AgentMemory) ToDict() (map[string]any, error) {
	b, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}

	var d map[string]any
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}

	return d, nil
}

// FromDict rebuilds a memory from the output of ToDict.
func FromDict(d map[string]any, opts ...Option) (*AgentMemory, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("memory: encode dict: %w", err)
	}

	m := New(opts...)
	if err := m.UnmarshalJSON(b); err != nil {
		return nil, err
	}

	return m, nil
}
