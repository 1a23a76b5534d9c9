package memory

import (
	"sync"

	"github.com/stancld/rossum-agents-sub001/core"
)

// CollapsedPlaceholder replaces the content of superseded tool results in
// the materialized message view.
const CollapsedPlaceholder = "[Output superseded by a later call of the same tool; omitted to save context.]"

// DefaultCollapsibleTools lists tools whose results are fully replaced by
// their next call (full schema or hook dumps after each edit).
var DefaultCollapsibleTools = []string{"get_schema", "get_schema_tree_structure", "get_hook"}

// Option configures an AgentMemory.
type Option func(m *AgentMemory)

// WithCollapsibleTools replaces the collapsible tool set.
func WithCollapsibleTools(names ...string) Option {
	return func(m *AgentMemory) {
		m.collapsible = make(map[string]struct{}, len(names))
		for _, n := range names {
			m.collapsible[n] = struct{}{}
		}
	}
}

// AgentMemory is the ordered conversation history. It is safe for concurrent use.
type AgentMemory struct {
	mu          sync.RWMutex
	entries     []Entry
	collapsible map[string]struct{}
}

// New creates an empty memory using DefaultCollapsibleTools unless overridden.
func New(opts ...Option) *AgentMemory {
	m := &AgentMemory{}
	WithCollapsibleTools(DefaultCollapsibleTools...)(m)

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// AddTask appends the user prompt of a new turn.
func (m *AgentMemory) AddTask(task string, images ...core.ImagePart) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, TaskStep{Task: task, Images: images}.clone())
}

// AddStep appends a completed iteration. The step is copied.
func (m *AgentMemory) AddStep(step MemoryStep) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, step.clone())
}

// Entries returns a copy of the stored entries.
func (m *AgentMemory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		switch v := e.(type) {
		case TaskStep:
			out[i] = v.clone()
		case MemoryStep:
			out[i] = v.clone()
		}
	}

	return out
}

// Steps returns copies of the stored MemorySteps.
func (m *AgentMemory) Steps() []MemoryStep {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []MemoryStep
	for _, e := range m.entries {
		if s, ok := e.(MemoryStep); ok {
			out = append(out, s.clone())
		}
	}

	return out
}

// Len returns the number of stored entries.
func (m *AgentMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// CollapsibleTools returns the configured collapsible tool names.
func (m *AgentMemory) CollapsibleTools() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.collapsible))
	for n := range m.collapsible {
		out = append(out, n)
	}

	return out
}

// Clone returns an independent copy, used to stage a turn that may be discarded.
func (m *AgentMemory) Clone() *AgentMemory {
	entries := m.Entries()

	m.mu.RLock()
	defer m.mu.RUnlock()

	c := &AgentMemory{entries: entries, collapsible: make(map[string]struct{}, len(m.collapsible))}
	for n := range m.collapsible {
		c.collapsible[n] = struct{}{}
	}

	return c
}

// WriteToMessages rebuilds the message list from the stored entries and
// collapses superseded results of collapsible tools. The result is never
// cached and the stored entries are never modified.
func (m *AgentMemory) WriteToMessages() []core.Content {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var msgs []core.Content
	for _, e := range m.entries {
		switch v := e.(type) {
		case TaskStep:
			msgs = append(msgs, v.messages()...)
		case MemoryStep:
			msgs = append(msgs, v.messages()...)
		}
	}

	collapse(msgs, m.collapsible)

	return msgs
}

type partRef struct{ msg, part int }

// collapse rewrites, in place, every tool result of a collapsible tool
// except the last one for that tool name. msgs must hold freshly built part
// slices.
func collapse(msgs []core.Content, collapsible map[string]struct{}) {
	if len(collapsible) == 0 {
		return
	}

	callNames := map[string]string{}
	for _, msg := range msgs {
		for _, p := range msg.Parts {
			if tc, ok := p.(core.ToolCall); ok {
				callNames[tc.ID] = tc.Name
			}
		}
	}

	byTool := map[string][]partRef{}
	for i, msg := range msgs {
		for j, p := range msg.Parts {
			tr, ok := p.(core.ToolResult)
			if !ok {
				continue
			}

			name := tr.Name
			if name == "" {
				name = callNames[tr.ToolCallID]
			}

			if _, ok := collapsible[name]; ok {
				byTool[name] = append(byTool[name], partRef{msg: i, part: j})
			}
		}
	}

	for _, refs := range byTool {
		for _, ref := range refs[:len(refs)-1] {
			tr := msgs[ref.msg].Parts[ref.part].(core.ToolResult)
			tr.Content = CollapsedPlaceholder
			msgs[ref.msg].Parts[ref.part] = tr
		}
	}
}
