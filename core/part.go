package core

import "encoding/json"

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// Role names used in Content.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TextPart is a plain text content segment.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) isPart() {}

// ImagePart is an inline base64 image attached to a user prompt.
type ImagePart struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

func (ImagePart) isPart() {}

// ThinkingBlock is an opaque reasoning block returned by the model. It must be
// sent back unchanged (signature included) on the following request.
type ThinkingBlock struct {
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
	Redacted  bool   `json:"redacted,omitempty"`
	Data      string `json:"data,omitempty"`
}

func (ThinkingBlock) isPart() {}

// ToolCall describes a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (ToolCall) isPart() {}

// ArgumentsJSON returns the arguments as a JSON document ("{}" when empty).
func (c ToolCall) ArgumentsJSON() string {
	if len(c.Arguments) == 0 {
		return "{}"
	}

	b, err := json.Marshal(c.Arguments)
	if err != nil {
		return "{}"
	}

	return string(b)
}

// ToolResult is the outcome of one ToolCall, matched by ToolCallID.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

func (ToolResult) isPart() {}

// Content holds role + ordered parts. CacheBreakpoint asks the model adapter
// to mark the end of this message as a reusable prefix.
type Content struct {
	Role            string `json:"role"`
	Parts           []Part `json:"parts"`
	CacheBreakpoint bool   `json:"cache_breakpoint,omitempty"`
}

// Text concatenates all TextParts.
func (c Content) Text() string {
	var out string
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}

	return out
}

// ToolCalls returns the ToolCall parts in order.
func (c Content) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range c.Parts {
		if tc, ok := p.(ToolCall); ok {
			calls = append(calls, tc)
		}
	}

	return calls
}

// ToolResults returns the ToolResult parts in order.
func (c Content) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range c.Parts {
		if tr, ok := p.(ToolResult); ok {
			results = append(results, tr)
		}
	}

	return results
}

// ThinkingBlocks returns the ThinkingBlock parts in order.
func (c Content) ThinkingBlocks() []ThinkingBlock {
	var blocks []ThinkingBlock
	for _, p := range c.Parts {
		if tb, ok := p.(ThinkingBlock); ok {
			blocks = append(blocks, tb)
		}
	}

	return blocks
}
