package memory

import "github.com/stancld/rossum-agents-sub001/core"

// Entry is one element of the conversation history: a TaskStep or a MemoryStep.
type Entry interface {
	entryType() string
}

// TaskStep is the user prompt that opened a turn.
type TaskStep struct {
	Task   string           `json:"task"`
	Images []core.ImagePart `json:"images,omitempty"`
}

// MemoryStep records one completed model iteration. ToolResults correspond
// 1:1 with ToolCalls by call id. ThinkingBlocks are replayed verbatim.
type MemoryStep struct {
	StepNumber     int                  `json:"step_number"`
	Text           string               `json:"text,omitempty"`
	ToolCalls      []core.ToolCall      `json:"tool_calls,omitempty"`
	ToolResults    []core.ToolResult    `json:"tool_results,omitempty"`
	ThinkingBlocks []core.ThinkingBlock `json:"thinking_blocks,omitempty"`
	InputTokens    int                  `json:"input_tokens"`
	OutputTokens   int                  `json:"output_tokens"`
}

const (
	entryTask   = "task"
	entryMemory = "memory"
)

func (TaskStep) entryType() string   { return entryTask }
func (MemoryStep) entryType() string { return entryMemory }

func (s TaskStep) clone() TaskStep {
	s.Images = append([]core.ImagePart(nil), s.Images...)
	return s
}

func (s MemoryStep) clone() MemoryStep {
	if s.ToolCalls != nil {
		calls := make([]core.ToolCall, len(s.ToolCalls))
		for i, c := range s.ToolCalls {
			if c.Arguments != nil {
				args := make(map[string]any, len(c.Arguments))
				for k, v := range c.Arguments {
					args[k] = v
				}
				c.Arguments = args
			}
			calls[i] = c
		}
		s.ToolCalls = calls
	}
	s.ToolResults = append([]core.ToolResult(nil), s.ToolResults...)
	s.ThinkingBlocks = append([]core.ThinkingBlock(nil), s.ThinkingBlocks...)
	return s
}

// messages renders the step as model messages.
func (s TaskStep) messages() []core.Content {
	parts := make([]core.Part, 0, 1+len(s.Images))
	for _, img := range s.Images {
		parts = append(parts, img)
	}
	parts = append(parts, core.TextPart{Text: s.Task})

	return []core.Content{{Role: core.RoleUser, Parts: parts}}
}

// messages renders the assistant turn (thinking, text, tool calls) and the
// user message carrying the tool results.
func (s MemoryStep) messages() []core.Content {
	var out []core.Content

	assistant := make([]core.Part, 0, len(s.ThinkingBlocks)+1+len(s.ToolCalls))
	for _, tb := range s.ThinkingBlocks {
		assistant = append(assistant, tb)
	}
	if s.Text != "" {
		assistant = append(assistant, core.TextPart{Text: s.Text})
	}
	for _, c := range s.ToolCalls {
		assistant = append(assistant, c)
	}
	if len(assistant) > 0 {
		out = append(out, core.Content{Role: core.RoleAssistant, Parts: assistant})
	}

	if len(s.ToolResults) > 0 {
		results := make([]core.Part, 0, len(s.ToolResults))
		for _, r := range s.ToolResults {
			results = append(results, r)
		}
		out = append(out, core.Content{Role: core.RoleUser, Parts: results})
	}

	return out
}
