package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/stancld/rossum-agents-sub001/core"
)

// SystemBlock is one segment of the system prompt. Cache marks the end of the
// block as a reusable prefix for providers that support prompt caching.
type SystemBlock struct {
	Text  string `json:"text"`
	Cache bool   `json:"cache,omitempty"`
}

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Cache       bool           `json:"cache,omitempty"`
}

// Request captures the normalized model input.
type Request struct {
	System   []SystemBlock    `json:"system,omitempty"`
	Contents []core.Content   `json:"contents"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	// MaxTokens overrides the adapter default when > 0.
	MaxTokens int  `json:"max_tokens,omitempty"`
	Stream    bool `json:"stream,omitempty"`
	// ThinkingBudget enables extended thinking when > 0.
	ThinkingBudget int `json:"thinking_budget,omitempty"`
}

// Usage captures token accounting for a single model call.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Add accumulates o into u.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheCreationInputTokens += o.CacheCreationInputTokens
	u.CacheReadInputTokens += o.CacheReadInputTokens
}

// Finish reasons normalized across providers.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// Response is a (partial or final) chunk emitted by a model. Partial chunks
// carry deltas only: TextPart for answer text and ThinkingBlock for reasoning
// text. The final chunk carries the complete content and usage.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"`
	Usage        *Usage       `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation. Both
// channels are closed when generation ends; at most one error is sent.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoResponse is returned by Send when the model closed its stream without
// producing a final response.
var ErrNoResponse = errors.New("model: no final response")

// Send runs req to completion and returns the final response. Partial
// responses are passed to onPartial when it is non-nil.
func Send(ctx context.Context, m Model, req Request, onPartial ...func(Response)) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final Response
		got   bool
	)

	for resp := range respCh {
		if resp.Partial {
			for _, fn := range onPartial {
				fn(resp)
			}

			continue
		}

		final, got = resp, true
	}

	if err, ok := <-errCh; ok && err != nil {
		return Response{}, err
	}

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	if !got {
		return Response{}, fmt.Errorf("%s: %w", m.Info().Name, ErrNoResponse)
	}

	return final, nil
}
