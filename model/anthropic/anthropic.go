// Package anthropic provides a model wrapper for the Anthropic Messages API
// with streaming, extended thinking and prompt caching.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/model"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = anthropic.Model("claude-sonnet-4-20250514")

// Options configures the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

func defaultOptions() Options {
	return Options{
		Model:       DefaultModel,
		Temperature: 0.7,
		MaxTokens:   8192,
	}
}

// Generate implements model.Model. Streaming requests emit thinking and text
// deltas as partial responses before the accumulated final message.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)

		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		out <- toResponse(resp)
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	maxTokens := m.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     m.opts.Model,
		Messages:  buildMessages(req.Contents),
		MaxTokens: maxTokens,
	}

	if req.ThinkingBudget > 0 {
		// Temperature must stay at its default while thinking is enabled.
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ThinkingBudget))
	} else {
		params.Temperature = anthropic.Float(m.opts.Temperature)
	}

	if len(req.System) > 0 {
		params.System = buildSystem(req.System)
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	return params
}

func (m *Model) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			errCh <- fmt.Errorf("anthropic stream accumulate: %w", err)
			return
		}

		if event.Type != "content_block_delta" {
			continue
		}

		delta := event.AsContentBlockDelta().Delta

		var part core.Part

		switch delta.Type {
		case "text_delta":
			if delta.Text == "" {
				continue
			}
			part = core.TextPart{Text: delta.Text}
		case "thinking_delta":
			if delta.Thinking == "" {
				continue
			}
			part = core.ThinkingBlock{Thinking: delta.Thinking}
		default:
			continue
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		case out <- model.Response{
			Partial: true,
			Content: core.Content{Role: core.RoleAssistant, Parts: []core.Part{part}},
		}:
		}
	}

	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		return
	}

	out <- toResponse(&msg)
}

func toResponse(resp *anthropic.Message) model.Response {
	var parts []core.Part

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if t := block.AsText(); t.Text != "" {
				parts = append(parts, core.TextPart{Text: t.Text})
			}
		case "thinking":
			t := block.AsThinking()
			parts = append(parts, core.ThinkingBlock{Thinking: t.Thinking, Signature: t.Signature})
		case "redacted_thinking":
			parts = append(parts, core.ThinkingBlock{Redacted: true, Data: block.AsRedactedThinking().Data})
		case "tool_use":
			tu := block.AsToolUse()

			args := map[string]any{}
			if len(tu.Input) > 0 {
				_ = json.Unmarshal(tu.Input, &args)
			}

			parts = append(parts, core.ToolCall{ID: tu.ID, Name: tu.Name, Arguments: args})
		}
	}

	return model.Response{
		ID:           resp.ID,
		Partial:      false,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finishReason(resp.StopReason),
		Usage: &model.Usage{
			InputTokens:              int(resp.Usage.InputTokens),
			OutputTokens:             int(resp.Usage.OutputTokens),
			CacheCreationInputTokens: int(resp.Usage.CacheCreationInputTokens),
			CacheReadInputTokens:     int(resp.Usage.CacheReadInputTokens),
		},
	}
}

func finishReason(r anthropic.StopReason) string {
	switch r {
	case anthropic.StopReasonToolUse:
		return model.FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		return model.FinishLength
	case "":
		return model.FinishStop
	case anthropic.StopReasonEndTurn:
		return model.FinishStop
	default:
		return string(r)
	}
}

func buildSystem(blocks []model.SystemBlock) []anthropic.TextBlockParam {
	out := make([]anthropic.TextBlockParam, 0, len(blocks))

	for _, b := range blocks {
		if b.Text == "" {
			continue
		}

		tb := anthropic.TextBlockParam{Text: b.Text}
		if b.Cache {
			tb.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}

		out = append(out, tb)
	}

	return out
}

// buildMessages converts contents to Anthropic messages. A CacheBreakpoint on
// a content marks its last block.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(contents))

	for _, c := range contents {
		blocks := buildBlocks(c.Parts)
		if len(blocks) == 0 {
			continue
		}

		if c.CacheBreakpoint {
			markCache(&blocks[len(blocks)-1])
		}

		if c.Role == core.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	return messages
}

func buildBlocks(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		switch v := p.(type) {
		case core.TextPart:
			if v.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(v.Text))
			}
		case core.ImagePart:
			blocks = append(blocks, anthropic.NewImageBlockBase64(v.MediaType, v.Data))
		case core.ThinkingBlock:
			if v.Redacted {
				blocks = append(blocks, anthropic.NewRedactedThinkingBlock(v.Data))
			} else {
				blocks = append(blocks, anthropic.NewThinkingBlock(v.Signature, v.Thinking))
			}
		case core.ToolCall:
			args := v.Arguments
			if args == nil {
				args = map[string]any{}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(v.ID, args, v.Name))
		case core.ToolResult:
			blocks = append(blocks, anthropic.NewToolResultBlock(v.ToolCallID, v.Content, v.IsError))
		}
	}

	return blocks
}

func markCache(b *anthropic.ContentBlockParamUnion) {
	cc := anthropic.NewCacheControlEphemeralParam()

	switch {
	case b.OfText != nil:
		b.OfText.CacheControl = cc
	case b.OfToolResult != nil:
		b.OfToolResult.CacheControl = cc
	case b.OfToolUse != nil:
		b.OfToolUse.CacheControl = cc
	case b.OfImage != nil:
		b.OfImage.CacheControl = cc
	}
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}

		if t.Parameters != nil {
			if props, ok := t.Parameters["properties"]; ok {
				schema.Properties = props
			}
			schema.Required = requiredFields(t.Parameters["required"])
		}

		tp := anthropic.ToolParam{
			Name:        t.Name,
			InputSchema: schema,
		}
		if t.Description != "" {
			tp.Description = anthropic.String(t.Description)
		}
		if t.Cache {
			tp.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}

		out[i] = anthropic.ToolUnionParam{OfTool: &tp}
	}

	return out
}

func requiredFields(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, x := range r {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
