package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/stancld/rossum-agents-sub001/core"
)

// HandlerFunc produces the final response for a request.
type HandlerFunc func(ctx context.Context, req Request) (Response, error)

// MockModel is a scripted in-memory Model for tests and examples. Queued
// responses are served first, then the handler, then an echo of the last
// user text.
type MockModel struct {
	info Info

	mu        sync.Mutex
	queue     []scripted
	handler   HandlerFunc
	responses map[string]string
	calls     []Request
}

type scripted struct {
	resp Response
	err  error
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Enqueue appends responses served in order by subsequent calls.
func (m *MockModel) Enqueue(resps ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range resps {
		m.queue = append(m.queue, scripted{resp: r})
	}
}

// EnqueueError makes the next unserved call fail with err.
func (m *MockModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scripted{err: err})
}

// SetHandler installs a fallback used once the queue is empty.
func (m *MockModel) SetHandler(fn HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

// Calls returns the requests received so far.
func (m *MockModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// CallCount returns the number of Generate calls.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockModel) next(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)

	if len(m.queue) > 0 {
		s := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return s.resp, s.err
	}

	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}

	if len(req.Contents) == 0 {
		return Response{}, fmt.Errorf("no contents provided")
	}

	input := req.Contents[len(req.Contents)-1].Text()

	m.mu.Lock()
	full := m.responses[input]
	m.mu.Unlock()

	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", input)
	}

	return TextResponse(full), nil
}

// Generate implements Model. With req.Stream set, thinking and text of the
// final response are first emitted as word-sized partial chunks.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		final, err := m.next(ctx, req)
		if err != nil {
			errCh <- err
			return
		}

		if req.Stream {
			for _, p := range partials(final.Content) {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- p:
				}
			}
		}

		final.Partial = false
		if final.Content.Role == "" {
			final.Content.Role = core.RoleAssistant
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- final:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

func partials(c core.Content) []Response {
	var out []Response

	for _, p := range c.Parts {
		switch v := p.(type) {
		case core.ThinkingBlock:
			for _, w := range chunks(v.Thinking) {
				out = append(out, Response{Partial: true, Content: core.Content{
					Role:  core.RoleAssistant,
					Parts: []core.Part{core.ThinkingBlock{Thinking: w}},
				}})
			}
		case core.TextPart:
			for _, w := range chunks(v.Text) {
				out = append(out, Response{Partial: true, Content: core.Content{
					Role:  core.RoleAssistant,
					Parts: []core.Part{core.TextPart{Text: w}},
				}})
			}
		}
	}

	return out
}

// chunks splits s after each space so that concatenation restores s.
func chunks(s string) []string {
	var out []string
	for s != "" {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}

// TextResponse builds a final response that answers with text only.
func TextResponse(text string) Response {
	return Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: []core.Part{core.TextPart{Text: text}}},
		FinishReason: FinishStop,
		Usage:        &Usage{InputTokens: 10, OutputTokens: len(strings.Fields(text))},
	}
}

// ToolCallResponse builds a final response requesting the given calls,
// optionally preceded by text.
func ToolCallResponse(text string, calls ...core.ToolCall) Response {
	parts := make([]core.Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	for _, c := range calls {
		parts = append(parts, c)
	}

	return Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: FinishToolCalls,
		Usage:        &Usage{InputTokens: 10, OutputTokens: 5},
	}
}
