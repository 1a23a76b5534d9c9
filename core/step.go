package core

import "encoding/json"

// Step is one discrete unit of progress emitted during a run. The set of
// variants is closed; consumers switch on the concrete type or on Kind.
type Step interface {
	isStep()
	Kind() string
	Number() int
}

// Step kinds as they appear on the wire.
const (
	KindThinking    = "thinking"
	KindTextDelta   = "text_delta"
	KindToolStart   = "tool_start"
	KindToolResult  = "tool_result"
	KindFinalAnswer = "final_answer"
	KindError       = "error"
)

// ThinkingStep carries streamed reasoning text.
type ThinkingStep struct {
	StepNumber  int    `json:"step_number"`
	Text        string `json:"text"`
	IsStreaming bool   `json:"is_streaming"`
}

// TextDeltaStep carries streamed answer text. Final is false for text that
// precedes tool calls in the same model response.
type TextDeltaStep struct {
	StepNumber  int    `json:"step_number"`
	Text        string `json:"text"`
	IsStreaming bool   `json:"is_streaming"`
	Final       bool   `json:"final"`
}

// ToolCallInfo is the display form of a requested call.
type ToolCallInfo struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolStartStep announces the Current-th of Total tool calls in an iteration.
type ToolStartStep struct {
	StepNumber  int            `json:"step_number"`
	Calls       []ToolCallInfo `json:"tool_calls"`
	Current     int            `json:"current"`
	Total       int            `json:"total"`
	IsStreaming bool           `json:"is_streaming"`
}

// ToolResultStep reports all results of one iteration.
type ToolResultStep struct {
	StepNumber   int          `json:"step_number"`
	Results      []ToolResult `json:"tool_results"`
	InputTokens  int          `json:"input_tokens"`
	OutputTokens int          `json:"output_tokens"`
}

// FinalAnswerStep terminates a successful run.
type FinalAnswerStep struct {
	StepNumber   int    `json:"step_number"`
	Text         string `json:"final_answer"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// ErrorStep terminates a failed run.
type ErrorStep struct {
	StepNumber int    `json:"step_number"`
	Message    string `json:"error"`
}

func (ThinkingStep) isStep()    {}
func (TextDeltaStep) isStep()   {}
func (ToolStartStep) isStep()   {}
func (ToolResultStep) isStep()  {}
func (FinalAnswerStep) isStep() {}
func (ErrorStep) isStep()       {}

func (ThinkingStep) Kind() string    { return KindThinking }
func (TextDeltaStep) Kind() string   { return KindTextDelta }
func (ToolStartStep) Kind() string   { return KindToolStart }
func (ToolResultStep) Kind() string  { return KindToolResult }
func (FinalAnswerStep) Kind() string { return KindFinalAnswer }
func (ErrorStep) Kind() string       { return KindError }

func (s ThinkingStep) Number() int    { return s.StepNumber }
func (s TextDeltaStep) Number() int   { return s.StepNumber }
func (s ToolStartStep) Number() int   { return s.StepNumber }
func (s ToolResultStep) Number() int  { return s.StepNumber }
func (s FinalAnswerStep) Number() int { return s.StepNumber }
func (s ErrorStep) Number() int       { return s.StepNumber }

// The MarshalJSON methods add the "type" discriminator.

func (s ThinkingStep) MarshalJSON() ([]byte, error) {
	type alias ThinkingStep
	return marshalTyped(s.Kind(), alias(s))
}

func (s TextDeltaStep) MarshalJSON() ([]byte, error) {
	type alias TextDeltaStep
	return marshalTyped(s.Kind(), alias(s))
}

func (s ToolStartStep) MarshalJSON() ([]byte, error) {
	type alias ToolStartStep
	return marshalTyped(s.Kind(), alias(s))
}

func (s ToolResultStep) MarshalJSON() ([]byte, error) {
	type alias ToolResultStep
	return marshalTyped(s.Kind(), alias(s))
}

func (s FinalAnswerStep) MarshalJSON() ([]byte, error) {
	type alias FinalAnswerStep
	return marshalTyped(s.Kind(), alias(s))
}

func (s ErrorStep) MarshalJSON() ([]byte, error) {
	type alias ErrorStep
	return marshalTyped(s.Kind(), alias(s))
}

func marshalTyped(kind string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	t, _ := json.Marshal(kind)
	fields["type"] = t

	return json.Marshal(fields)
}

// IsTerminal reports whether s ends the stream.
func IsTerminal(s Step) bool {
	switch s.(type) {
	case FinalAnswerStep, *FinalAnswerStep, ErrorStep, *ErrorStep:
		return true
	default:
		return false
	}
}
