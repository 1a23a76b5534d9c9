package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/logging"
	"github.com/stancld/rossum-agents-sub001/memory"
	"github.com/stancld/rossum-agents-sub001/model"
	"github.com/stancld/rossum-agents-sub001/observability"
	"github.com/stancld/rossum-agents-sub001/tool"
)

// ErrMaxSteps is returned by Run when the step limit ends the run.
var ErrMaxSteps = errors.New("maximum number of steps reached")

// Options configures an Agent.
type Options struct {
	Instruction Instruction
	// InstructionData is merged over TemplateData when rendering Instruction.
	InstructionData map[string]any
	// MaxSteps bounds the number of model calls per run.
	MaxSteps         int
	MaxTokens        int
	ThinkingBudget   int
	EnableStreaming  bool
	MaxParallelTools int
	Logger           logging.Logger
	Metrics          *observability.Metrics
}

// Agent is the model-driven tool loop. It holds no per-run state and may
// serve concurrent runs.
type Agent struct {
	llm      model.Model
	registry *tool.Registry
	executor *Executor
	opts     Options
}

// New creates an agent with sensible defaults:
//   - 50 steps per run
//   - streaming enabled
//   - at most 4 tool calls in parallel
func New(llm model.Model, registry *tool.Registry, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Instruction:      NewInstructionFromText("You are a helpful assistant for the Rossum document platform."),
		MaxSteps:         50,
		EnableStreaming:  true,
		MaxParallelTools: 4,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 50
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Agent{
		llm:      llm,
		registry: registry,
		executor: NewExecutor(opts.MaxParallelTools, opts.Logger),
		opts:     opts,
	}
}

// Model returns the model driving the loop.
func (a *Agent) Model() model.Model { return a.llm }

// Registry returns the tool registry.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// turn holds the counters of one run.
type turn struct {
	emit  func(core.Step) error
	total model.Usage
}

// Run executes the loop for the task most recently added to mem. Every
// iteration is appended to mem as a MemoryStep.
//
// Run ends with exactly one terminal step and returns nil after a final
// answer. When the run fails (model error, missing configuration, step
// limit, panic) an ErrorStep is emitted and the cause is returned. When ctx
// is cancelled no terminal step is emitted and ctx.Err() is returned. An
// error returned by emit aborts the run and is returned as is.
func (a *Agent) Run(ctx context.Context, mem *memory.AgentMemory, emit func(core.Step) error) (err error) {
	rc := core.CurrentRequestContext(ctx)
	t := &turn{emit: emit}
	step := 0

	defer func() {
		if rec := recover(); rec != nil {
			a.opts.Logger.Error("agent.run.panic", "recover", rec)
			err = fmt.Errorf("agent: panic: %v", rec)
			_ = emit(core.ErrorStep{StepNumber: step, Message: "Unexpected error: " + fmt.Sprint(rec)})
		}
	}()

	system, err := a.opts.Instruction.Resolve(rc, a.opts.InstructionData)
	if err != nil {
		return a.fail(ctx, t, step, fmt.Errorf("resolve instruction: %w", err))
	}

	budget := core.NewBudget(a.opts.MaxSteps)

	for {
		n, ok := budget.Take()
		if !ok {
			break
		}
		step = n

		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := a.iterate(ctx, mem, system, step, t)
		if err != nil {
			return a.fail(ctx, t, step, err)
		}

		if done {
			return nil
		}
	}

	msg := fmt.Sprintf("Maximum number of steps (%d) reached without a final answer.", a.opts.MaxSteps)
	if err := emit(core.ErrorStep{StepNumber: a.opts.MaxSteps, Message: msg}); err != nil {
		return err
	}
	a.opts.Metrics.Step(core.KindError)

	return ErrMaxSteps
}

type emitError struct{ err error }

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

func (t *turn) send(m *observability.Metrics, s core.Step) error {
	if err := t.emit(s); err != nil {
		return &emitError{err: err}
	}
	m.Step(s.Kind())
	return nil
}

// fail turns err into the terminal ErrorStep unless the run was cancelled
// or the consumer is gone.
func (a *Agent) fail(ctx context.Context, t *turn, step int, err error) error {
	var ee *emitError
	if errors.As(err, &ee) {
		return ee.err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	msg := err.Error()
	var cfgErr *core.ConfigError
	if errors.As(err, &cfgErr) {
		msg = cfgErr.UserMessage()
	}

	a.opts.Logger.Error("agent.run.failed", "step", step, "error", err.Error())

	if emitErr := t.send(a.opts.Metrics, core.ErrorStep{StepNumber: step, Message: msg}); emitErr != nil {
		return emitErr.(*emitError).err
	}

	return err
}

// iterate performs one model call and, when tools were requested, one tool
// batch. done is true once the final answer was emitted.
func (a *Agent) iterate(ctx context.Context, mem *memory.AgentMemory, system string, step int, t *turn) (done bool, err error) {
	req := a.request(ctx, mem, system)

	var emitErr error
	onPartial := func(resp model.Response) {
		if emitErr != nil {
			return
		}
		for _, p := range resp.Content.Parts {
			switch v := p.(type) {
			case core.ThinkingBlock:
				if v.Thinking != "" {
					emitErr = t.send(a.opts.Metrics, core.ThinkingStep{StepNumber: step, Text: v.Thinking, IsStreaming: true})
				}
			case core.TextPart:
				if v.Text != "" {
					emitErr = t.send(a.opts.Metrics, core.TextDeltaStep{StepNumber: step, Text: v.Text, IsStreaming: true})
				}
			}
		}
	}

	start := time.Now()
	resp, err := model.Send(ctx, a.llm, req, onPartial)
	if emitErr != nil {
		return false, emitErr
	}

	var usage model.Usage
	if resp.Usage != nil {
		usage = *resp.Usage
	}

	info := a.llm.Info()
	a.logModelCall(ctx, info.Name, step, usage, time.Since(start), err)

	if err != nil {
		return false, fmt.Errorf("model %s: %w", info.Name, err)
	}

	t.total.Add(usage)
	a.opts.Metrics.Tokens(usage.InputTokens, usage.OutputTokens)

	content := resp.Content
	text := content.Text()
	calls := content.ToolCalls()
	thinking := content.ThinkingBlocks()

	if !req.Stream {
		for _, tb := range thinking {
			if tb.Thinking == "" {
				continue
			}
			if err := t.send(a.opts.Metrics, core.ThinkingStep{StepNumber: step, Text: tb.Thinking}); err != nil {
				return false, err
			}
		}
	}

	if text != "" {
		if err := t.send(a.opts.Metrics, core.TextDeltaStep{StepNumber: step, Text: text, Final: len(calls) == 0}); err != nil {
			return false, err
		}
	}

	ms := memory.MemoryStep{
		StepNumber:     step,
		Text:           text,
		ThinkingBlocks: thinking,
		InputTokens:    usage.InputTokens,
		OutputTokens:   usage.OutputTokens,
	}

	if len(calls) == 0 {
		mem.AddStep(ms)

		return true, t.send(a.opts.Metrics, core.FinalAnswerStep{
			StepNumber:   step,
			Text:         text,
			InputTokens:  t.total.InputTokens,
			OutputTokens: t.total.OutputTokens,
		})
	}

	infos := make([]core.ToolCallInfo, len(calls))
	for i, c := range calls {
		infos[i] = core.ToolCallInfo{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}

	var (
		startMu  sync.Mutex
		started  int
		startErr error
	)

	// Each ToolStart is emitted as its call begins, numbered in start order.
	run := func(ctx context.Context, call core.ToolCall) core.ToolResult {
		startMu.Lock()
		if startErr == nil {
			started++
			startErr = t.send(a.opts.Metrics, core.ToolStartStep{StepNumber: step, Calls: infos, Current: started, Total: len(calls)})
		}
		err := startErr
		startMu.Unlock()

		if err != nil {
			return core.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: "tool call aborted", IsError: true}
		}

		return a.registry.ExecuteCall(ctx, call)
	}

	results := a.executor.Execute(ctx, calls, run)

	if startErr != nil {
		return false, startErr
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	ms.ToolCalls = calls
	ms.ToolResults = results
	mem.AddStep(ms)

	return false, t.send(a.opts.Metrics, core.ToolResultStep{
		StepNumber:   step,
		Results:      results,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
	})
}

func (a *Agent) request(ctx context.Context, mem *memory.AgentMemory, system string) model.Request {
	contents := mem.WriteToMessages()
	if len(contents) > 0 {
		contents[len(contents)-1].CacheBreakpoint = true
	}

	defs := a.registry.Definitions(ctx)
	if len(defs) > 0 {
		defs[len(defs)-1].Cache = true
	}

	return model.Request{
		System:         []model.SystemBlock{{Text: system, Cache: true}},
		Contents:       contents,
		Tools:          defs,
		MaxTokens:      a.opts.MaxTokens,
		Stream:         a.opts.EnableStreaming,
		ThinkingBudget: a.opts.ThinkingBudget,
	}
}

// logModelCall prefers the run's RunLogger, which carries the run identifiers.
func (a *Agent) logModelCall(ctx context.Context, name string, step int, usage model.Usage, dur time.Duration, err error) {
	if rl, ok := core.CurrentRequestContext(ctx).Logger().(*logging.RunLogger); ok {
		rl.With("step", step).LogModelCall(name, usage.InputTokens, usage.OutputTokens, dur, err)
		return
	}

	if rl, ok := a.opts.Logger.(*logging.RunLogger); ok {
		rl.With("step", step).LogModelCall(name, usage.InputTokens, usage.OutputTokens, dur, err)
		return
	}

	a.opts.Logger.Debug("model.call.completed", "model", name, "step", step,
		"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens,
		"duration", dur, "error", err != nil)
}
