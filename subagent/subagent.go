package subagent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/logging"
	"github.com/stancld/rossum-agents-sub001/model"
	"github.com/stancld/rossum-agents-sub001/tool"
)

// MaxIterationsMessage is the analysis of a run that used up its iterations
// without producing any text.
const MaxIterationsMessage = "Max iterations reached"

// Defaults applied by New.
const (
	DefaultMaxIterations = 15
	DefaultMaxTokens     = 8192
)

// Config describes one kind of sub-agent.
type Config struct {
	// ToolName identifies the sub-agent in progress and token reports.
	ToolName     string
	SystemPrompt string
	Tools        []tool.Tool
	// MaxIterations bounds the number of model calls.
	MaxIterations  int
	MaxTokens      int
	ThinkingBudget int
}

// CallRecord is one tool call made by the sub-agent.
type CallRecord struct {
	Iteration int            `json:"iteration"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// Result is the outcome of a sub-agent run. Degraded results carry the
// failure in Err and the best available text in Analysis.
type Result struct {
	Analysis       string       `json:"analysis"`
	InputTokens    int          `json:"input_tokens"`
	OutputTokens   int          `json:"output_tokens"`
	IterationsUsed int          `json:"iterations_used"`
	ToolCalls      []CallRecord `json:"tool_calls,omitempty"`
	Degraded       bool         `json:"degraded,omitempty"`
	Err            string       `json:"error,omitempty"`
}

// ExecuteFunc runs one tool call and returns its textual result.
type ExecuteFunc func(ctx context.Context, name string, args map[string]any) (string, error)

// Options configures a Runner.
type Options struct {
	// Execute overrides the default executor (a tool.Registry over Config.Tools).
	Execute ExecuteFunc
	// OnTokens and OnProgress override the RequestContext callbacks.
	OnTokens   func(core.TokenUsage)
	OnProgress func(core.SubAgentProgress)
	// StreamText forwards model text deltas through RequestContext.ReportText.
	StreamText bool
	Logger     logging.Logger
}

// Runner executes sub-agent runs for one Config. It holds no per-run state
// and may be shared by concurrent runs.
type Runner struct {
	model   model.Model
	cfg     Config
	opts    Options
	defs    []model.ToolDefinition
	initErr error
}

// New creates a Runner. A tool set that fails registration is reported as a
// degraded result by every Run.
func New(m model.Model, cfg Config, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	r := &Runner{model: m, cfg: cfg, opts: opts, defs: tool.Definitions(cfg.Tools...)}

	if opts.Execute == nil {
		reg := tool.NewRegistry(func(o *tool.RegistryOptions) {
			o.Logger = opts.Logger
			o.IgnoreCategories = true
		})
		if err := reg.Register(cfg.Tools...); err != nil {
			r.initErr = err
		}
		r.opts.Execute = reg.Execute
	}

	return r
}

// Config returns the normalized configuration.
func (r *Runner) Config() Config { return r.cfg }

// Run executes the loop for prompt. It never returns an error.
func (r *Runner) Run(ctx context.Context, prompt string) Result {
	rc := core.CurrentRequestContext(ctx)
	start := time.Now()

	onTokens := r.opts.OnTokens
	if onTokens == nil {
		onTokens = rc.ReportTokens
	}

	onProgress := r.opts.OnProgress
	if onProgress == nil {
		onProgress = rc.ReportProgress
	}

	var res Result
	var history []string

	progress := func(iteration int, phase, summary string) {
		onProgress(core.SubAgentProgress{
			ToolName:      r.cfg.ToolName,
			Iteration:     iteration,
			MaxIterations: r.cfg.MaxIterations,
			Phase:         phase,
			CallSummary:   summary,
			ToolCalls:     append([]string(nil), history...),
		})
	}

	finish := func(res Result) Result {
		progress(res.IterationsUsed, core.PhaseCompleted, "")

		outcome := "ok"
		if res.Degraded {
			outcome = "degraded"
		}
		r.opts.Logger.Info("subagent.run.completed",
			"tool_name", r.cfg.ToolName,
			"outcome", outcome,
			"iterations", res.IterationsUsed,
			"input_tokens", res.InputTokens,
			"output_tokens", res.OutputTokens,
			"duration", time.Since(start),
		)

		return res
	}

	if r.initErr != nil {
		res.Degraded = true
		res.Err = r.initErr.Error()
		res.Analysis = "Sub-agent is misconfigured: " + r.initErr.Error()
		return finish(res)
	}

	messages := []core.Content{{Role: core.RoleUser, Parts: []core.Part{core.TextPart{Text: prompt}}}}

	var lastText string

	for iteration := 1; iteration <= r.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			res.Degraded = true
			res.Err = err.Error()
			res.Analysis = lastText
			return finish(res)
		}

		res.IterationsUsed = iteration
		progress(iteration, core.PhaseThinking, "")

		resp, err := model.Send(ctx, r.model, r.request(messages), r.partialHandler(rc))
		if err != nil {
			r.opts.Logger.Warn("subagent.model.failed", "tool_name", r.cfg.ToolName, "iteration", iteration, "error", err.Error())

			res.Degraded = true
			res.Err = err.Error()
			res.Analysis = lastText
			if res.Analysis == "" {
				res.Analysis = fmt.Sprintf("Sub-agent %s failed: %v", r.cfg.ToolName, err)
			}

			return finish(res)
		}

		if resp.Usage != nil {
			res.InputTokens += resp.Usage.InputTokens
			res.OutputTokens += resp.Usage.OutputTokens
			onTokens(core.TokenUsage{
				Source:       r.cfg.ToolName,
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: resp.Usage.OutputTokens,
			})
		}

		text := resp.Content.Text()
		if text != "" {
			lastText = text
			if r.opts.StreamText {
				rc.ReportText(core.SubAgentText{ToolName: r.cfg.ToolName, Text: text, IsFinal: len(resp.Content.ToolCalls()) == 0})
			}
		}

		calls := resp.Content.ToolCalls()
		if len(calls) == 0 {
			res.Analysis = text
			return finish(res)
		}

		assistant := resp.Content
		assistant.Role = core.RoleAssistant
		messages = append(messages, assistant)

		parts := make([]core.Part, 0, len(calls))
		for _, call := range calls {
			history = append(history, call.Name)
			progress(iteration, core.PhaseRunningTool, summarize(call))

			out, callErr := r.execute(ctx, call)

			res.ToolCalls = append(res.ToolCalls, CallRecord{
				Iteration: iteration,
				Name:      call.Name,
				Arguments: call.Arguments,
				IsError:   callErr != nil,
			})

			result := core.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: out}
			if callErr != nil {
				result.Content = callErr.Error()
				result.IsError = true
			}

			parts = append(parts, result)
		}

		messages = append(messages, core.Content{Role: core.RoleUser, Parts: parts})
		progress(iteration, core.PhaseReasoning, "")
	}

	res.Degraded = true
	res.Err = strings.ToLower(MaxIterationsMessage)
	res.Analysis = lastText
	if res.Analysis == "" {
		res.Analysis = MaxIterationsMessage
	}

	return finish(res)
}

func (r *Runner) request(messages []core.Content) model.Request {
	contents := append([]core.Content(nil), messages...)
	contents[len(contents)-1].CacheBreakpoint = true

	defs := append([]model.ToolDefinition(nil), r.defs...)
	if len(defs) > 0 {
		defs[len(defs)-1].Cache = true
	}

	return model.Request{
		System:         []model.SystemBlock{{Text: r.cfg.SystemPrompt, Cache: true}},
		Contents:       contents,
		Tools:          defs,
		MaxTokens:      r.cfg.MaxTokens,
		ThinkingBudget: r.cfg.ThinkingBudget,
		Stream:         r.opts.StreamText,
	}
}

func (r *Runner) partialHandler(rc *core.RequestContext) func(model.Response) {
	return func(resp model.Response) {
		if !r.opts.StreamText {
			return
		}

		if text := resp.Content.Text(); text != "" {
			rc.ReportText(core.SubAgentText{ToolName: r.cfg.ToolName, Text: text})
		}
	}
}

func (r *Runner) execute(ctx context.Context, call core.ToolCall) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, rec)
		}
	}()

	return r.opts.Execute(ctx, call.Name, call.Arguments)
}

const maxArgLen = 40

// summarize renders a call as name(key=value, ...) with long values cut.
func summarize(call core.ToolCall) string {
	if len(call.Arguments) == 0 {
		return call.Name + "()"
	}

	keys := make([]string, 0, len(call.Arguments))
	for k := range call.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprint(call.Arguments[k])
		if utf8.RuneCountInString(v) > maxArgLen {
			v = string([]rune(v)[:maxArgLen-3]) + "..."
		}
		parts = append(parts, k+"="+v)
	}

	return call.Name + "(" + strings.Join(parts, ", ") + ")"
}

// ErrEmptyPrompt is reported by the AsTool tool when called without a prompt.
var ErrEmptyPrompt = errors.New("prompt must not be empty")
