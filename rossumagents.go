// Package rossumagents is the high-level façade over the run engine. It
// wires a model, the builtin tools, caller tools and sub-agents into an
// agent loop, and serves runs through a runner.Runner.
//
// Most applications:
//  1. create an Engine via New(model) (optionally overriding the default
//     in-memory chat store and the disk output store)
//  2. start runs with StartRun and consume their events, or call RunSync
//  3. cancel with CancelRun
//
// All defaults are safe for local development and testing; production
// deployments typically supply a durable chat store and a structured logger.
package rossumagents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stancld/rossum-agents-sub001/agent"
	"github.com/stancld/rossum-agents-sub001/artifact"
	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/logging"
	"github.com/stancld/rossum-agents-sub001/memory"
	"github.com/stancld/rossum-agents-sub001/model"
	"github.com/stancld/rossum-agents-sub001/observability"
	"github.com/stancld/rossum-agents-sub001/runner"
	"github.com/stancld/rossum-agents-sub001/session"
	"github.com/stancld/rossum-agents-sub001/stream"
	"github.com/stancld/rossum-agents-sub001/subagent"
	"github.com/stancld/rossum-agents-sub001/tool"
	"github.com/stancld/rossum-agents-sub001/tool/builtin"
)

// SubAgent describes a sub-agent exposed to the main loop as a tool.
type SubAgent struct {
	Config      subagent.Config
	Description string
	// StreamText forwards the sub-agent's text to the run listener.
	StreamText bool
}

// Options configures the Engine.
type Options struct {
	// Instruction is the system prompt template of the main loop.
	Instruction     string
	InstructionData map[string]any

	// Tools are registered next to the builtin tools.
	Tools     []tool.Tool
	SubAgents []SubAgent

	MaxSteps         int
	MaxTokens        int
	ThinkingBudget   int
	MaxParallelTools int
	DisableStreaming bool

	// CollapsibleTools overrides memory.DefaultCollapsibleTools for new
	// conversations.
	CollapsibleTools []string
	// CatalogTTL is how long the dynamic tool category list is cached.
	CatalogTTL           time.Duration
	CategoryDescriptions map[string]string

	KeepaliveInterval time.Duration
	WatchInterval     time.Duration

	// Stores (defaults: in-memory chat store, disk output store under OutputRoot)
	Store     session.Store
	Artifacts artifact.Store
	// OutputRoot is the root of per-run output directories.
	OutputRoot string

	// Logger (defaults to NoOp logger if nil)
	Logger  logging.Logger
	Metrics *observability.Metrics
}

// Engine aggregates the agent loop, its tools and the runner.
type Engine struct {
	opts     Options
	registry *tool.Registry
	agent    *agent.Agent
	runner   *runner.Runner
}

// New creates an Engine around llm. Unset services get in-memory or local
// disk implementations.
func New(llm model.Model, optFns ...func(o *Options)) (*Engine, error) {
	if llm == nil {
		return nil, fmt.Errorf("rossumagents: model is required")
	}

	opts := Options{
		Instruction:      defaultInstruction,
		MaxSteps:         50,
		MaxParallelTools: 4,
		CatalogTTL:       5 * time.Minute,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.OutputRoot == "" {
		opts.OutputRoot = filepath.Join(os.TempDir(), "rossum-agent-outputs")
	}

	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore(func(o *session.Options) {
			o.MemoryOptions = memoryOptions(opts)
		})
	}

	if opts.Artifacts == nil {
		disk, err := artifact.NewDiskStore(opts.OutputRoot)
		if err != nil {
			return nil, fmt.Errorf("rossumagents: output store: %w", err)
		}
		opts.Artifacts = disk
	}

	registry := tool.NewRegistry(func(o *tool.RegistryOptions) {
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
		o.CategoryDescriptions = opts.CategoryDescriptions
	})

	catalog := tool.NewCatalog(registry.Categories, opts.CatalogTTL)

	tools := append(builtin.TaskTools(),
		builtin.LoadToolCategory(catalog),
		builtin.WriteOutputFile(opts.Artifacts),
	)
	tools = append(tools, opts.Tools...)

	for _, sa := range opts.SubAgents {
		r := subagent.New(llm, sa.Config, func(o *subagent.Options) {
			o.Logger = opts.Logger
			o.StreamText = sa.StreamText
		})
		tools = append(tools, subagent.AsTool(r, sa.Description))
	}

	if err := registry.Register(tools...); err != nil {
		return nil, fmt.Errorf("rossumagents: register tools: %w", err)
	}

	a := agent.New(llm, registry, func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText(opts.Instruction)
		o.InstructionData = opts.InstructionData
		o.MaxSteps = opts.MaxSteps
		o.MaxTokens = opts.MaxTokens
		o.ThinkingBudget = opts.ThinkingBudget
		o.MaxParallelTools = opts.MaxParallelTools
		o.EnableStreaming = !opts.DisableStreaming
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})

	r := runner.New(a, opts.Store, func(o *runner.Options) {
		o.OutputRoot = opts.OutputRoot
		o.MemoryOptions = memoryOptions(opts)
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
		if opts.KeepaliveInterval != 0 {
			o.KeepaliveInterval = opts.KeepaliveInterval
		}
		if opts.WatchInterval != 0 {
			o.WatchInterval = opts.WatchInterval
		}
	})

	return &Engine{opts: opts, registry: registry, agent: a, runner: r}, nil
}

const defaultInstruction = `You are an expert assistant for the Rossum document automation platform.
Use the available tools to inspect and change the user's organization.
Track multi-step work with create_task and update_task.
Load tool categories with load_tool_category before using their tools.
{{if .read_only}}This conversation is read-only: never attempt changes.{{end}}`

func memoryOptions(opts Options) []memory.Option {
	if opts.CollapsibleTools == nil {
		return nil
	}

	return []memory.Option{memory.WithCollapsibleTools(opts.CollapsibleTools...)}
}

// Runner returns the underlying runner.
func (e *Engine) Runner() *runner.Runner { return e.runner }

// Registry returns the tool registry of the main loop.
func (e *Engine) Registry() *tool.Registry { return e.registry }

// Artifacts returns the output file store.
func (e *Engine) Artifacts() artifact.Store { return e.opts.Artifacts }

// StartRun starts an asynchronous run. See runner.Runner.StartRun.
func (e *Engine) StartRun(ctx context.Context, conversationID, prompt string, optFns ...func(o *runner.RunOptions)) (*runner.Run, error) {
	return e.runner.StartRun(ctx, conversationID, prompt, optFns...)
}

// CancelRun cancels the active run of a conversation.
func (e *Engine) CancelRun(conversationID string) bool {
	return e.runner.CancelRun(conversationID)
}

// RunSync is a synchronous helper that drains the run, collects its steps
// and returns the run outcome. Keepalives are dropped.
func (e *Engine) RunSync(ctx context.Context, conversationID, prompt string, optFns ...func(o *runner.RunOptions)) ([]core.Step, error) {
	run, err := e.runner.StartRun(ctx, conversationID, prompt, optFns...)
	if err != nil {
		return nil, err
	}

	return Collect(run)
}

// Collect drains run and returns its steps and outcome.
func Collect(run *runner.Run) ([]core.Step, error) {
	var steps []core.Step
	for ev := range run.Events() {
		if isStep(ev) {
			steps = append(steps, ev.Step)
		}
	}

	return steps, run.Wait()
}

func isStep(ev stream.Event) bool { return !ev.Keepalive && ev.Step != nil }
