package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/logging"
	"github.com/stancld/rossum-agents-sub001/model"
	"github.com/stancld/rossum-agents-sub001/observability"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger  logging.Logger
	Metrics *observability.Metrics
	// CategoryDescriptions describes dynamic categories for the catalog.
	CategoryDescriptions map[string]string
	// IgnoreCategories treats every registered tool as a core tool: no
	// category has to be loaded before it is offered or executed.
	IgnoreCategories bool
}

// Registry maps tool names to tools. Every tool schema is compiled when the
// tool is registered so that a malformed schema fails at startup.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	schemas  map[string]*jsonschema.Schema
	order    []string
	catDescr map[string]string
	noCats   bool
	logger   logging.Logger
	metrics  *observability.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	descr := make(map[string]string, len(opts.CategoryDescriptions))
	for k, v := range opts.CategoryDescriptions {
		descr[k] = v
	}

	return &Registry{
		tools:    map[string]Tool{},
		schemas:  map[string]*jsonschema.Schema{},
		catDescr: descr,
		noCats:   opts.IgnoreCategories,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Register adds tools. Duplicate names and schemas that fail to compile are
// rejected; nothing is registered in that case.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	compiled := make(map[string]*jsonschema.Schema, len(tools))

	for _, t := range tools {
		name := t.Name()
		if name == "" {
			return errors.New("tool: empty tool name")
		}

		if _, dup := r.tools[name]; dup {
			return fmt.Errorf("tool: %q already registered", name)
		}

		if _, dup := compiled[name]; dup {
			return fmt.Errorf("tool: %q registered twice", name)
		}

		schema, err := CompileSchema(name, t.Parameters())
		if err != nil {
			return fmt.Errorf("tool: %w", err)
		}

		compiled[name] = schema
	}

	for _, t := range tools {
		r.tools[t.Name()] = t
		r.schemas[t.Name()] = compiled[t.Name()]
		r.order = append(r.order, t.Name())
	}

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(tools ...Tool) {
	if err := r.Register(tools...); err != nil {
		panic(err)
	}
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]

	return t, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n])
	}

	return out
}

// Categories lists the dynamic categories with their tool names, sorted by
// category name.
func (r *Registry) Categories(context.Context) ([]CategoryInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byCat := map[string]*CategoryInfo{}
	for _, n := range r.order {
		cat := CategoryOf(r.tools[n])
		if cat == "" {
			continue
		}

		info, ok := byCat[cat]
		if !ok {
			info = &CategoryInfo{Name: cat, Description: r.catDescr[cat]}
			byCat[cat] = info
		}

		info.Tools = append(info.Tools, n)
	}

	out := make([]CategoryInfo, 0, len(byCat))
	for _, info := range byCat {
		out = append(out, *info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

// HasCategory reports whether any registered tool belongs to cat.
func (r *Registry) HasCategory(cat string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tools {
		if CategoryOf(t) == cat {
			return true
		}
	}

	return false
}

// Definitions returns the tools offered to the model for the run carried
// by ctx: core tools plus loaded categories, restricted to read-only tools
// in core.ReadOnly mode.
func (r *Registry) Definitions(ctx context.Context) []model.ToolDefinition {
	rc := core.CurrentRequestContext(ctx)

	var visible []Tool
	for _, t := range r.Tools() {
		if r.visible(rc, t) {
			visible = append(visible, t)
		}
	}

	return Definitions(visible...)
}

func (r *Registry) visible(rc *core.RequestContext, t Tool) bool {
	if rc.Mode() == core.ReadOnly && !IsReadOnly(t) {
		return false
	}

	cat := CategoryOf(t)

	return r.noCats || cat == "" || rc.CategoryLoaded(cat)
}

// Definitions converts tools to model tool definitions.
func Definitions(tools ...Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}

	return defs
}

// Execute runs the named tool with a fresh call id and returns its result
// rendered as text.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	return r.execute(ctx, core.NewID(), name, args)
}

// ExecuteCall runs a model-requested call. Failures become an error-flagged
// result; they never abort the caller.
func (r *Registry) ExecuteCall(ctx context.Context, call core.ToolCall) core.ToolResult {
	out, err := r.execute(ctx, call.ID, call.Name, call.Arguments)
	if err != nil {
		return core.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: err.Error(), IsError: true}
	}

	return core.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: out}
}

func (r *Registry) execute(ctx context.Context, callID, name string, args map[string]any) (out string, err error) {
	start := time.Now()

	t, ok := r.Get(name)
	if !ok {
		r.metrics.ToolCall(name, "unknown")
		return "", &UnknownToolError{Name: name, Available: r.Names()}
	}

	rc := core.CurrentRequestContext(ctx)

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		r.metrics.ToolCall(name, outcome)
		r.logCall(rc, name, callID, time.Since(start), err)
	}()

	if rc.Mode() == core.ReadOnly && !IsReadOnly(t) {
		return "", NewToolError(name, "tool modifies data and the conversation is in read-only mode", CodeMode)
	}

	if cat := CategoryOf(t); !r.noCats && cat != "" && !rc.CategoryLoaded(cat) {
		return "", NewToolError(name, fmt.Sprintf("category %q is not loaded; call load_tool_category first", cat), CodeNotLoaded)
	}

	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()

	if _, self := t.(*FunctionTool); !self && schema != nil {
		if verr := validateArgs(schema, args); verr != nil {
			return "", &ToolError{Tool: name, Message: fmt.Sprintf("parameter validation failed: %v", verr), Code: CodeValidation, Details: verr}
		}
	}

	res, err := safeCall(core.NewToolContext(ctx, callID, name), t, args)
	if err != nil {
		return "", err
	}

	return FormatResult(res)
}

// logCall prefers the run's RunLogger, which carries the run identifiers.
func (r *Registry) logCall(rc *core.RequestContext, name, callID string, dur time.Duration, err error) {
	if rl, ok := rc.Logger().(*logging.RunLogger); ok {
		rl.With("call_id", callID).LogToolCall(name, dur, err == nil, err)
		return
	}

	if rl, ok := r.logger.(*logging.RunLogger); ok {
		rl.With("call_id", callID).LogToolCall(name, dur, err == nil, err)
		return
	}

	if err != nil {
		r.logger.Warn("tool.call.failed", "tool_name", name, "call_id", callID, "duration", dur, "error", err.Error())
		return
	}
	r.logger.Debug("tool.call.completed", "tool_name", name, "call_id", callID, "duration", dur)
}

func safeCall(tc *core.ToolContext, t Tool, args map[string]any) (res any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = NewToolError(t.Name(), fmt.Sprintf("panic: %v", rec), CodeExecution)
		}
	}()

	return t.Call(tc, args)
}

// FormatResult renders a tool result as text: strings verbatim, byte
// slices as UTF-8, everything else as JSON.
func FormatResult(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}

	return string(b), nil
}
