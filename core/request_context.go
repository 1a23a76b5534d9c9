package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/stancld/rossum-agents-sub001/logging"
	"github.com/stancld/rossum-agents-sub001/task"
)

// Mode controls whether tools with side effects may run.
type Mode int

const (
	// ReadWrite allows every registered tool.
	ReadWrite Mode = iota
	// ReadOnly restricts execution to tools marked read-only.
	ReadOnly
)

func (m Mode) String() string {
	if m == ReadOnly {
		return "read_only"
	}
	return "read_write"
}

// Credentials authenticate tool calls against the platform API.
type Credentials struct {
	APIToken string `json:"-"`
	BaseURL  string `json:"base_url"`
}

var processDefaults struct {
	mu         sync.RWMutex
	creds      Credentials
	outputRoot string
}

// SetDefaultCredentials sets the process-wide fallback used by runs that were
// started without credentials of their own.
func SetDefaultCredentials(c Credentials) {
	processDefaults.mu.Lock()
	defer processDefaults.mu.Unlock()
	processDefaults.creds = c
}

// SetDefaultOutputRoot sets the directory under which per-run output
// directories are created when a run does not override it.
func SetDefaultOutputRoot(dir string) {
	processDefaults.mu.Lock()
	defer processDefaults.mu.Unlock()
	processDefaults.outputRoot = dir
}

func defaultCredentials() Credentials {
	processDefaults.mu.RLock()
	defer processDefaults.mu.RUnlock()
	return processDefaults.creds
}

func defaultOutputRoot() string {
	processDefaults.mu.RLock()
	defer processDefaults.mu.RUnlock()
	if processDefaults.outputRoot != "" {
		return processDefaults.outputRoot
	}
	return filepath.Join(os.TempDir(), "rossum-agent-outputs")
}

// Sub-agent progress phases.
const (
	PhaseThinking    = "thinking"
	PhaseRunningTool = "running_tool"
	PhaseReasoning   = "reasoning"
	PhaseCompleted   = "completed"
)

// SubAgentProgress is reported at every sub-agent phase transition.
type SubAgentProgress struct {
	ToolName      string   `json:"tool_name"`
	Iteration     int      `json:"iteration"`
	MaxIterations int      `json:"max_iterations"`
	Phase         string   `json:"status"`
	CallSummary   string   `json:"current_tool,omitempty"`
	ToolCalls     []string `json:"tool_calls"`
}

// SubAgentText carries streamed sub-agent text.
type SubAgentText struct {
	ToolName string `json:"tool_name"`
	Text     string `json:"text"`
	IsFinal  bool   `json:"is_final"`
}

// TokenUsage is reported after every model call made outside the main loop.
type TokenUsage struct {
	Source       string `json:"source"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// FileInfo describes a file written to the run output location.
type FileInfo struct {
	Name string `json:"filename"`
	Path string `json:"path"`
	Size int    `json:"size"`
}

// Callbacks are the listener hooks of a run. Any of them may be nil.
type Callbacks struct {
	OnProgress     func(SubAgentProgress)
	OnText         func(SubAgentText)
	OnTokens       func(TokenUsage)
	OnTaskSnapshot func([]task.Task)
	OnFileCreated  func(FileInfo)
}

// RequestContextOptions configures NewRequestContext.
type RequestContextOptions struct {
	ConversationID string
	RunID          string
	Mode           Mode
	// Credentials overrides the process defaults when non-nil.
	Credentials *Credentials
	// OutputRoot overrides the process default output root.
	OutputRoot string
	Callbacks  Callbacks
	Logger     logging.Logger
}

// RequestContext is the per-run bundle of configuration, credentials,
// callbacks and cancellation. Exactly one exists per active run; it travels
// with the run's context.Context and is discarded when the run ends.
type RequestContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	conversationID string
	runID          string
	mode           Mode
	creds          *Credentials
	outputRoot     string
	callbacks      Callbacks
	tracker        *task.Tracker

	outputOnce sync.Once
	outputDir  string
	outputErr  error

	mu         sync.Mutex
	categories map[string]struct{}

	*loggerAdapter
}

// NewRequestContext creates a cancellable run context derived from parent.
// The returned value's Context() already carries the RequestContext.
func NewRequestContext(parent context.Context, optFns ...func(o *RequestContextOptions)) *RequestContext {
	opts := RequestContextOptions{
		RunID: NewID(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	rc := &RequestContext{
		conversationID: opts.ConversationID,
		runID:          opts.RunID,
		mode:           opts.Mode,
		creds:          opts.Credentials,
		outputRoot:     opts.OutputRoot,
		callbacks:      opts.Callbacks,
		tracker:        task.NewTracker(),
		categories:     map[string]struct{}{},
		loggerAdapter:  newLoggerAdapter(opts.Logger),
	}

	ctx, cancel := context.WithCancel(parent)
	rc.ctx = WithRequestContext(ctx, rc)
	rc.cancel = cancel

	return rc
}

// Context returns the run's context; it carries this RequestContext.
func (rc *RequestContext) Context() context.Context { return rc.ctx }

// Done is closed when the run is cancelled.
func (rc *RequestContext) Done() <-chan struct{} { return rc.ctx.Done() }

// Err returns the cancellation cause, if any.
func (rc *RequestContext) Err() error { return rc.ctx.Err() }

// Cancel cancels the run. Safe to call more than once.
func (rc *RequestContext) Cancel() { rc.cancel() }

// ConversationID returns the conversation this run belongs to.
func (rc *RequestContext) ConversationID() string { return rc.conversationID }

// RunID returns the unique run identifier.
func (rc *RequestContext) RunID() string { return rc.runID }

// Mode returns the tool execution mode.
func (rc *RequestContext) Mode() Mode { return rc.mode }

// Tracker returns the run's task tracker.
func (rc *RequestContext) Tracker() *task.Tracker { return rc.tracker }

// Credentials resolves the run credentials, falling back to the process
// defaults. A *ConfigError is returned when no API token is available.
func (rc *RequestContext) Credentials() (Credentials, error) {
	c := defaultCredentials()
	if rc.creds != nil {
		if rc.creds.APIToken != "" {
			c.APIToken = rc.creds.APIToken
		}
		if rc.creds.BaseURL != "" {
			c.BaseURL = rc.creds.BaseURL
		}
	}

	if c.APIToken == "" {
		return Credentials{}, NewConfigError("api_token", "No API token configured for this conversation.")
	}

	return c, nil
}

// OutputNamespace returns "<conversation>/<run>", the key of the run's
// output location in an artifact store.
func (rc *RequestContext) OutputNamespace() string {
	conv := rc.conversationID
	if conv == "" {
		conv = "default"
	}

	return conv + "/" + rc.runID
}

// OutputDir returns the run's output directory, creating it on first use.
func (rc *RequestContext) OutputDir() (string, error) {
	rc.outputOnce.Do(func() {
		root := rc.outputRoot
		if root == "" {
			root = defaultOutputRoot()
		}

		dir := filepath.Join(root, filepath.FromSlash(rc.OutputNamespace()))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			rc.outputErr = fmt.Errorf("create output dir: %w", err)
			return
		}

		rc.outputDir = dir
	})

	return rc.outputDir, rc.outputErr
}

// LoadCategory marks a dynamic tool category as loaded. It returns false if
// the category was already loaded.
func (rc *RequestContext) LoadCategory(name string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if _, ok := rc.categories[name]; ok {
		return false
	}

	rc.categories[name] = struct{}{}

	return true
}

// CategoryLoaded reports whether the category has been loaded in this run.
func (rc *RequestContext) CategoryLoaded(name string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	_, ok := rc.categories[name]

	return ok
}

// LoadedCategories returns the loaded categories sorted by name.
func (rc *RequestContext) LoadedCategories() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	out := make([]string, 0, len(rc.categories))
	for name := range rc.categories {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

// ReportProgress forwards sub-agent progress to the listener, if any.
func (rc *RequestContext) ReportProgress(p SubAgentProgress) {
	if rc.callbacks.OnProgress != nil {
		rc.callbacks.OnProgress(p)
	}
}

// ReportText forwards streamed sub-agent text to the listener, if any.
func (rc *RequestContext) ReportText(t SubAgentText) {
	if rc.callbacks.OnText != nil {
		rc.callbacks.OnText(t)
	}
}

// ReportTokens forwards token usage to the listener, if any.
func (rc *RequestContext) ReportTokens(u TokenUsage) {
	if rc.callbacks.OnTokens != nil {
		rc.callbacks.OnTokens(u)
	}
}

// ReportTaskSnapshot forwards a task list snapshot to the listener, if any.
func (rc *RequestContext) ReportTaskSnapshot(tasks []task.Task) {
	if rc.callbacks.OnTaskSnapshot != nil {
		rc.callbacks.OnTaskSnapshot(tasks)
	}
}

// ReportFileCreated forwards an output file notification to the listener, if any.
func (rc *RequestContext) ReportFileCreated(f FileInfo) {
	if rc.callbacks.OnFileCreated != nil {
		rc.callbacks.OnFileCreated(f)
	}
}

type requestContextKey struct{}

// WithRequestContext returns a child of ctx carrying rc.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the RequestContext carried by ctx.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}

// CurrentRequestContext returns the RequestContext carried by ctx or, when
// none is set, a detached one backed by the process defaults whose callbacks
// do nothing. The detached value is not cancellable on its own.
func CurrentRequestContext(ctx context.Context) *RequestContext {
	if rc, ok := RequestContextFrom(ctx); ok {
		return rc
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rc := &RequestContext{
		cancel:        func() {},
		runID:         NewID(),
		tracker:       task.NewTracker(),
		categories:    map[string]struct{}{},
		loggerAdapter: newLoggerAdapter(nil),
	}
	rc.ctx = WithRequestContext(ctx, rc)

	return rc
}
