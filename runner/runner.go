package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/stancld/rossum-agents-sub001/agent"
	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/logging"
	"github.com/stancld/rossum-agents-sub001/memory"
	"github.com/stancld/rossum-agents-sub001/observability"
	"github.com/stancld/rossum-agents-sub001/session"
	"github.com/stancld/rossum-agents-sub001/stream"
)

// ErrRunActive is returned by StartRun when the conversation already has a
// run in progress.
var ErrRunActive = errors.New("conversation already has an active run")

// Run outcomes reported to metrics and logs.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeMaxSteps  = "max_steps"
	OutcomeFailed    = "failed"
)

const maxTitleLen = 80

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// KeepaliveInterval is the silence after which a keepalive event is
	// emitted. <= 0 disables keepalives.
	KeepaliveInterval time.Duration
	// WatchInterval is the liveness polling period.
	WatchInterval time.Duration
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// OutputRoot overrides the process default root of per-run output
	// directories.
	OutputRoot string
	// MemoryOptions apply to the memory of conversations that do not exist yet.
	MemoryOptions []memory.Option
	// Logger receives runner events. A *logging.RunLogger additionally gets
	// per-run identifiers and run summaries.
	Logger  logging.Logger
	Metrics *observability.Metrics
}

// RunOptions configures a single run.
type RunOptions struct {
	Images []core.ImagePart
	Mode   core.Mode
	// Credentials override the process defaults for this run.
	Credentials *core.Credentials
	// Liveness, when set, is polled and the run is cancelled once it
	// reports a disconnected consumer.
	Liveness  Liveness
	Callbacks core.Callbacks
	// Labels are merged into the stored conversation metadata.
	Labels map[string]string
}

// Runner starts, tracks and cancels agent runs. Public methods are safe for
// concurrent use.
type Runner struct {
	agent *agent.Agent
	store session.Store
	opts  Options

	mu         sync.Mutex
	activeRuns map[string]*Run
}

// New constructs a Runner with optional overrides.
func New(a *agent.Agent, store session.Store, optFns ...func(o *Options)) *Runner {
	opts := Options{
		KeepaliveInterval: stream.DefaultKeepaliveInterval,
		WatchInterval:     DefaultWatchInterval,
		EventBufferSize:   64,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if store == nil {
		store = session.NewInMemoryStore()
	}

	return &Runner{
		agent:      a,
		store:      store,
		opts:       opts,
		activeRuns: make(map[string]*Run),
	}
}

// Store returns the chat store.
func (r *Runner) Store() session.Store { return r.store }

// Active reports whether the conversation has a run in progress.
func (r *Runner) Active(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.activeRuns[conversationID]

	return ok
}

// Run is one execution of the agent loop for a conversation.
type Run struct {
	ConversationID string
	ID             string

	rc     *core.RequestContext
	events chan stream.Event
	logger logging.Logger

	watcher    *watcher
	streamDone chan struct{}
	done       chan struct{}

	cancelled atomic.Bool
	steps     atomic.Int64
	err       error
}

// Events returns the run's event stream. It is closed when the run ends.
func (run *Run) Events() <-chan stream.Event { return run.events }

// Wait blocks until the run has fully ended and returns its outcome: nil
// after a final answer, the context error after cancellation, or the
// failure that ended it. Events must be drained concurrently.
func (run *Run) Wait() error {
	<-run.done
	return run.err
}

// Done is closed once the run has fully ended.
func (run *Run) Done() <-chan struct{} { return run.done }

// RequestContext returns the run's request context.
func (run *Run) RequestContext() *core.RequestContext { return run.rc }

// OutputDir returns the run's output directory, creating it on first use.
func (run *Run) OutputDir() (string, error) { return run.rc.OutputDir() }

// cancel cancels the run and reports whether this call did it.
func (run *Run) cancel(reason string) bool {
	if !run.cancelled.CompareAndSwap(false, true) {
		return false
	}

	run.logger.Info("runner.run.cancel", "reason", reason)
	run.rc.Cancel()

	return true
}

// StartRun begins a run that answers prompt in the given conversation.
// The returned Run is already executing. ctx bounds the whole run.
func (r *Runner) StartRun(ctx context.Context, conversationID, prompt string, optFns ...func(o *RunOptions)) (*Run, error) {
	if conversationID == "" {
		return nil, errors.New("runner: conversation id is required")
	}

	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("runner: prompt is required")
	}

	var ro RunOptions
	for _, fn := range optFns {
		fn(&ro)
	}

	runID := core.NewID()
	logger := r.runLogger(conversationID, runID)

	rc := core.NewRequestContext(ctx, func(o *core.RequestContextOptions) {
		o.ConversationID = conversationID
		o.RunID = runID
		o.Mode = ro.Mode
		o.Credentials = ro.Credentials
		o.OutputRoot = r.opts.OutputRoot
		o.Callbacks = ro.Callbacks
		o.Logger = logger
	})

	run := &Run{
		ConversationID: conversationID,
		ID:             runID,
		rc:             rc,
		events:         make(chan stream.Event, r.opts.EventBufferSize),
		logger:         logger,
		streamDone:     make(chan struct{}),
		done:           make(chan struct{}),
	}

	r.mu.Lock()
	if _, busy := r.activeRuns[conversationID]; busy {
		r.mu.Unlock()
		rc.Cancel()
		return nil, ErrRunActive
	}
	run.watcher = startWatcher(ro.Liveness, r.opts.WatchInterval, func() { run.cancel("disconnected") })
	r.activeRuns[conversationID] = run
	r.mu.Unlock()

	mem, md, err := r.store.Load(rc.Context(), conversationID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		mem, md = memory.New(r.opts.MemoryOptions...), session.Metadata{}
	case err != nil:
		err = fmt.Errorf("runner: load conversation %s: %w", conversationID, err)
		r.abort(run, err)
		return nil, err
	}

	work := mem.Clone()
	work.AddTask(prompt, ro.Images...)

	md = nextMetadata(md, prompt, ro.Labels)

	logger.Info("runner.run.start", "mode", ro.Mode.String(), "history_entries", mem.Len())
	r.opts.Metrics.RunStarted()

	steps := make(chan core.Step)
	agentDone := make(chan error, 1)

	var saveErr error

	emit := func(s core.Step) error {
		if _, final := s.(core.FinalAnswerStep); final && rc.Err() == nil {
			saveCtx := context.WithoutCancel(rc.Context())
			if err := r.store.Save(saveCtx, conversationID, work, md); err != nil {
				logger.Error("runner.run.save_failed", "error", err.Error())
				saveErr = fmt.Errorf("runner: save conversation %s: %w", conversationID, err)
			}
		}

		select {
		case steps <- s:
			run.steps.Add(1)
			return nil
		case <-rc.Done():
			return rc.Err()
		}
	}

	go func() {
		defer close(steps)
		agentDone <- r.agent.Run(rc.Context(), work, emit)
	}()

	coord := stream.NewCoordinator(stream.NewChanProducer(steps), r.opts.KeepaliveInterval, func(o *stream.CoordinatorOptions) {
		o.Logger = logger
		o.Metrics = r.opts.Metrics
	})

	go r.forward(run, coord.Run(rc.Context()))

	start := time.Now()

	go func() {
		runErr := <-agentDone
		if runErr == nil {
			runErr = saveErr
		}

		run.watcher.stop()
		<-run.streamDone

		if err := coord.Err(); err != nil && runErr == nil {
			runErr = err
		}

		r.release(run)
		rc.Cancel()

		outcome := Outcome(runErr)
		r.opts.Metrics.RunFinished(outcome, time.Since(start))

		if rl, ok := logger.(*logging.RunLogger); ok {
			var logErr error
			if outcome != OutcomeCompleted && outcome != OutcomeCancelled {
				logErr = runErr
			}
			rl.LogRun(outcome, int(run.steps.Load()), time.Since(start), logErr)
		} else {
			logger.Info("runner.run.end", "outcome", outcome, "step_count", run.steps.Load())
		}

		run.err = runErr
		close(run.done)
	}()

	return run, nil
}

// forward copies coordinator events to the run's public channel. After
// cancellation remaining events are dropped so the coordinator can finish.
func (r *Runner) forward(run *Run, in <-chan stream.Event) {
	defer close(run.streamDone)
	defer close(run.events)

	for ev := range in {
		select {
		case run.events <- ev:
		case <-run.rc.Done():
		}
	}
}

// CancelRun cancels the active run of a conversation. It returns true only
// when this call cancelled a running run; by then the liveness watcher has
// stopped and the event stream has been drained of its pending fetch.
func (r *Runner) CancelRun(conversationID string) bool {
	r.mu.Lock()
	run, ok := r.activeRuns[conversationID]
	r.mu.Unlock()

	if !ok || !run.cancel("requested") {
		return false
	}

	run.watcher.stop()
	<-run.streamDone

	return true
}

// abort ends a run that never started executing.
func (r *Runner) abort(run *Run, err error) {
	run.watcher.stop()
	r.release(run)
	run.rc.Cancel()

	close(run.events)
	close(run.streamDone)

	run.err = err
	close(run.done)
}

func (r *Runner) release(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeRuns[run.ConversationID] == run {
		delete(r.activeRuns, run.ConversationID)
	}
}

func (r *Runner) runLogger(conversationID, runID string) logging.Logger {
	if rl, ok := r.opts.Logger.(*logging.RunLogger); ok {
		return rl.WithComponent("runner").WithRun(conversationID, runID)
	}

	return r.opts.Logger
}

// Outcome classifies the error returned by Run.Wait.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case errors.Is(err, agent.ErrMaxSteps):
		return OutcomeMaxSteps
	default:
		return OutcomeFailed
	}
}

func nextMetadata(md session.Metadata, prompt string, labels map[string]string) session.Metadata {
	md.Turns++

	if md.Title == "" {
		md.Title = titleFrom(prompt)
	}

	if len(labels) > 0 {
		merged := make(map[string]string, len(md.Labels)+len(labels))
		for k, v := range md.Labels {
			merged[k] = v
		}
		for k, v := range labels {
			merged[k] = v
		}
		md.Labels = merged
	}

	return md
}

// titleFrom returns the first line of prompt, cut to maxTitleLen runes.
func titleFrom(prompt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	line = strings.TrimSpace(line)

	if utf8.RuneCountInString(line) <= maxTitleLen {
		return line
	}

	return string([]rune(line)[:maxTitleLen-1]) + "…"
}
