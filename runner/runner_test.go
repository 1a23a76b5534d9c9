package runner

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stancld/rossum-agents-sub001/agent"
	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/internal/testutil"
	"github.com/stancld/rossum-agents-sub001/memory"
	"github.com/stancld/rossum-agents-sub001/model"
	"github.com/stancld/rossum-agents-sub001/session"
	"github.com/stancld/rossum-agents-sub001/stream"
	"github.com/stancld/rossum-agents-sub001/tool"
)

// blockingModel never answers until its request context is cancelled.
func blockingModel() *model.MockModel {
	m := model.NewMockModel("mock", "test")
	m.SetHandler(func(ctx context.Context, _ model.Request) (model.Response, error) {
		<-ctx.Done()
		return model.Response{}, ctx.Err()
	})
	return m
}

func newRunner(t *testing.T, m model.Model, store session.Store, optFns ...func(o *Options)) *Runner {
	t.Helper()

	reg := tool.NewRegistry()
	reg.MustRegister(tool.NewFunctionTool("whoami", "Return the conversation id", nil,
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			return tc.RequestContext().ConversationID(), nil
		},
		func(o *tool.FunctionOptions) { o.ReadOnly = true },
	))

	a := agent.New(m, reg, func(o *agent.Options) { o.EnableStreaming = false })

	base := func(o *Options) {
		o.OutputRoot = t.TempDir()
		o.WatchInterval = 10 * time.Millisecond
		o.KeepaliveInterval = 0
	}

	return New(a, store, append([]func(o *Options){base}, optFns...)...)
}

func drain(t *testing.T, run *Run) []core.Step {
	t.Helper()

	var steps []core.Step

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-run.Events():
			if !ok {
				return steps
			}
			if !ev.Keepalive {
				steps = append(steps, ev.Step)
			}
		case <-timeout:
			t.Fatal("run did not finish")
			return nil
		}
	}
}

func TestStartRun_CompletesAndPersists(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(
		model.ToolCallResponse("", core.ToolCall{ID: "c1", Name: "whoami"}),
		model.TextResponse("You are conv-1."),
	)

	store := session.NewInMemoryStore()
	r := newRunner(t, m, store)

	run, err := r.StartRun(context.Background(), "conv-1", "Who am I?\nPlease answer briefly.")
	require.NoError(t, err)

	steps := drain(t, run)
	require.NoError(t, run.Wait())

	assert.Equal(t, core.KindFinalAnswer, steps[len(steps)-1].Kind())
	assert.False(t, r.Active("conv-1"))

	var result core.ToolResultStep
	for _, s := range steps {
		if rs, ok := s.(core.ToolResultStep); ok {
			result = rs
		}
	}
	require.Len(t, result.Results, 1)
	assert.Equal(t, "conv-1", result.Results[0].Content)

	mem, md, err := store.Load(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 3, mem.Len())
	assert.Equal(t, 1, md.Turns)
	assert.Equal(t, "Who am I?", md.Title)
}

func TestStartRun_ContinuesConversation(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.TextResponse("first"), model.TextResponse("second"))

	store := session.NewInMemoryStore()
	r := newRunner(t, m, store)

	for _, prompt := range []string{"one", "two"} {
		run, err := r.StartRun(context.Background(), "conv", prompt)
		require.NoError(t, err)
		drain(t, run)
		require.NoError(t, run.Wait())
	}

	second := m.Calls()[1]
	require.Len(t, second.Contents, 3)
	assert.Equal(t, "one", second.Contents[0].Text())
	assert.Equal(t, "first", second.Contents[1].Text())
	assert.Equal(t, "two", second.Contents[2].Text())

	_, md, err := store.Load(context.Background(), "conv")
	require.NoError(t, err)
	assert.Equal(t, 2, md.Turns)
	assert.Equal(t, "one", md.Title)
}

func TestStartRun_CollapsesStoredHistory(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.TextResponse("ok"))

	store := session.NewInMemoryStore()
	history := testutil.NewMemoryBuilder().
		Task("show the schema").
		ToolStep("get_schema", "c1", `{"v":1}`).
		ToolStep("get_schema", "c2", `{"v":2}`).
		Answer("Here it is.").
		Build()
	require.NoError(t, store.Save(context.Background(), "conv", history, session.Metadata{Title: "show the schema", Turns: 1}))

	r := newRunner(t, m, store)

	run, err := r.StartRun(context.Background(), "conv", "and now?")
	require.NoError(t, err)
	drain(t, run)
	require.NoError(t, run.Wait())

	results := map[string]string{}
	for _, c := range m.Calls()[0].Contents {
		for _, p := range c.Parts {
			if tr, ok := p.(core.ToolResult); ok {
				results[tr.ToolCallID] = tr.Content
			}
		}
	}
	assert.Equal(t, memory.CollapsedPlaceholder, results["c1"])
	assert.Equal(t, `{"v":2}`, results["c2"])

	stored, md, err := store.Load(context.Background(), "conv")
	require.NoError(t, err)
	assert.Equal(t, 2, md.Turns)
	assert.Equal(t, "show the schema", md.Title)
	assert.Equal(t, history.Len()+2, stored.Len())
}

func TestStartRun_RejectsSecondActiveRun(t *testing.T) {
	r := newRunner(t, blockingModel(), nil)

	run, err := r.StartRun(context.Background(), "conv", "hello")
	require.NoError(t, err)

	_, err = r.StartRun(context.Background(), "conv", "again")
	assert.ErrorIs(t, err, ErrRunActive)

	require.True(t, r.CancelRun("conv"))
	drain(t, run)
	assert.ErrorIs(t, run.Wait(), context.Canceled)
}

func TestStartRun_Validation(t *testing.T) {
	r := newRunner(t, blockingModel(), nil)

	_, err := r.StartRun(context.Background(), "", "hello")
	assert.Error(t, err)

	_, err = r.StartRun(context.Background(), "conv", "   ")
	assert.Error(t, err)
}

func TestStartRun_LoadFailure(t *testing.T) {
	store := &testutil.MockStore{}
	store.On("Load", mock.Anything, "conv").Return(nil, session.Metadata{}, errors.New("disk on fire"))

	r := newRunner(t, blockingModel(), store)

	_, err := r.StartRun(context.Background(), "conv", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.False(t, r.Active("conv"))
}

func TestConcurrentRuns_AreIsolated(t *testing.T) {
	r := newRunner(t, blockingModel(), nil)

	a, err := r.StartRun(context.Background(), "conv-a", "hello")
	require.NoError(t, err)

	b, err := r.StartRun(context.Background(), "conv-b", "hello")
	require.NoError(t, err)

	dirA, err := a.OutputDir()
	require.NoError(t, err)
	dirB, err := b.OutputDir()
	require.NoError(t, err)

	assert.NotEqual(t, dirA, dirB)
	assert.DirExists(t, dirA)
	assert.DirExists(t, dirB)
	assert.NotSame(t, a.RequestContext(), b.RequestContext())

	require.True(t, r.CancelRun("conv-a"))
	drain(t, a)
	assert.ErrorIs(t, a.Wait(), context.Canceled)

	assert.NoError(t, b.RequestContext().Err())
	assert.True(t, r.Active("conv-b"))

	require.True(t, r.CancelRun("conv-b"))
	drain(t, b)
	assert.ErrorIs(t, b.Wait(), context.Canceled)
}

func TestCancelRun_DrainsWatcherAndFetch(t *testing.T) {
	var checks atomic.Int32
	live := LivenessFunc(func() bool {
		checks.Add(1)
		return true
	})

	store := &testutil.MockStore{}
	store.On("Load", mock.Anything, "conv").Return(nil, session.Metadata{}, session.ErrNotFound)

	r := newRunner(t, blockingModel(), store)

	run, err := r.StartRun(context.Background(), "conv", "hello", func(o *RunOptions) { o.Liveness = live })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return checks.Load() > 0 }, time.Second, 5*time.Millisecond)

	require.True(t, r.CancelRun("conv"))

	// The event stream is closed as soon as CancelRun returns.
	select {
	case _, ok := <-run.Events():
		assert.False(t, ok)
	default:
		t.Fatal("event stream still open after CancelRun")
	}

	seen := checks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, seen, checks.Load(), "watcher kept polling")

	assert.False(t, r.CancelRun("conv"))
	assert.ErrorIs(t, run.Wait(), context.Canceled)

	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWatcher_CancelsDisconnectedRun(t *testing.T) {
	var connected atomic.Bool
	connected.Store(true)

	store := session.NewInMemoryStore()
	r := newRunner(t, blockingModel(), store)

	run, err := r.StartRun(context.Background(), "conv", "hello", func(o *RunOptions) {
		o.Liveness = LivenessFunc(connected.Load)
	})
	require.NoError(t, err)

	connected.Store(false)

	drain(t, run)
	assert.ErrorIs(t, run.Wait(), context.Canceled)
	assert.False(t, r.CancelRun("conv"))

	_, _, err = store.Load(context.Background(), "conv")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestStartRun_ParentContextCancels(t *testing.T) {
	r := newRunner(t, blockingModel(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	run, err := r.StartRun(ctx, "conv", "hello")
	require.NoError(t, err)

	cancel()

	drain(t, run)
	assert.ErrorIs(t, run.Wait(), context.Canceled)
	assert.False(t, r.Active("conv"))
}

func TestStartRun_SaveFailureIsReported(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.TextResponse("done"))

	store := &testutil.MockStore{}
	store.On("Load", mock.Anything, "conv").Return(nil, session.Metadata{}, session.ErrNotFound)
	store.On("Save", mock.Anything, "conv", mock.AnythingOfType("*memory.AgentMemory"), mock.Anything).
		Return(errors.New("read-only database"))

	r := newRunner(t, m, store)

	run, err := r.StartRun(context.Background(), "conv", "hello")
	require.NoError(t, err)

	steps := drain(t, run)
	assert.Equal(t, core.KindFinalAnswer, steps[len(steps)-1].Kind())

	err = run.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only database")
	store.AssertExpectations(t)
}

func TestStartRun_UsesMemoryOptionsForNewConversations(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.TextResponse("ok"))

	store := session.NewInMemoryStore(func(o *session.Options) {
		o.MemoryOptions = []memory.Option{memory.WithCollapsibleTools("whoami")}
	})

	r := newRunner(t, m, store, func(o *Options) {
		o.MemoryOptions = []memory.Option{memory.WithCollapsibleTools("whoami")}
	})

	run, err := r.StartRun(context.Background(), "conv", "hello")
	require.NoError(t, err)
	drain(t, run)
	require.NoError(t, run.Wait())

	mem, _, err := store.Load(context.Background(), "conv")
	require.NoError(t, err)
	assert.Equal(t, []string{"whoami"}, mem.CollapsibleTools())
}

func TestStartRun_EmitsKeepalives(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.SetHandler(func(ctx context.Context, _ model.Request) (model.Response, error) {
		select {
		case <-time.After(80 * time.Millisecond):
			return model.TextResponse("slow answer"), nil
		case <-ctx.Done():
			return model.Response{}, ctx.Err()
		}
	})

	r := newRunner(t, m, nil, func(o *Options) { o.KeepaliveInterval = 10 * time.Millisecond })

	run, err := r.StartRun(context.Background(), "conv", "hello")
	require.NoError(t, err)

	var events []stream.Event
	for ev := range run.Events() {
		events = append(events, ev)
	}
	require.NoError(t, run.Wait())

	require.NotEmpty(t, events)
	assert.True(t, events[0].Keepalive)
	assert.Equal(t, core.KindFinalAnswer, events[len(events)-1].Step.Kind())
}

func TestTitleFrom(t *testing.T) {
	assert.Equal(t, "short", titleFrom("  short  \nsecond line"))

	long := titleFrom(strings.Repeat("á", 100))
	assert.Len(t, []rune(long), maxTitleLen)
	assert.True(t, strings.HasSuffix(long, "…"))
}
