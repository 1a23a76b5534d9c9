package stream

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stancld/rossum-agents-sub001/core"
)

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()

	var out []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("stream did not end")
			return out
		}
	}
}

// scripted yields the given steps, each after its delay, then io.EOF.
type scripted struct {
	steps    []core.Step
	delays   []time.Duration
	calls    atomic.Int32
	inFlight atomic.Int32
	maxIn    atomic.Int32
}

func (p *scripted) Next(ctx context.Context) (core.Step, error) {
	n := int(p.calls.Add(1)) - 1

	cur := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		prev := p.maxIn.Load()
		if cur <= prev || p.maxIn.CompareAndSwap(prev, cur) {
			break
		}
	}

	if n >= len(p.steps) {
		return nil, io.EOF
	}

	if n < len(p.delays) && p.delays[n] > 0 {
		select {
		case <-time.After(p.delays[n]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return p.steps[n], nil
}

func TestCoordinator_KeepaliveBeforeDelayedStep(t *testing.T) {
	p := &scripted{
		steps:  []core.Step{core.ThinkingStep{StepNumber: 1, Text: "hmm"}},
		delays: []time.Duration{150 * time.Millisecond},
	}

	events := collect(t, NewCoordinator(p, 20*time.Millisecond).Run(context.Background()))

	require.GreaterOrEqual(t, len(events), 2)
	assert.True(t, events[0].Keepalive)

	last := events[len(events)-1]
	assert.False(t, last.Keepalive)
	assert.Equal(t, core.ThinkingStep{StepNumber: 1, Text: "hmm"}, last.Step)

	// One fetch for the step and one for io.EOF: keepalives never re-consume.
	assert.Equal(t, int32(2), p.calls.Load())
	assert.Equal(t, int32(1), p.maxIn.Load())
}

func TestCoordinator_PreservesOrder(t *testing.T) {
	var steps []core.Step
	for i := 1; i <= 6; i++ {
		steps = append(steps, core.TextDeltaStep{StepNumber: i, Text: "x"})
	}
	p := &scripted{
		steps:  steps,
		delays: []time.Duration{0, 40 * time.Millisecond, 0, 25 * time.Millisecond, 0, 60 * time.Millisecond},
	}

	events := collect(t, NewCoordinator(p, 10*time.Millisecond).Run(context.Background()))

	var numbers []int
	for _, ev := range events {
		if !ev.Keepalive {
			numbers = append(numbers, ev.Step.Number())
		}
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, numbers)
	assert.Equal(t, int32(1), p.maxIn.Load())
}

func TestCoordinator_NoKeepalivesWhenDisabled(t *testing.T) {
	p := &scripted{
		steps:  []core.Step{core.ThinkingStep{StepNumber: 1}},
		delays: []time.Duration{30 * time.Millisecond},
	}

	events := collect(t, NewCoordinator(p, 0).Run(context.Background()))
	require.Len(t, events, 1)
	assert.False(t, events[0].Keepalive)
}

func TestCoordinator_StopsAfterTerminalStep(t *testing.T) {
	p := &scripted{steps: []core.Step{
		core.FinalAnswerStep{StepNumber: 1, Text: "done"},
		core.TextDeltaStep{StepNumber: 2},
	}}

	events := collect(t, NewCoordinator(p, time.Second).Run(context.Background()))

	require.Len(t, events, 1)
	assert.Equal(t, core.KindFinalAnswer, events[0].Step.Kind())
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestCoordinator_CancelDrainsPendingFetch(t *testing.T) {
	var returned atomic.Bool
	p := ProducerFunc(func(ctx context.Context) (core.Step, error) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		returned.Store(true)
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	c := NewCoordinator(p, 10*time.Millisecond)
	ch := c.Run(ctx)

	time.AfterFunc(35*time.Millisecond, cancel)
	events := collect(t, ch)

	assert.True(t, returned.Load(), "channel closed before the fetch returned")
	for _, ev := range events {
		assert.True(t, ev.Keepalive)
	}
	assert.NoError(t, c.Err())
}

func TestCoordinator_ProducerError(t *testing.T) {
	boom := errors.New("boom")
	c := NewCoordinator(ProducerFunc(func(context.Context) (core.Step, error) {
		return nil, boom
	}), time.Second)

	events := collect(t, c.Run(context.Background()))
	assert.Empty(t, events)
	assert.ErrorIs(t, c.Err(), boom)
}

type ctxKey struct{}

func TestCoordinator_PropagatesContextValues(t *testing.T) {
	var seen atomic.Value
	p := ProducerFunc(func(ctx context.Context) (core.Step, error) {
		seen.Store(ctx.Value(ctxKey{}))
		return nil, io.EOF
	})

	ctx := context.WithValue(context.Background(), ctxKey{}, "run-7")
	collect(t, NewCoordinator(p, time.Second).Run(ctx))

	assert.Equal(t, "run-7", seen.Load())
}

func TestChanProducer(t *testing.T) {
	ch := make(chan core.Step, 2)
	ch <- core.ThinkingStep{StepNumber: 1}
	ch <- core.ErrorStep{StepNumber: 2, Message: "x"}
	close(ch)

	events := collect(t, NewCoordinator(NewChanProducer(ch), time.Second).Run(context.Background()))
	require.Len(t, events, 2)
	assert.Equal(t, core.KindError, events[1].Step.Kind())
}
