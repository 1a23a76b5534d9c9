package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stancld/rossum-agents-sub001/core"
)

func TestExecutor_LimitAndOrder(t *testing.T) {
	var inFlight, maxSeen atomic.Int32

	run := func(_ context.Context, call core.ToolCall) core.ToolResult {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxSeen.Load()
			if cur <= prev || maxSeen.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return core.ToolResult{Content: "r-" + call.ID}
	}

	calls := make([]core.ToolCall, 6)
	for i := range calls {
		calls[i] = core.ToolCall{ID: string(rune('a' + i)), Name: "t"}
	}

	results := NewExecutor(2, nil).Execute(context.Background(), calls, run)

	require.Len(t, results, 6)
	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.ToolCallID)
		assert.Equal(t, "r-"+calls[i].ID, r.Content)
	}
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}

func TestExecutor_RecoversPanics(t *testing.T) {
	calls := []core.ToolCall{{ID: "1", Name: "ok"}, {ID: "2", Name: "bad"}}

	results := NewExecutor(0, nil).Execute(context.Background(), calls, func(_ context.Context, c core.ToolCall) core.ToolResult {
		if c.Name == "bad" {
			panic("boom")
		}
		return core.ToolResult{Content: "fine"}
	})

	assert.False(t, results[0].IsError)
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Content, "boom")
	assert.Equal(t, "bad", results[1].Name)
}

func TestExecutor_SkipsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	results := NewExecutor(1, nil).Execute(ctx, []core.ToolCall{{ID: "1"}, {ID: "2"}}, func(context.Context, core.ToolCall) core.ToolResult {
		ran.Store(true)
		return core.ToolResult{}
	})

	assert.False(t, ran.Load())
	assert.True(t, results[0].IsError)
	assert.True(t, results[1].IsError)
}
