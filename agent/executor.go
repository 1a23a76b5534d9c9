package agent

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/logging"
)

// CallFunc executes one tool call. Failures are reported in the result.
type CallFunc func(ctx context.Context, call core.ToolCall) core.ToolResult

// Executor runs the tool calls of one model response. Calls run in parallel
// up to a limit, a panicking call becomes an error-flagged result, and
// results are returned in the order of the calls. A call that has not
// started when ctx is cancelled gets an error-flagged result without running.
type Executor struct {
	maxParallel int
	logger      logging.Logger
}

// NewExecutor creates an executor. maxParallel <= 0 means no limit.
func NewExecutor(maxParallel int, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &Executor{maxParallel: maxParallel, logger: logger}
}

// Execute runs calls with run and returns one result per call.
func (e *Executor) Execute(ctx context.Context, calls []core.ToolCall, run CallFunc) []core.ToolResult {
	n := len(calls)
	results := make([]core.ToolResult, n)

	if n == 0 {
		return results
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = e.executeSingle(ctx, calls[0], run)
		return results
	}

	limit := e.maxParallel
	if limit <= 0 || limit > n {
		limit = n
	}

	batchStart := time.Now()

	var g errgroup.Group
	g.SetLimit(limit)

	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.executeSingle(ctx, call, run)
			return nil
		})
	}

	_ = g.Wait()

	e.logger.Debug("agent.tools.batch.complete",
		"count", n,
		"parallelism", limit,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

func (e *Executor) executeSingle(ctx context.Context, call core.ToolCall, run CallFunc) (res core.ToolResult) {
	if err := ctx.Err(); err != nil {
		return core.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: "tool call cancelled", IsError: true}
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("agent.tool.panic", "tool_name", call.Name, "recover", r)
			res = core.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: fmt.Sprintf("tool %s panicked: %v", call.Name, r), IsError: true}
		}
	}()

	res = run(ctx, call)
	res.ToolCallID = call.ID
	res.Name = call.Name

	return res
}
