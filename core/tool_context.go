package core

import (
	"context"

	"github.com/stancld/rossum-agents-sub001/logging"
)

// ToolContext is handed to a tool for one call. It binds the call id to the
// run's RequestContext and the context the call runs under.
type ToolContext struct {
	ctx      context.Context
	rc       *RequestContext
	callID   string
	toolName string

	*loggerAdapter
}

// NewToolContext creates a ToolContext for one call. The RequestContext is
// resolved from ctx; a detached default is used when none is attached.
func NewToolContext(ctx context.Context, callID, toolName string) *ToolContext {
	rc := CurrentRequestContext(ctx)
	if _, ok := RequestContextFrom(ctx); !ok {
		ctx = rc.Context()
	}

	return &ToolContext{
		ctx:           ctx,
		rc:            rc,
		callID:        callID,
		toolName:      toolName,
		loggerAdapter: newLoggerAdapter(rc.Logger()),
	}
}

// Context returns the context associated with the call.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RequestContext returns the run the call belongs to.
func (tc *ToolContext) RequestContext() *RequestContext { return tc.rc }

// CallID returns the model-assigned tool call id.
func (tc *ToolContext) CallID() string { return tc.callID }

// ToolName returns the name of the tool being called.
func (tc *ToolContext) ToolName() string { return tc.toolName }

// Logger returns the run logger.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }
