package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/stancld/rossum-agents-sub001/core"
	"github.com/stancld/rossum-agents-sub001/internal/util"
)

// FunctionOptions configures a FunctionTool.
type FunctionOptions struct {
	// Category groups the tool for dynamic loading. Empty means core tool.
	Category string
	// ReadOnly marks the tool as free of side effects.
	ReadOnly bool
}

// FunctionTool exposes a plain Go function as a Tool.
//
// The parameter schema is compiled once at construction and every call is
// validated against it. Errors are normalized to *ToolError:
//
//	VALIDATION_ERROR -> arguments do not match the schema
//	EXECUTION_ERROR  -> the function returned a plain error
//
// A *ToolError returned by the function is passed through unchanged.
// A FunctionTool has no mutable state and is safe for concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)
	opts        FunctionOptions

	schema    *jsonschema.Schema
	schemaErr error
}

// NewFunctionTool constructs a FunctionTool from an explicit schema.
//
// Example:
//
//	getQueue := NewFunctionTool(
//	  "get_queue",
//	  "Fetch a queue by id",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "queue_id": map[string]any{"type": "integer"},
//	    },
//	    "required": []string{"queue_id"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return client.GetQueue(tc.Context(), int(args["queue_id"].(float64)))
//	  },
//	  func(o *FunctionOptions) { o.ReadOnly = true },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionOptions),
) *FunctionTool {
	var opts FunctionOptions
	for _, f := range optFns {
		f(&opts)
	}

	schema, err := CompileSchema(name, parameters)

	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
		opts:        opts,
		schema:      schema,
		schemaErr:   err,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct with
// util.CreateSchema.
//
// Example:
//
//	type UpdateTaskArgs struct {
//	  TaskID string `json:"task_id" description:"Task to update"`
//	  Status string `json:"status,omitempty" enum:"pending,in_progress,completed"`
//	}
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionOptions),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// Name implements Tool.
func (t *FunctionTool) Name() string { return t.name }

// Description implements Tool.
func (t *FunctionTool) Description() string { return t.description }

// Parameters implements Tool.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Category implements Categorized.
func (t *FunctionTool) Category() string { return t.opts.Category }

// ReadOnly implements ReadOnlyer.
func (t *FunctionTool) ReadOnly() bool { return t.opts.ReadOnly }

// SchemaErr reports whether the parameter schema failed to compile.
func (t *FunctionTool) SchemaErr() error { return t.schemaErr }

// Call validates args and invokes the function.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "call_id", toolCtx.CallID())

	if t.schemaErr != nil {
		return nil, &ToolError{Tool: t.name, Message: t.schemaErr.Error(), Code: CodeValidation}
	}

	if err := validateArgs(t.schema, args); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	logger.Debug("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
