// Package tool implements the tool calling subsystem: the Tool contract,
// FunctionTool adapters, the Registry that validates schemas at startup and
// dispatches calls by name, and the Catalog of dynamically loadable tool
// categories.
package tool

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stancld/rossum-agents-sub001/core"
)

// Tool is a capability the model can call by name.
//
// Implementations must be safe for concurrent use: the agent runs the calls
// of one model response in parallel.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description is shown to the model to decide when to call the tool.
	Description() string

	// Parameters returns the JSON schema of the arguments object.
	Parameters() map[string]any

	// Call executes the tool. Arguments have been decoded from JSON.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Categorized is implemented by tools that belong to a dynamically loaded
// category. Tools without a category are always offered to the model.
type Categorized interface {
	Category() string
}

// ReadOnlyer is implemented by tools that declare whether they have side
// effects. Tools that do not implement it are treated as writing.
type ReadOnlyer interface {
	ReadOnly() bool
}

// CategoryOf returns the tool's category, or "" for core tools.
func CategoryOf(t Tool) string {
	if c, ok := t.(Categorized); ok {
		return c.Category()
	}
	return ""
}

// IsReadOnly reports whether t may run in core.ReadOnly mode.
func IsReadOnly(t Tool) bool {
	if r, ok := t.(ReadOnlyer); ok {
		return r.ReadOnly()
	}
	return false
}

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeMode       = "MODE_ERROR"
	CodeNotLoaded  = "CATEGORY_NOT_LOADED"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// UnknownToolError is returned when a call names a tool that is not registered.
type UnknownToolError struct {
	Name      string
	Available []string
}

func (e *UnknownToolError) Error() string {
	avail := append([]string(nil), e.Available...)
	sort.Strings(avail)

	return fmt.Sprintf("unknown tool %q (available: %s)", e.Name, strings.Join(avail, ", "))
}
