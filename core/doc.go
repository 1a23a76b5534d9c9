// Package core holds the types shared by every layer of the run engine: the
// Step union streamed to callers, the content parts exchanged with models,
// the per-run RequestContext and the ToolContext handed to tools.
//
// A RequestContext travels inside the run's context.Context. Code invoked
// during a run resolves it with RequestContextFrom or CurrentRequestContext
// instead of reading process globals, so concurrent runs never observe each
// other's state.
package core
