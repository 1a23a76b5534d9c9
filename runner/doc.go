// Package runner owns the lifecycle of agent runs.
//
// A Runner starts at most one run per conversation. Each run gets its own
// core.RequestContext (credentials, output location, callbacks, task
// tracker, loaded tool categories) carried by the run's context.Context,
// so concurrent runs in one process never see each other's state.
//
// # Lifecycle
//
//  1. StartRun loads the conversation memory from the chat store (a missing
//     conversation starts empty) and appends the new task to a private copy.
//  2. The agent loop runs in its own goroutine and emits steps into a
//     stream.Coordinator, which interleaves keepalives while the loop is
//     silent.
//  3. When the loop produces its final answer, the copy is saved back to
//     the store before the final step is delivered.
//  4. CancelRun, a failed liveness probe, or cancellation of the StartRun
//     context ends the run. The in-progress turn is discarded and nothing is
//     saved.
//
// Callers must drain Run.Events until it is closed; Run.Wait then reports
// the outcome.
package runner
