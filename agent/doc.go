// Package agent contains the turn loop that drives one run: it asks the
// model for the next action, executes the requested tools, records every
// iteration in memory and emits the run's steps.
//
// Execution model:
//   - Each iteration sends the materialized memory plus the tools visible to
//     the run (core tools and loaded categories) to the model
//   - Model deltas are emitted as Thinking and TextDelta steps while they
//     stream
//   - Tool calls of one response run in parallel under a limit and their
//     results keep the order of the calls
//   - The loop ends with exactly one FinalAnswer or Error step, except on
//     cancellation, which ends it silently
//
// The loop only appends to the memory it is given. Deciding whether a turn
// is kept is the caller's job.
package agent
