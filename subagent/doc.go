// Package subagent runs bounded, self-contained tool loops on behalf of a
// parent run.
//
// A sub-agent gets a prompt, its own system prompt and tool set, and a hard
// iteration limit. It never fails the parent: every problem (model error,
// exhausted iterations, cancellation) is folded into a degraded Result whose
// Analysis is still usable as a tool result. Token usage and phase progress
// are reported through the parent's RequestContext callbacks.
package subagent
