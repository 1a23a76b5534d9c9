// Package model defines the provider-agnostic abstractions for talking to a
// language model endpoint.
//
// A Model streams Response chunks over a channel and reports at most one
// error on a second channel. Request carries the system prompt blocks, the
// conversation, the tool definitions and prompt cache hints. Send drains a
// generation and returns the final Response.
//
// Providers live in the anthropic and openai subpackages. MockModel is a
// scripted in-memory implementation for tests.
package model
