// Package session persists conversation memory between runs.
//
// A Store keeps one AgentMemory per conversation id together with a small
// Metadata record. Runs load the memory at start and save it only after a
// successful final answer, so a cancelled or failed turn never reaches the
// store. InMemoryStore suits tests and single-process demos; SQLiteStore is
// the durable backend.
package session
