// Package memory holds AgentMemory, the ordered log of TaskStep and
// MemoryStep entries that makes up a conversation.
//
// WriteToMessages is a pure function of the stored entries and the
// collapsible tool set: only the most recent result of each collapsible
// tool keeps its content, older ones are replaced with CollapsedPlaceholder
// in the returned view while the stored steps keep the full output.
package memory
