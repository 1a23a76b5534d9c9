package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/stancld/rossum-agents-sub001/memory"
)

type record struct {
	data []byte
	md   Metadata
}

// InMemoryStore is a volatile Store backed by a process local map. Memories
// are kept in their JSON form so that no caller can mutate stored state.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]record
	opts    Options
}

// NewInMemoryStore constructs an empty in-memory chat store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	return &InMemoryStore{records: make(map[string]record), opts: buildOptions(optFns)}
}

// Save implements Store.
func (s *InMemoryStore) Save(_ context.Context, id string, mem *memory.AgentMemory, md Metadata) error {
	data, err := mem.MarshalJSON()
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", id, err)
	}

	md = cloneMetadata(md)
	md.UpdatedAt = s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[id] = record{data: data, md: md}

	return nil
}

// Load implements Store.
func (s *InMemoryStore) Load(_ context.Context, id string) (*memory.AgentMemory, Metadata, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()

	if !ok {
		return nil, Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	mem := memory.New(s.opts.MemoryOptions...)
	if err := mem.UnmarshalJSON(rec.data); err != nil {
		return nil, Metadata{}, fmt.Errorf("session: decode %s: %w", id, err)
	}

	return mem, cloneMetadata(rec.md), nil
}

// Delete implements Store. Deleting an unknown id is not an error.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)

	return nil
}

// Len returns the number of stored conversations.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}
