package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/stancld/rossum-agents-sub001/memory"
	"github.com/stancld/rossum-agents-sub001/session"
)

// MockStore is a testify mock of session.Store.
type MockStore struct {
	mock.Mock
}

var _ session.Store = (*MockStore)(nil)

// Save implements session.Store.
func (m *MockStore) Save(ctx context.Context, id string, mem *memory.AgentMemory, md session.Metadata) error {
	args := m.Called(ctx, id, mem, md)
	return args.Error(0)
}

// Load implements session.Store.
func (m *MockStore) Load(ctx context.Context, id string) (*memory.AgentMemory, session.Metadata, error) {
	args := m.Called(ctx, id)

	mem, _ := args.Get(0).(*memory.AgentMemory)
	md, _ := args.Get(1).(session.Metadata)

	return mem, md, args.Error(2)
}

// Delete implements session.Store.
func (m *MockStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
