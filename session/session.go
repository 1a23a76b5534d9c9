package session

import (
	"context"
	"errors"
	"time"

	"github.com/stancld/rossum-agents-sub001/memory"
)

// ErrNotFound is returned by Load when no memory is stored for the id.
var ErrNotFound = errors.New("conversation not found")

// Metadata describes a stored conversation.
type Metadata struct {
	Title     string            `json:"title,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Turns     int               `json:"turns"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store is the chat store contract. Implementations copy on write and on
// read: callers never share a memory with the store.
type Store interface {
	Save(ctx context.Context, id string, mem *memory.AgentMemory, md Metadata) error
	Load(ctx context.Context, id string) (*memory.AgentMemory, Metadata, error)
	Delete(ctx context.Context, id string) error
}

// Options configures the stores in this package.
type Options struct {
	// MemoryOptions are applied to every memory returned by Load.
	MemoryOptions []memory.Option
	now           func() time.Time
}

func buildOptions(optFns []func(o *Options)) Options {
	opts := Options{now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}

	return opts
}

func cloneMetadata(md Metadata) Metadata {
	if md.Labels != nil {
		labels := make(map[string]string, len(md.Labels))
		for k, v := range md.Labels {
			labels[k] = v
		}
		md.Labels = labels
	}

	return md
}
