package artifact

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is an in-process Store for tests and single-process use.
// Data is copied on save and retrieval.
//
// Layout: namespace -> name -> raw bytes
type InMemoryStore struct {
	mu    sync.RWMutex
	files map[string]map[string][]byte
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{files: make(map[string]map[string][]byte)}
}

// Save implements Store. The returned location has the form mem://<namespace>/<name>.
func (a *InMemoryStore) Save(_ context.Context, namespace, name string, data []byte) (string, error) {
	ns, name, err := cleanKey(namespace, name)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.files[ns]; !exists {
		a.files[ns] = make(map[string][]byte)
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	a.files[ns][name] = cp

	return "mem://" + ns + "/" + name, nil
}

// Get returns a copy of the stored bytes or ErrNotFound.
func (a *InMemoryStore) Get(_ context.Context, namespace, name string) ([]byte, error) {
	ns, name, err := cleanKey(namespace, name)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	data, ok := a.files[ns][name]
	if !ok {
		return nil, ErrNotFound
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	return cp, nil
}

// List implements Store.
func (a *InMemoryStore) List(_ context.Context, namespace string) ([]string, error) {
	ns, err := CleanNamespace(namespace)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.files[ns]))
	for n := range a.files[ns] {
		names = append(names, n)
	}

	sort.Strings(names)

	return names, nil
}

// Delete removes the file or returns ErrNotFound.
func (a *InMemoryStore) Delete(_ context.Context, namespace, name string) error {
	ns, name, err := cleanKey(namespace, name)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.files[ns][name]; !ok {
		return ErrNotFound
	}

	delete(a.files[ns], name)

	return nil
}

func cleanKey(namespace, name string) (string, string, error) {
	ns, err := CleanNamespace(namespace)
	if err != nil {
		return "", "", err
	}

	name, err = CleanName(name)
	if err != nil {
		return "", "", err
	}

	return ns, name, nil
}
