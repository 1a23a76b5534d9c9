package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// DiskStore writes files to <root>/<namespace>/<name>. Writes go to a
// temporary file first and are renamed into place.
type DiskStore struct {
	root string
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore creates the root directory if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}

	return &DiskStore{root: root}, nil
}

// Root returns the store root directory.
func (s *DiskStore) Root() string { return s.root }

func (s *DiskStore) path(namespace, name string) (string, error) {
	ns, name, err := cleanKey(namespace, name)
	if err != nil {
		return "", err
	}

	return filepath.Join(s.root, filepath.FromSlash(ns), name), nil
}

// Save implements Store. The returned location is the absolute file path
// when the root is absolute.
func (s *DiskStore) Save(_ context.Context, namespace, name string, data []byte) (string, error) {
	p, err := s.path(namespace, name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename artifact: %w", err)
	}

	return p, nil
}

// Get implements Store.
func (s *DiskStore) Get(_ context.Context, namespace, name string) ([]byte, error) {
	p, err := s.path(namespace, name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	return data, nil
}

// List implements Store. A namespace that was never written is empty.
func (s *DiskStore) List(_ context.Context, namespace string) ([]string, error) {
	ns, err := CleanNamespace(namespace)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, filepath.FromSlash(ns)))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) != ".tmp" {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

// Delete implements Store.
func (s *DiskStore) Delete(_ context.Context, namespace, name string) error {
	p, err := s.path(namespace, name)
	if err != nil {
		return err
	}

	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}

	return err
}
