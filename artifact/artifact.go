package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when no file exists under the namespace / name pair.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidName is returned for names that would escape the namespace.
	ErrInvalidName = errors.New("invalid artifact name")
)

// Store persists output files. Implementations copy data on write and read.
type Store interface {
	// Save stores (or overwrites) data and returns a location reference.
	Save(ctx context.Context, namespace, name string, data []byte) (string, error)
	Get(ctx context.Context, namespace, name string) ([]byte, error)
	// List returns the names stored in namespace, sorted.
	List(ctx context.Context, namespace string) ([]string, error)
	Delete(ctx context.Context, namespace, name string) error
}

// CleanName validates a plain file name. Directory components, "." and
// ".." are rejected.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q must not contain path separators", ErrInvalidName, name)
	}

	return name, nil
}

// CleanNamespace normalizes a slash separated namespace and rejects one that
// is empty, absolute or climbs out of the store root.
func CleanNamespace(ns string) (string, error) {
	if ns == "" || strings.HasPrefix(ns, "/") {
		return "", fmt.Errorf("%w: namespace %q", ErrInvalidName, ns)
	}

	clean := path.Clean(ns)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: namespace %q", ErrInvalidName, ns)
	}

	return clean, nil
}
