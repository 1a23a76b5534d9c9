package tool

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// CategoryInfo describes one dynamically loadable tool category.
type CategoryInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tools       []string `json:"tools"`
}

// CatalogLoader fetches the current category list.
type CatalogLoader func(ctx context.Context) ([]CategoryInfo, error)

type catalogSnapshot struct {
	categories []CategoryInfo
	loadedAt   time.Time
}

// Catalog caches the category list for a TTL. Readers never block each
// other: a stale snapshot triggers a reload by whichever caller sees it, and
// concurrent callers may reload redundantly. When a reload fails and a stale
// snapshot exists, the stale snapshot is served.
type Catalog struct {
	load CatalogLoader
	ttl  time.Duration
	now  func() time.Time

	snap atomic.Pointer[catalogSnapshot]
}

// NewCatalog creates a catalog over load. A ttl <= 0 reloads on every call.
func NewCatalog(load CatalogLoader, ttl time.Duration) *Catalog {
	return &Catalog{load: load, ttl: ttl, now: time.Now}
}

// Get returns the cached categories, reloading when stale.
func (c *Catalog) Get(ctx context.Context) ([]CategoryInfo, error) {
	cur := c.snap.Load()
	if cur != nil && c.ttl > 0 && c.now().Sub(cur.loadedAt) < c.ttl {
		return cur.categories, nil
	}

	cats, err := c.load(ctx)
	if err != nil {
		if cur != nil {
			return cur.categories, nil
		}
		return nil, fmt.Errorf("load tool catalog: %w", err)
	}

	c.snap.Store(&catalogSnapshot{categories: cats, loadedAt: c.now()})

	return cats, nil
}

// Invalidate drops the cached snapshot.
func (c *Catalog) Invalidate() { c.snap.Store(nil) }

// Describe renders the catalog as a bullet list for prompts and tool
// descriptions.
func (c *Catalog) Describe(ctx context.Context) (string, error) {
	cats, err := c.Get(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, cat := range cats {
		fmt.Fprintf(&b, "- %s", cat.Name)
		if cat.Description != "" {
			fmt.Fprintf(&b, ": %s", cat.Description)
		}
		fmt.Fprintf(&b, " (%s)\n", strings.Join(cat.Tools, ", "))
	}

	return b.String(), nil
}
