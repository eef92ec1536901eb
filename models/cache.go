// Package models resolves chain model references to loaded inference handles
// and provides the file based loader and the external command upscaler.
package models

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
)

// Cache maps absolute model paths to loaded handles for one run.  Entries are
// never evicted or replaced.  Loads run without the lock held; when two
// callers race on the same path the first committed handle wins and both
// callers receive it.
type Cache struct {
	root   string
	loader core.ModelLoader

	mu      sync.RWMutex
	entries map[string]core.Model
}

// NewCache returns an empty cache resolving relative paths against root.
func NewCache(root string, loader core.ModelLoader) *Cache {
	return &Cache{root: root, loader: loader, entries: make(map[string]core.Model)}
}

// Resolve returns the absolute path a chain model reference points at.
func (c *Cache) Resolve(rel string) (string, error) {
	p := rel
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.root, rel)
	}
	return filepath.Abs(p)
}

// Get returns the handle for the model referenced by rel, loading it on first
// use.  A "No Model" or empty reference yields (nil, nil).  A reference to a
// file that does not exist yields an error wrapping ErrModelNotFound.
func (c *Cache) Get(ctx context.Context, rel string) (core.Model, error) {
	if rel == "" || rel == core.NoModel {
		return nil, nil
	}
	abs, err := c.Resolve(rel)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryModel, "models.resolve", err)
	}

	c.mu.RLock()
	m, ok := c.entries[abs]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	if _, err := os.Stat(abs); err != nil {
		return nil, apperrors.New(apperrors.CategoryModel, "models.get",
			fmt.Errorf("%w: %s", apperrors.ErrModelNotFound, abs))
	}

	loaded, err := c.loader.Load(ctx, abs)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryModel, "models.load", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[abs]; ok {
		return existing, nil
	}
	c.entries[abs] = loaded
	return loaded, nil
}

// Len returns the number of loaded models.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Paths returns the absolute paths of all loaded models.
func (c *Cache) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for p := range c.entries {
		out = append(out, p)
	}
	return out
}
