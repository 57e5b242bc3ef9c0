package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/gazou/internal/models"
)

// MemoryCatalog implements Catalog in memory. Used when no database path is
// configured; contents are lost on restart, which is fine because saved
// systems carry their records in the index sidecar.
type MemoryCatalog struct {
	mu      sync.RWMutex
	records map[string]models.ImageRecord
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{records: make(map[string]models.ImageRecord)}
}

// Put inserts or replaces the record for its path.
func (c *MemoryCatalog) Put(ctx context.Context, rec *models.ImageRecord) error {
	if rec.Path == "" {
		return fmt.Errorf("image record has no path")
	}
	if rec.IndexedAt.IsZero() {
		rec.IndexedAt = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.Path] = *rec
	return nil
}

// Get returns the record for path.
func (c *MemoryCatalog) Get(ctx context.Context, path string) (*models.ImageRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[path]
	if !ok {
		return nil, fmt.Errorf("image not found: %s", path)
	}
	out := rec
	return &out, nil
}

// Delete removes the record for path.
func (c *MemoryCatalog) Delete(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, path)
	return nil
}

// Paths returns all cataloged paths in sorted order.
func (c *MemoryCatalog) Paths(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	paths := make([]string, 0, len(c.records))
	for p := range c.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// Count returns the number of cataloged images.
func (c *MemoryCatalog) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records), nil
}

// Close is a no-op for MemoryCatalog.
func (c *MemoryCatalog) Close() error {
	return nil
}
