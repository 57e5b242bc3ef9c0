// Package catalog stores per-image metadata keyed by path.
package catalog

import (
	"context"

	"github.com/hyperjump/gazou/internal/models"
)

// Catalog persists image metadata records. The vector index remains the source
// of truth for which paths are searchable; the catalog only enriches results
// and feeds the random-sample and stats surfaces.
type Catalog interface {
	// Put inserts or replaces the record for its path.
	Put(ctx context.Context, rec *models.ImageRecord) error
	// Get returns the record for path, or an error if absent.
	Get(ctx context.Context, path string) (*models.ImageRecord, error)
	// Delete removes the record for path. Deleting an absent path is a no-op.
	Delete(ctx context.Context, path string) error
	// Paths returns all cataloged paths.
	Paths(ctx context.Context) ([]string, error)
	// Count returns the number of cataloged images.
	Count(ctx context.Context) (int, error)
	Close() error
}
