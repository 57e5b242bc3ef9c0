// Package vector provides vector index structures and similarity search.
package vector

import (
	"fmt"

	"github.com/hyperjump/gazou/internal/models"
)

// IndexType selects the index structure. It is fixed at construction.
type IndexType string

const (
	// IndexTypeFlat is exact brute-force inner product search. No training step.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeIVF partitions vectors into clusters and probes only the nearest
	// clusters at search time. Trains lazily on the first Add call. Approximate.
	IndexTypeIVF IndexType = "ivf"
	// IndexTypeHNSW searches a multi-layer proximity graph. No training step. Approximate.
	IndexTypeHNSW IndexType = "hnsw"
)

// Result is a single search hit. ID is the insertion-order integer id,
// Path the image path registered with it. Score is the raw inner product
// (cosine similarity for unit vectors), not clamped.
type Result struct {
	ID    int64
	Path  string
	Score float32
}

// Index stores unit-normalized vectors keyed by sequential integer ids and
// answers top-k inner-product search. Ids start at zero, follow insertion
// order, and are never reused. Implementations re-normalize on Add, so
// passing already-normalized vectors is harmless.
type Index interface {
	// Add appends vectors with their parallel paths and optional metadata
	// (meta may be nil or shorter than vectors). Ids continue from the
	// current total.
	Add(vectors [][]float32, paths []string, meta []models.ImageRecord) error
	// Search returns up to topK hits ordered by descending score. An empty
	// index or a zero-norm query yields an empty result, not an error.
	Search(query []float32, topK int) ([]Result, error)
	// PathOf resolves an id to the path it was inserted with.
	PathOf(id int64) (string, bool)
	// MetadataOf resolves an id to the metadata it was inserted with.
	MetadataOf(id int64) (models.ImageRecord, bool)
	// Save writes the vector structure to prefix.vec and the sidecar to
	// prefix_metadata.gob.
	Save(prefix string) error
	// Load replaces the index contents from the artifacts at prefix.
	// Missing files are an error. Load never merges.
	Load(prefix string) error
	Stats() models.IndexStats
	Dimensions() int
	Type() IndexType
	Close() error
}

// New creates an empty index of the given type and dimension.
func New(indexType string, dim int) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		return NewFlatIndex(dim)
	case IndexTypeIVF:
		return NewIVFIndex(dim)
	case IndexTypeHNSW:
		return NewHNSWIndex(dim)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, ivf, hnsw)", indexType)
	}
}

// Open reads the sidecar at prefix to discover the persisted index type,
// constructs an index of that type, and loads it.
func Open(prefix string) (Index, error) {
	side, err := readSidecar(prefix)
	if err != nil {
		return nil, err
	}
	idx, err := New(side.IndexType, side.Dim)
	if err != nil {
		return nil, fmt.Errorf("open index at %s: %w", prefix, err)
	}
	if err := idx.Load(prefix); err != nil {
		return nil, err
	}
	return idx, nil
}
