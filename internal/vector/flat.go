package vector

import (
	"fmt"

	"github.com/hyperjump/gazou/internal/models"
)

// FlatIndex is an exact brute-force inner product index. Every query scores
// every stored vector, so results are exact. Suitable for small and medium
// collections.
type FlatIndex struct {
	store
}

// NewFlatIndex creates an empty flat index with the given dimension.
func NewFlatIndex(dim int) (*FlatIndex, error) {
	s, err := newStore(dim)
	if err != nil {
		return nil, err
	}
	return &FlatIndex{store: s}, nil
}

// Add appends vectors with their paths and optional metadata.
func (f *FlatIndex) Add(vectors [][]float32, paths []string, meta []models.ImageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.appendVectors(vectors, paths, meta)
	return err
}

// Search returns the topK vectors by inner product.
func (f *FlatIndex) Search(query []float32, topK int) ([]Result, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dim)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if topK <= 0 || len(f.vectors) == 0 || L2Norm(query) < zeroNormEps {
		return nil, nil
	}
	return f.bruteForce(query, nil, topK), nil
}

// Save writes the index to prefix.vec and prefix_metadata.gob.
func (f *FlatIndex) Save(prefix string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	file, err := f.openVecFile(prefix, IndexTypeFlat)
	if err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	return f.writeSidecar(prefix, IndexTypeFlat)
}

// Load replaces the index contents from the artifacts at prefix.
func (f *FlatIndex) Load(prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := f.loadVecFile(prefix, IndexTypeFlat)
	if err != nil {
		return err
	}
	return file.Close()
}

// Stats reports index counters.
func (f *FlatIndex) Stats() models.IndexStats {
	return f.stats(IndexTypeFlat)
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() IndexType {
	return IndexTypeFlat
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}
