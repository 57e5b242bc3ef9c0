package encoder

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// MockEncoder is a deterministic encoder for tests and demo mode. Text maps to
// a normalized sum of per-word hash vectors; images map to the same projection
// of their filename stem, so "cat.jpg" and the query "cat" land on the same
// direction. In-memory images hash their pixel bounds.
type MockEncoder struct {
	dimensions int
}

// NewMockEncoder returns a mock encoder with the given dimension.
func NewMockEncoder(dimensions int) *MockEncoder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEncoder{dimensions: dimensions}
}

func (e *MockEncoder) wordVector(word string) []float32 {
	h := HashString(word)
	v := make([]float32, e.dimensions)
	for i := range v {
		v[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	return v
}

func (e *MockEncoder) embedWords(words []string) []float32 {
	emb := make([]float32, e.dimensions)
	for _, w := range words {
		for i, v := range e.wordVector(w) {
			emb[i] += v
		}
	}
	normalizeGuarded(emb)
	return emb
}

// stemWords splits a filename stem into lowercase alphanumeric words.
func stemWords(path string) []string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.FieldsFunc(strings.ToLower(stem), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

// EncodeImages returns deterministic embeddings derived from each input's path.
func (e *MockEncoder) EncodeImages(ctx context.Context, images []ImageInput, batchSize int) ([][]float32, error) {
	out := make([][]float32, len(images))
	err := batchRange(len(images), batchSize, func(start, end int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := start; i < end; i++ {
			if images[i].Path != "" {
				out[i] = e.embedWords(stemWords(images[i].Path))
				continue
			}
			if images[i].Image == nil {
				return fmt.Errorf("image %d has neither path nor pixels", i)
			}
			b := images[i].Image.Bounds()
			out[i] = e.embedWords([]string{fmt.Sprintf("img%dx%d", b.Dx(), b.Dy())})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeText returns deterministic embeddings derived from the query words.
func (e *MockEncoder) EncodeText(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	err := batchRange(len(texts), batchSize, func(start, end int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := start; i < end; i++ {
			out[i] = e.embedWords(SplitWords(strings.ToLower(texts[i])))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEncoder) Dimensions() int {
	return e.dimensions
}

// ModelName identifies the mock model.
func (e *MockEncoder) ModelName() string {
	return "mock"
}

// Close is a no-op for MockEncoder.
func (e *MockEncoder) Close() error {
	return nil
}
