// Package encoder maps images and text into a shared embedding space.
package encoder

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
)

// normEps guards normalization against division by a near-zero norm.
// A zero vector stays zero and scores 0 against everything.
const normEps = 1e-8

// ImageInput is an image given either by path or as a decoded in-memory image.
type ImageInput struct {
	Path  string
	Image image.Image
}

// FromPath wraps an image file path as an input.
func FromPath(path string) ImageInput {
	return ImageInput{Path: path}
}

// FromImage wraps a decoded image as an input.
func FromImage(img image.Image) ImageInput {
	return ImageInput{Image: img}
}

// decode returns the in-memory image, decoding from Path when needed.
func (in ImageInput) decode() (image.Image, error) {
	if in.Image != nil {
		return in.Image, nil
	}
	f, err := os.Open(in.Path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", in.Path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", in.Path, err)
	}
	return img, nil
}

// key identifies the input for caching: the path when given, otherwise empty
// (in-memory images are not cached).
func (in ImageInput) key() string {
	return in.Path
}

// Encoder produces unit-normalized embedding vectors for images and text.
// EncodeImages and EncodeText process inputs in fixed-size batches to bound
// peak memory and provider request sizes; batch boundaries never affect the
// produced values. Dimensions is constant for a given configuration and
// always equals the width of produced rows.
type Encoder interface {
	EncodeImages(ctx context.Context, images []ImageInput, batchSize int) ([][]float32, error)
	EncodeText(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}

// normalizeGuarded scales x to unit L2 norm with an epsilon guard, in place.
// A zero vector remains (effectively) zero instead of producing NaN.
func normalizeGuarded(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	scale := float32(1 / (math.Sqrt(sum) + normEps))
	for i := range x {
		x[i] *= scale
	}
}

// CosineSimilarity scores the query against each candidate row, defensively
// re-normalizing both sides. Already-normalized inputs are unchanged within
// floating tolerance. Scores range -1..1; a zero vector scores 0 everywhere.
func CosineSimilarity(query []float32, candidates [][]float32) []float32 {
	q := make([]float32, len(query))
	copy(q, query)
	normalizeGuarded(q)
	scores := make([]float32, len(candidates))
	for i, cand := range candidates {
		c := make([]float32, len(cand))
		copy(c, cand)
		normalizeGuarded(c)
		if len(q) != len(c) {
			continue
		}
		var dot float32
		for j := range q {
			dot += q[j] * c[j]
		}
		scores[i] = dot
	}
	return scores
}

// batchRange iterates [0,n) in steps of batchSize, calling fn with each
// half-open range. batchSize <= 0 means a single batch.
func batchRange(n, batchSize int, fn func(start, end int) error) error {
	if batchSize <= 0 {
		batchSize = n
	}
	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}
