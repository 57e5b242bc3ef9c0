//go:build !cgo
// +build !cgo

// Stub for builds without CGO; local model inference needs the onnxruntime library.

package encoder

import (
	"context"
	"fmt"
)

// LocalEncoder is a stub that returns an error when onnxruntime is not available.
type LocalEncoder struct{}

// NewLocalEncoder returns an error because onnxruntime is not available.
func NewLocalEncoder(profile Profile, modelDir string, cacheSize int) (*LocalEncoder, error) {
	return nil, fmt.Errorf("local encoder not available: build with CGO and install onnxruntime")
}

// EncodeImages is not implemented without onnxruntime.
func (e *LocalEncoder) EncodeImages(ctx context.Context, images []ImageInput, batchSize int) ([][]float32, error) {
	return nil, fmt.Errorf("local encoder not available")
}

// EncodeText is not implemented without onnxruntime.
func (e *LocalEncoder) EncodeText(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	return nil, fmt.Errorf("local encoder not available")
}

// Dimensions returns 0 without onnxruntime.
func (e *LocalEncoder) Dimensions() int {
	return 0
}

// ModelName returns an empty string without onnxruntime.
func (e *LocalEncoder) ModelName() string {
	return ""
}

// Close is a no-op without onnxruntime.
func (e *LocalEncoder) Close() error {
	return nil
}
