package retrieval

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/encoder"
	"github.com/hyperjump/gazou/internal/vector"
)

// failingEncoder wraps the mock encoder and fails any image batch containing
// a path with the poison marker.
type failingEncoder struct {
	encoder.Encoder
	poison string
}

func (f *failingEncoder) EncodeImages(ctx context.Context, images []encoder.ImageInput, batchSize int) ([][]float32, error) {
	for _, in := range images {
		if strings.Contains(in.Path, f.poison) {
			return nil, fmt.Errorf("simulated encode failure for %s", in.Path)
		}
	}
	return f.Encoder.EncodeImages(ctx, images, batchSize)
}

func TestAddImages_SkipsFailedBatch(t *testing.T) {
	dir := imageDir(t, "a.png", "b.png", "poison.png", "z.png")

	idx, err := vector.New("flat", 64)
	if err != nil {
		t.Fatal(err)
	}
	s := &System{
		enc:            &failingEncoder{Encoder: encoder.NewMockEncoder(64), poison: "poison"},
		encCfg:         encoder.Config{Type: "mock", Dimensions: 64},
		index:          idx,
		logger:         zap.NewNop(),
		imageBatchSize: 1,
	}
	defer s.Close()

	paths, err := collectImagePaths(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	n, err := s.AddImages(context.Background(), paths)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("indexed = %d, want 3 (poison batch skipped)", n)
	}
	if got := s.index.Stats().TotalVectors; got != 3 {
		t.Errorf("index vectors = %d, want 3", got)
	}
	// Surviving paths keep sequential ids with no gap reuse.
	if p, ok := s.index.PathOf(2); !ok || filepath.Base(p) != "z.png" {
		t.Errorf("PathOf(2) = %q, want z.png", p)
	}
}

func TestCollectImagePaths_SortedAndFiltered(t *testing.T) {
	dir := imageDir(t, "b.png", "a.jpg")
	writeFile(t, filepath.Join(dir, "skip.txt"), "x")
	writeFile(t, filepath.Join(dir, "animated.gif"), "GIF89a")

	paths, err := collectImagePaths(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	if filepath.Base(paths[0]) != "a.jpg" || filepath.Base(paths[1]) != "b.png" {
		t.Errorf("paths not sorted: %v", paths)
	}
}

func TestCollectImagePaths_NonRecursive(t *testing.T) {
	dir := imageDir(t, "top.png", filepath.Join("nested", "deep.png"))

	flat, err := collectImagePaths(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(flat) != 1 || filepath.Base(flat[0]) != "top.png" {
		t.Fatalf("non-recursive paths = %v, want only top.png", flat)
	}

	all, err := collectImagePaths(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("recursive paths = %v, want both images", all)
	}
}

func TestAddImagesFromDirectory_NonRecursive(t *testing.T) {
	dir := imageDir(t, "top.png", filepath.Join("nested", "deep.png"))

	s := mockSystem(t, WithRecursive(false))
	n, err := s.AddImagesFromDirectory(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("indexed = %d, want 1 (nested directory skipped)", n)
	}
	if p, ok := s.index.PathOf(0); !ok || filepath.Base(p) != "top.png" {
		t.Errorf("PathOf(0) = %q, want top.png", p)
	}
}

func TestExtractMetadata_DecodeFailure(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.png")
	writeFile(t, bad, "this is not a png")

	rec := extractMetadata(bad)
	if rec.Path != bad || rec.Filename != "bad.png" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Error == "" {
		t.Error("expected decode error recorded")
	}
	if rec.FileSize == 0 {
		t.Error("file size should still be captured")
	}
}
