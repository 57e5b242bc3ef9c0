package retrieval

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/encoder"
	"github.com/hyperjump/gazou/internal/models"
)

// supportedExtensions are the image formats accepted by directory ingestion,
// lowercase without the dot.
var supportedExtensions = []string{"jpg", "jpeg", "png", "bmp", "tiff", "webp"}

// AddImagesFromDirectory walks dir (recursively unless disabled via
// WithRecursive) and ingests every supported image file, in sorted path order
// for reproducible ids. It returns the number of images actually indexed; an
// empty or missing directory indexes nothing and returns 0 with no error
// beyond the stat failure.
func (s *System) AddImagesFromDirectory(ctx context.Context, dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, fmt.Errorf("image directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", dir)
	}

	paths, err := collectImagePaths(dir, s.recursive)
	if err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		s.logger.Warn("no supported images found", zap.String("dir", dir))
		return 0, nil
	}
	s.logger.Info("ingesting directory",
		zap.String("dir", dir), zap.Int("images", len(paths)))
	return s.AddImages(ctx, paths)
}

// collectImagePaths matches every supported extension under root, both cases,
// and returns the deduplicated sorted list. With recursive unset only the
// top-level directory is enumerated.
func collectImagePaths(root string, recursive bool) ([]string, error) {
	fsys := os.DirFS(root)
	glob := "*."
	if recursive {
		glob = "**/*."
	}
	seen := make(map[string]struct{})
	for _, ext := range supportedExtensions {
		for _, pattern := range []string{glob + ext, glob + strings.ToUpper(ext)} {
			matches, err := doublestar.Glob(fsys, pattern)
			if err != nil {
				return nil, fmt.Errorf("glob %s: %w", pattern, err)
			}
			for _, m := range matches {
				seen[filepath.Join(root, m)] = struct{}{}
			}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// AddImages encodes and indexes the given image paths in batches. A batch
// whose encoding fails is logged and skipped; the rest of the ingestion
// continues. Returns the number of images indexed.
func (s *System) AddImages(ctx context.Context, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	indexed := 0
	total := len(paths)
	for start := 0; start < total; start += s.imageBatchSize {
		end := start + s.imageBatchSize
		if end > total {
			end = total
		}
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		batch := paths[start:end]
		if err := s.addBatch(ctx, batch); err != nil {
			s.logger.Warn("skipping failed batch",
				zap.Int("start", start), zap.Int("end", end), zap.Error(err))
			continue
		}
		indexed += len(batch)
		if s.progress != nil {
			s.progress(end, total)
		}
	}
	s.logger.Info("ingestion complete",
		zap.Int("indexed", indexed), zap.Int("requested", total))
	return indexed, nil
}

func (s *System) addBatch(ctx context.Context, paths []string) error {
	inputs := make([]encoder.ImageInput, len(paths))
	for i, p := range paths {
		inputs[i] = encoder.FromPath(p)
	}
	vectors, err := s.enc.EncodeImages(ctx, inputs, len(paths))
	if err != nil {
		return err
	}

	meta := make([]models.ImageRecord, len(paths))
	for i, p := range paths {
		meta[i] = extractMetadata(p)
	}
	if err := s.index.Add(vectors, paths, meta); err != nil {
		return err
	}

	// Secondary surfaces are best effort; the index already has the batch.
	for i, p := range paths {
		if s.catalog != nil {
			if err := s.catalog.Put(ctx, &meta[i]); err != nil {
				s.logger.Warn("catalog put failed", zap.String("path", p), zap.Error(err))
			}
		}
		if s.keywords != nil {
			if err := s.keywords.Add(ctx, p, meta[i].Format); err != nil {
				s.logger.Warn("keyword index failed", zap.String("path", p), zap.Error(err))
			}
		}
	}
	return nil
}

// extractMetadata reads image dimensions, format, size and best-effort EXIF
// data. Failures leave a record with just the path, filename and the error.
func extractMetadata(path string) models.ImageRecord {
	rec := models.ImageRecord{
		Path:      path,
		Filename:  baseName(path),
		IndexedAt: time.Now(),
	}
	info, err := os.Stat(path)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.FileSize = info.Size()

	f, err := os.Open(path)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.Width = cfg.Width
	rec.Height = cfg.Height
	rec.Format = format
	rec.Mode = colorModeName(cfg)

	if format == "jpeg" || format == "tiff" {
		rec.Captured = readExif(f)
	}
	return rec
}

// readExif returns camera metadata from the reader, or nil when absent.
func readExif(f *os.File) map[string]string {
	if _, err := f.Seek(0, 0); err != nil {
		return nil
	}
	x, err := exif.Decode(f)
	if err != nil {
		return nil
	}
	out := make(map[string]string)
	for _, field := range []exif.FieldName{exif.Model, exif.Make, exif.DateTimeOriginal, exif.Orientation} {
		if tag, err := x.Get(field); err == nil {
			out[string(field)] = strings.Trim(tag.String(), `"`)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// colorModeName maps the decoded color model to a short name.
func colorModeName(cfg image.Config) string {
	switch cfg.ColorModel {
	case color.GrayModel, color.Gray16Model:
		return "L"
	case color.CMYKModel:
		return "CMYK"
	case color.NRGBAModel, color.NRGBA64Model, color.RGBAModel, color.RGBA64Model:
		return "RGBA"
	case color.YCbCrModel:
		return "RGB"
	}
	if _, ok := cfg.ColorModel.(color.Palette); ok {
		return "P"
	}
	return "RGB"
}

func baseName(path string) string {
	return filepath.Base(path)
}
