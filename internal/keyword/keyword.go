// Package keyword provides a Bleve filename index for hybrid search.
package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// Result is one keyword hit: an image path with its Bleve score.
type Result struct {
	Path  string
	Score float64
}

// Index matches query words against image filenames and directory names. It
// complements embedding search: a query like "IMG_4302" or "vacation" can hit
// exactly on the file layout even when the embedding signal is weak.
type Index struct {
	index bleve.Index
}

// indexedImage is the document shape stored per path.
type indexedImage struct {
	Name   string `json:"name"`
	Dir    string `json:"dir"`
	Format string `json:"format"`
}

// New creates or opens a Bleve index at path. An existing index is opened and
// reused; remove the directory to force a rebuild after a mapping change.
func New(path string) (*Index, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "cats" does not
	// silently match "cat" but exact words always do.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("dir", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("format", keywordFieldMapping)
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &Index{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &Index{index: index}, nil
}

// NewInMemory creates an index that is not persisted. Used when no keyword
// index path is configured.
func NewInMemory() (*Index, error) {
	im := bleve.NewIndexMapping()
	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
	}
	return &Index{index: index}, nil
}

// Add indexes an image path. The filename stem is split on separators so
// "sunset_beach_2024.jpg" matches the words "sunset", "beach" and "2024".
func (i *Index) Add(ctx context.Context, path, format string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	doc := indexedImage{
		Name:   splitStem(name),
		Dir:    splitStem(filepath.Base(filepath.Dir(path))),
		Format: strings.ToLower(format),
	}
	return i.index.Index(path, doc)
}

// Remove drops the entry for path.
func (i *Index) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return i.index.Delete(path)
}

// Search runs a match query over the indexed names and returns up to limit
// hits. An empty index or a query with no matches returns an empty slice.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]Result, len(results.Hits))
	for n, hit := range results.Hits {
		out[n] = Result{Path: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Count returns the number of indexed paths.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Close closes the underlying index.
func (i *Index) Close() error {
	return i.index.Close()
}

// splitStem rewrites separator characters as spaces so the analyzer tokenizes
// "sunset_beach-2024" into distinct words.
func splitStem(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.', ',':
			return ' '
		}
		return r
	}, s)
}
