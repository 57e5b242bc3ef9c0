package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/gazou/internal/catalog"
	"github.com/hyperjump/gazou/internal/keyword"
	"github.com/hyperjump/gazou/internal/models"
)

func TestSearch_HybridBoostsFilenameMatch(t *testing.T) {
	dir := imageDir(t, "sunset_beach.png", "city.png", "forest.png")
	kw, err := keyword.New(filepath.Join(t.TempDir(), "kw.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kw.Close() })
	s := mockSystem(t, WithKeywordIndex(kw))
	ctx := context.Background()
	if _, err := s.AddImagesFromDirectory(ctx, dir); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, models.SearchRequest{Query: "sunset", TopK: 3, Hybrid: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	var hit *models.SearchResult
	for i := range results {
		if filepath.Base(results[i].ImagePath) == "sunset_beach.png" {
			hit = &results[i]
		}
	}
	if hit == nil {
		t.Fatal("sunset_beach.png missing from hybrid results")
	}
	if hit.KeywordScore <= 0 {
		t.Errorf("keyword score = %v, want > 0 for exact filename word", hit.KeywordScore)
	}
	if results[0].ImagePath != hit.ImagePath {
		t.Errorf("filename match should rank first, got %s", results[0].ImagePath)
	}
	for i, r := range results {
		if r.Rank != i+1 {
			t.Errorf("rank %d = %d after fusion", i, r.Rank)
		}
	}
}

func TestSearch_HybridWithoutKeywordIndex(t *testing.T) {
	dir := imageDir(t, "cat.png")
	s := mockSystem(t)
	ctx := context.Background()
	if _, err := s.AddImagesFromDirectory(ctx, dir); err != nil {
		t.Fatal(err)
	}
	// Hybrid flag without an attached keyword index degrades to embedding-only.
	results, err := s.Search(ctx, models.SearchRequest{Query: "cat", TopK: 1, Hybrid: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
}

func TestIngest_FeedsCatalog(t *testing.T) {
	dir := imageDir(t, "cat.png", "dog.png")
	cat := catalog.NewMemoryCatalog()
	s := mockSystem(t, WithCatalog(cat))
	ctx := context.Background()
	if _, err := s.AddImagesFromDirectory(ctx, dir); err != nil {
		t.Fatal(err)
	}
	n, err := cat.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("catalog count = %d, want 2", n)
	}
	rec, err := cat.Get(ctx, filepath.Join(dir, "cat.png"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Format != "png" || rec.Width != 8 {
		t.Errorf("catalog record = %+v", rec)
	}
}
