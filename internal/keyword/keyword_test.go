package keyword

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(filepath.Join(t.TempDir(), "keyword.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndex_AddAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	paths := []string{
		"/photos/sunset_beach_2024.jpg",
		"/photos/city_night.jpg",
		"/photos/mountain_lake.png",
	}
	for _, p := range paths {
		if err := idx.Add(ctx, p, "jpeg"); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := idx.Search(ctx, "sunset", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %v, want exactly the sunset photo", hits)
	}
	if hits[0].Path != "/photos/sunset_beach_2024.jpg" {
		t.Errorf("hit = %q", hits[0].Path)
	}
	if hits[0].Score <= 0 {
		t.Errorf("score = %v, want > 0", hits[0].Score)
	}
}

func TestIndex_StemSeparators(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.Add(ctx, "/p/red-car.photo.jpg", "jpeg"); err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"red", "car", "photo"} {
		hits, err := idx.Search(ctx, q, 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 {
			t.Errorf("query %q hits = %d, want 1", q, len(hits))
		}
	}
}

func TestIndex_DirectoryNameMatches(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.Add(ctx, "/photos/vacation/IMG_0001.jpg", "jpeg"); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "vacation", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("directory word should match, hits = %d", len(hits))
	}
}

func TestIndex_NoMatches(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.Add(ctx, "/p/dog.jpg", "jpeg"); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "zebra", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %v, want none", hits)
	}
}

func TestIndex_Remove(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.Add(ctx, "/p/dog.jpg", "jpeg"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Remove(ctx, "/p/dog.jpg"); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "dog", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("removed path still matches: %v", hits)
	}
	n, err := idx.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestIndex_ReopenExisting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keyword.bleve")
	ctx := context.Background()

	idx, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(ctx, "/p/cat.jpg", "jpeg"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	idx2, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer idx2.Close()
	hits, err := idx2.Search(ctx, "cat", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("reopened index lost its entry, hits = %d", len(hits))
	}
}
