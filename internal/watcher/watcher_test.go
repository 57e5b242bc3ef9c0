package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_IndexesNewImage(t *testing.T) {
	dir := t.TempDir()
	var indexed []string
	var mu sync.Mutex
	onIndex := func(path string) {
		mu.Lock()
		indexed = append(indexed, path)
		mu.Unlock()
	}

	w := New([]string{dir}, []string{".jpg", ".png"}, true, onIndex, nil,
		WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "new.jpg"), "fake image bytes")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	jpgSeen := false
	for _, p := range indexed {
		if strings.HasSuffix(p, "new.jpg") {
			jpgSeen = true
		}
		if strings.HasSuffix(p, "notes.txt") {
			t.Error("non-image file should be filtered")
		}
	}
	if !jpgSeen {
		t.Errorf("new.jpg not indexed: %v", indexed)
	}
}

func TestWatcher_RemoveCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.png")
	writeFile(t, path, "x")

	var removed []string
	var mu sync.Mutex
	onRemove := func(p string) {
		mu.Lock()
		removed = append(removed, p)
		mu.Unlock()
	}
	w := New([]string{dir}, []string{".png"}, true, nil, onRemove,
		WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(removed) != 1 || !strings.HasSuffix(removed[0], "old.png") {
		t.Errorf("removed = %v, want old.png", removed)
	}
}

func TestWatcher_NewDirectoryIsPickedUp(t *testing.T) {
	dir := t.TempDir()
	var indexed []string
	var mu sync.Mutex
	onIndex := func(path string) {
		mu.Lock()
		indexed = append(indexed, path)
		mu.Unlock()
	}
	w := New([]string{dir}, []string{".jpg"}, true, onIndex, nil,
		WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Simulate a folder of photos copied into the library.
	album := filepath.Join(dir, "album")
	if err := os.MkdirAll(album, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(album, "one.jpg"), "x")
	writeFile(t, filepath.Join(album, "two.jpg"), "y")

	time.Sleep(500 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	found := map[string]bool{}
	for _, p := range indexed {
		found[filepath.Base(p)] = true
	}
	if !found["one.jpg"] || !found["two.jpg"] {
		t.Errorf("album photos not indexed: %v", indexed)
	}
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	w := New(nil, []string{".jpg"}, true, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || filepath.Clean(dirs[0]) != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
	// Adding the same root twice is a no-op.
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 1 {
		t.Errorf("duplicate add changed roots: %v", w.Directories())
	}

	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), "x")
	writeFile(t, filepath.Join(dir, "skip.raw"), "x")

	var indexed []string
	var mu sync.Mutex
	onIndex := func(path string) {
		mu.Lock()
		indexed = append(indexed, path)
		mu.Unlock()
	}
	w := New([]string{dir}, []string{".jpg"}, true, onIndex, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.SyncExistingFiles()

	mu.Lock()
	defer mu.Unlock()
	if len(indexed) != 1 || !strings.HasSuffix(indexed[0], "a.jpg") {
		t.Errorf("indexed = %v, want only a.jpg", indexed)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "library", "photos")
	w := New([]string{root}, []string{".jpg"}, true, nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root should exist after Start: %v", err)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/p/a.jpg", []string{".jpg"}, true},
		{"/p/a.JPG", []string{".jpg"}, true},
		{"/p/a.jpg", []string{"jpg"}, true},
		{"/p/a.raw", []string{".jpg", ".png"}, false},
		{"/p/a", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.jpg", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
