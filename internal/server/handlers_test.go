package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/config"
	"github.com/hyperjump/gazou/internal/encoder"
	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/retrieval"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

func writeTestImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(1, 1, color.RGBA{R: 255, A: 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func testServer(t *testing.T, imageNames ...string) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	system, err := retrieval.NewSystem(encoder.Config{Type: "mock", Dimensions: 32}, "flat")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { system.Close() })

	for _, name := range imageNames {
		writeTestImage(t, filepath.Join(dir, name))
	}
	if len(imageNames) > 0 {
		if _, err := system.AddImagesFromDirectory(context.Background(), dir); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return NewServer(system, cfg, zap.NewNop(), &mockWatchService{}), dir
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)
	return w
}

func TestHandleSearch(t *testing.T) {
	srv, _ := testServer(t, "cat.png", "dog.png")
	w := doJSON(t, srv, http.MethodPost, "/api/v1/search",
		models.SearchRequest{Query: "cat", TopK: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var out struct {
		Query   string                `json:"query"`
		Results []models.SearchResult `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(out.Results))
	}
	if filepath.Base(out.Results[0].ImagePath) != "cat.png" {
		t.Errorf("top result = %s", out.Results[0].ImagePath)
	}
	if out.Results[0].Rank != 1 {
		t.Errorf("rank = %d, want 1", out.Results[0].Rank)
	}
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	srv, _ := testServer(t)
	w := doJSON(t, srv, http.MethodPost, "/api/v1/search", models.SearchRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleSearch_InvalidBody(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleSearchByImage(t *testing.T) {
	srv, dir := testServer(t, "cat.png", "dog.png")
	w := doJSON(t, srv, http.MethodPost, "/api/v1/search/image",
		models.ImageSearchRequest{ImagePath: filepath.Join(dir, "cat.png"), TopK: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var out struct {
		Results []models.SearchResult `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(out.Results))
	}
	if filepath.Base(out.Results[0].ImagePath) != "cat.png" {
		t.Errorf("indexed query image should rank first, got %s", out.Results[0].ImagePath)
	}
}

func TestHandleIngest(t *testing.T) {
	srv, dir := testServer(t)
	writeTestImage(t, filepath.Join(dir, "new.png"))

	w := doJSON(t, srv, http.MethodPost, "/api/v1/images",
		models.IngestRequest{Paths: []string{filepath.Join(dir, "new.png")}})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var out struct {
		Indexed   int `json:"indexed"`
		Requested int `json:"requested"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Indexed != 1 || out.Requested != 1 {
		t.Errorf("response = %+v", out)
	}
}

func TestHandleIngest_EmptyPaths(t *testing.T) {
	srv, _ := testServer(t)
	w := doJSON(t, srv, http.MethodPost, "/api/v1/images", models.IngestRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleRandomImages(t *testing.T) {
	srv, _ := testServer(t, "a.png", "b.png", "c.png")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/images/random?count=2", nil)
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out struct {
		Images []models.ImageRecord `json:"images"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Images) != 2 {
		t.Errorf("images = %d, want 2", len(out.Images))
	}
}

func TestHandleRandomImages_BadCount(t *testing.T) {
	srv, _ := testServer(t, "a.png")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/images/random?count=zero", nil)
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleStats(t *testing.T) {
	srv, _ := testServer(t, "a.png", "b.png")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out models.SystemStats
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.TotalImages != 2 || out.EncoderType != "mock" {
		t.Errorf("stats = %+v", out)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleWatchDirectories(t *testing.T) {
	srv, _ := testServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/watch/directories",
		map[string]string{"path": "/photos/library"})
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d, body = %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/watch/directories", nil)
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Directories) != 1 {
		t.Fatalf("directories = %v", out.Directories)
	}

	w = doJSON(t, srv, http.MethodDelete, "/api/v1/watch/directories",
		map[string]string{"path": "/photos/library"})
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
}

func TestHandleWatch_NotEnabled(t *testing.T) {
	system, err := retrieval.NewSystem(encoder.Config{Type: "mock", Dimensions: 32}, "flat")
	if err != nil {
		t.Fatal(err)
	}
	defer system.Close()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	srv := NewServer(system, cfg, zap.NewNop(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/watch/directories", nil)
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}
