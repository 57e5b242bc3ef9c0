package encoder

import (
	"context"
	"math"
	"testing"
)

func rowNorm(row []float32) float64 {
	var sum float64
	for _, v := range row {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestMockEncoder_UnitNorm(t *testing.T) {
	e := NewMockEncoder(64)
	ctx := context.Background()
	rows, err := e.EncodeText(ctx, []string{"a cat", "a dog", "snowy mountain"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i, row := range rows {
		if len(row) != e.Dimensions() {
			t.Errorf("row %d width = %d, want %d", i, len(row), e.Dimensions())
		}
		if got := rowNorm(row); math.Abs(got-1) > 1e-5 {
			t.Errorf("row %d norm = %v, want 1", i, got)
		}
	}
}

func TestMockEncoder_Deterministic(t *testing.T) {
	e := NewMockEncoder(32)
	ctx := context.Background()
	a, _ := e.EncodeText(ctx, []string{"red car"}, 1)
	b, _ := e.EncodeText(ctx, []string{"red car"}, 1)
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
	}
}

func TestMockEncoder_BatchBoundariesDoNotMatter(t *testing.T) {
	e := NewMockEncoder(32)
	ctx := context.Background()
	texts := []string{"one", "two", "three", "four", "five"}
	small, _ := e.EncodeText(ctx, texts, 2)
	large, _ := e.EncodeText(ctx, texts, 100)
	for i := range texts {
		for j := range small[i] {
			if small[i][j] != large[i][j] {
				t.Fatalf("batch size changed output at row %d", i)
			}
		}
	}
}

func TestMockEncoder_ImageMatchesFilenameStem(t *testing.T) {
	e := NewMockEncoder(64)
	ctx := context.Background()
	imgs, err := e.EncodeImages(ctx, []ImageInput{
		FromPath("/data/cat.jpg"),
		FromPath("/data/dog.jpg"),
		FromPath("/data/mountain.jpg"),
	}, 10)
	if err != nil {
		t.Fatal(err)
	}
	query, _ := e.EncodeText(ctx, []string{"cat"}, 1)
	scores := CosineSimilarity(query[0], imgs)
	if scores[0] <= scores[1] || scores[0] <= scores[2] {
		t.Errorf("cat query should score cat.jpg highest: %v", scores)
	}
}

func TestMockEncoder_MissingInput(t *testing.T) {
	e := NewMockEncoder(16)
	if _, err := e.EncodeImages(context.Background(), []ImageInput{{}}, 1); err == nil {
		t.Error("expected error for input with neither path nor pixels")
	}
}
