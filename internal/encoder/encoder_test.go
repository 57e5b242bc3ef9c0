package encoder

import (
	"math"
	"testing"
)

func TestCosineSimilarity_Renormalizes(t *testing.T) {
	// Unnormalized inputs on the same direction must score ~1.
	scores := CosineSimilarity([]float32{3, 4}, [][]float32{{6, 8}, {4, -3}})
	if math.Abs(float64(scores[0])-1) > 1e-5 {
		t.Errorf("same-direction score = %v, want ~1", scores[0])
	}
	if math.Abs(float64(scores[1])) > 1e-5 {
		t.Errorf("orthogonal score = %v, want ~0", scores[1])
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	scores := CosineSimilarity([]float32{0, 0}, [][]float32{{1, 0}})
	if scores[0] != 0 {
		t.Errorf("zero query score = %v, want 0", scores[0])
	}
	scores = CosineSimilarity([]float32{1, 0}, [][]float32{{0, 0}})
	if scores[0] != 0 {
		t.Errorf("zero candidate score = %v, want 0", scores[0])
	}
}

func TestNormalizeGuarded_Idempotent(t *testing.T) {
	v := []float32{1, 2, 3}
	normalizeGuarded(v)
	before := make([]float32, len(v))
	copy(before, v)
	normalizeGuarded(v)
	for i := range v {
		if math.Abs(float64(v[i]-before[i])) > 1e-6 {
			t.Errorf("re-normalization moved element %d by more than epsilon", i)
		}
	}
}

func TestBatchRange(t *testing.T) {
	var ranges [][2]int
	err := batchRange(7, 3, func(start, end int) error {
		ranges = append(ranges, [2]int{start, end})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]int{{0, 3}, {3, 6}, {6, 7}}
	if len(ranges) != len(want) {
		t.Fatalf("ranges = %v, want %v", ranges, want)
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Errorf("range %d = %v, want %v", i, ranges[i], want[i])
		}
	}
}

func TestBatchRange_NonPositiveBatch(t *testing.T) {
	calls := 0
	_ = batchRange(5, 0, func(start, end int) error {
		calls++
		if start != 0 || end != 5 {
			t.Errorf("single batch expected, got %d-%d", start, end)
		}
		return nil
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
