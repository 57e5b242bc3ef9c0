package vector

import (
	"math"
	"testing"
)

func TestInnerProduct(t *testing.T) {
	if got := InnerProduct([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal inner product = %v, want 0", got)
	}
	if got := InnerProduct([]float32{1, 0}, []float32{1, 0}); got != 1 {
		t.Errorf("identical inner product = %v, want 1", got)
	}
	if got := InnerProduct([]float32{1, 0}, []float32{1}); got != 0 {
		t.Errorf("mismatched lengths = %v, want 0", got)
	}
}

func TestL2Norm(t *testing.T) {
	if got := L2Norm([]float32{3, 4}); math.Abs(got-5) > 1e-9 {
		t.Errorf("L2Norm = %v, want 5", got)
	}
	if got := L2Norm(nil); got != 0 {
		t.Errorf("L2Norm(nil) = %v, want 0", got)
	}
}
