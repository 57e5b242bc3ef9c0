package vector

import "math"

// zeroNormEps is the norm below which a query is treated as the zero vector.
const zeroNormEps = 1e-8

// InnerProduct returns the inner product of two vectors (for normalized vectors
// equals cosine similarity).
func InnerProduct(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
