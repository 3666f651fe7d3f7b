// Package distance implements the pure distance kernels used by the HNSW
// index. Every kernel follows the same convention: smaller return value
// means more similar. The index and search path depend on this ordering and
// never branch on metric identity.
package distance

import (
	"strconv"

	"github.com/chewxy/math32"
	"github.com/viterin/vek/vek32"

	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
)

// Metric names a supported distance function.
type Metric string

const (
	Cosine    Metric = "cosine"
	Euclidean Metric = "euclidean"
	Dot       Metric = "dot"
	Manhattan Metric = "manhattan"
)

// Func computes the distance between two equal-length float32 vectors.
type Func func(a, b []float32) (float32, error)

// ForMetric returns the kernel for the named metric, or an error if the
// metric is not recognized.
func ForMetric(m Metric) (Func, error) {
	switch m {
	case Cosine:
		return CosineDistance, nil
	case Euclidean:
		return EuclideanDistance, nil
	case Dot:
		return DotDistance, nil
	case Manhattan:
		return ManhattanDistance, nil
	default:
		return nil, vdberrors.ValidationError("unknown distance metric: "+string(m), nil)
	}
}

func checkDims(a, b []float32) error {
	if len(a) != len(b) {
		return vdberrors.DimensionMismatchError("vector length mismatch", nil).
			WithDetail("a_len", strconv.Itoa(len(a))).
			WithDetail("b_len", strconv.Itoa(len(b)))
	}
	return nil
}

// CosineDistance returns 1 - cosine_similarity(a, b). If either vector has
// zero norm, it returns 1.0 (maximum distance).
func CosineDistance(a, b []float32) (float32, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	dot := vek32.Dot(a, b)
	normA := math32.Sqrt(vek32.Dot(a, a))
	normB := math32.Sqrt(vek32.Dot(b, b))
	if normA == 0 || normB == 0 {
		return 1.0, nil
	}
	sim := dot / (normA * normB)
	if sim > 1.0 {
		sim = 1.0
	} else if sim < -1.0 {
		sim = -1.0
	}
	return 1.0 - sim, nil
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b []float32) (float32, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math32.Sqrt(sum), nil
}

// DotDistance returns -(a·b), so that smaller is closer like every other
// metric in this package.
func DotDistance(a, b []float32) (float32, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	return -vek32.Dot(a, b), nil
}

// ManhattanDistance returns the L1 distance between a and b.
func ManhattanDistance(a, b []float32) (float32, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum, nil
}

// Normalize returns a unit-length copy of v, or a zero vector if v has zero
// norm. Uses math32 to stay in float32 precision throughout.
func Normalize(v []float32) []float32 {
	norm := math32.Sqrt(vek32.Dot(v, v))
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	inv := 1.0 / norm
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
