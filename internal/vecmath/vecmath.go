// Package vecmath holds the small set of dense-vector operations the
// profile learner and vector index adapters share.
package vecmath

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors differ in length.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize returns v scaled to unit length. A zero vector is returned
// unchanged (as a copy).
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// Blend returns (1-alpha)*cur + alpha*next.
func Blend(cur, next []float64, alpha float64) ([]float64, error) {
	if len(cur) != len(next) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(cur), len(next))
	}
	out := make([]float64, len(cur))
	for i := range cur {
		out[i] = (1-alpha)*cur[i] + alpha*next[i]
	}
	return out, nil
}

// PushAway returns cur - beta*(away - cur).
func PushAway(cur, away []float64, beta float64) ([]float64, error) {
	if len(cur) != len(away) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(cur), len(away))
	}
	out := make([]float64, len(cur))
	for i := range cur {
		out[i] = cur[i] - beta*(away[i]-cur[i])
	}
	return out, nil
}

// Centroid returns the element-wise mean of vs. All vectors must share a
// dimension.
func Centroid(vs [][]float64) ([]float64, error) {
	if len(vs) == 0 {
		return nil, errors.New("centroid of empty set")
	}
	dim := len(vs[0])
	out := make([]float64, dim)
	for _, v := range vs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, dim, len(v))
		}
		for i, x := range v {
			out[i] += x
		}
	}
	for i := range out {
		out[i] /= float64(len(vs))
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b, 0 if either is zero.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// ToFloat32 converts v for index backends that store float32.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// ToFloat64 converts an index or oracle vector back to float64.
func ToFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Encode packs v as little-endian float64s for BLOB storage.
func Encode(v []float64) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

// Decode unpacks a BLOB written by Encode. Empty input yields nil.
func Decode(b []byte) ([]float64, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 8", len(b))
	}
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out, nil
}
