package vecmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float64{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-12)
	assert.InDelta(t, 0.8, v[1], 1e-12)
	assert.InDelta(t, 1.0, Norm(v), 1e-12)

	zero := []float64{0, 0}
	out := Normalize(zero)
	assert.Equal(t, zero, out)
	out[0] = 1
	assert.Zero(t, zero[0], "Normalize must not alias its input")
}

func TestBlendAndPushAway(t *testing.T) {
	got, err := Blend([]float64{1, 0}, []float64{0, 1}, 0.1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.9, 0.1}, got, 1e-12)

	got, err = PushAway([]float64{1, 0}, []float64{0, 1}, 0.15)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.15, -0.15}, got, 1e-12)

	_, err = Blend([]float64{1}, []float64{1, 2}, 0.5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = PushAway([]float64{1}, []float64{1, 2}, 0.5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCentroid(t *testing.T) {
	c, err := Centroid([][]float64{{1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2.0 / 3, 2.0 / 3}, c, 1e-12)

	_, err = Centroid(nil)
	assert.Error(t, err)
	_, err = Centroid([][]float64{{1}, {1, 2}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCosine(t *testing.T) {
	s, err := Cosine([]float64{1, 0}, []float64{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-12)

	s, err = Cosine([]float64{1, 0}, []float64{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, s, 1e-12)

	s, err = Cosine([]float64{0, 0}, []float64{1, 0})
	require.NoError(t, err)
	assert.Zero(t, s)
}

func TestEncodeDecode(t *testing.T) {
	v := []float64{0.1, -2.5, math.Pi}
	got, err := Decode(Encode(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	got, err = Decode(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestFloat32RoundTrip(t *testing.T) {
	v := []float64{0.5, -0.25}
	assert.Equal(t, v, ToFloat64(ToFloat32(v)))
}
