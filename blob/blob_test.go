package blob

import (
	"testing"

	"github.com/harshmittal2210/jevois/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlob_Float32RoundTrip(t *testing.T) {
	attr := tensor.TensorAttr{Layout: tensor.NCHW, Type: tensor.F32, Dims: []int64{1, 2}, Quant: tensor.NoQuant{}}
	b := New(attr)
	b.SetFloat32s([]float32{1.5, -2.25})
	assert.Equal(t, []float32{1.5, -2.25}, b.Float32s())
}

func TestBlob_SetFloat32s_LengthMismatchPanics(t *testing.T) {
	attr := tensor.TensorAttr{Layout: tensor.NCHW, Type: tensor.F32, Dims: []int64{1, 2}, Quant: tensor.NoQuant{}}
	b := New(attr)
	require.Panics(t, func() { b.SetFloat32s([]float32{1}) })
}

func TestDequant_AffineAsymmetric(t *testing.T) {
	attr := tensor.TensorAttr{
		Type: tensor.U8,
		Quant: tensor.AffineAsymmetric{Scale: 0.017, ZeroPoint: 114},
	}
	got := Dequant(attr, 114, 0)
	assert.InDelta(t, 0.0, got, 1e-6)
	got2 := Dequant(attr, 214, 0)
	assert.InDelta(t, float64(100)*0.017, got2, 1e-3)
}

func TestDequant_DynamicFixedPoint(t *testing.T) {
	attr := tensor.TensorAttr{Type: tensor.I16, Quant: tensor.DynamicFixedPoint{FracLen: 7}}
	got := Dequant(attr, 128, 0)
	assert.InDelta(t, 1.0, got, 1e-6)
}
