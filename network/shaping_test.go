package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/tensor"
)

func u8Attr(n int64) tensor.TensorAttr {
	return tensor.TensorAttr{
		Layout: tensor.LayoutNA, Type: tensor.U8, Dims: []int64{n},
		Quant: tensor.AffineAsymmetric{Scale: 0.5, ZeroPoint: 10},
	}
}

func TestShapeNoDequantPassesThrough(t *testing.T) {
	b := blob.New(u8Attr(4))
	out, err := Shape([]blob.Blob{b}, []string{"out0"}, ShapingConfig{})
	require.NoError(t, err)
	assert.Equal(t, tensor.U8, out[0].Attr.Type)
}

func TestShapeDequantConvertsToF32(t *testing.T) {
	b := blob.New(u8Attr(2))
	copy(b.Data, []byte{10, 20}) // (10-10)*0.5=0, (20-10)*0.5=5

	out, err := Shape([]blob.Blob{b}, []string{"out0"}, ShapingConfig{Dequant: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, tensor.F32, out[0].Attr.Type)
	vals := out[0].Float32s()
	assert.InDelta(t, 0.0, vals[0], 1e-6)
	assert.InDelta(t, 5.0, vals[1], 1e-6)
}

func TestShapeDequantExcludesNamedOutput(t *testing.T) {
	b := blob.New(u8Attr(1))
	out, err := Shape([]blob.Blob{b}, []string{"raw_scores"}, ShapingConfig{
		Dequant:      true,
		ExcludeNames: map[string]bool{"raw_scores": true},
	})
	require.NoError(t, err)
	assert.Equal(t, tensor.U8, out[0].Attr.Type)
}

func TestShapeDequantExclusionUnknownNameErrors(t *testing.T) {
	b := blob.New(u8Attr(1))
	_, err := Shape([]blob.Blob{b}, []string{"out0"}, ShapingConfig{
		Dequant:      true,
		ExcludeNames: map[string]bool{"nonexistent": true},
	})
	require.Error(t, err)
}

func TestShapeFlattenOutputsConcatenates(t *testing.T) {
	a := blob.New(u8Attr(2))
	copy(a.Data, []byte{10, 12}) // -> 0.0, 1.0
	c := blob.New(u8Attr(1))
	copy(c.Data, []byte{14}) // -> 2.0

	out, err := Shape([]blob.Blob{a, c}, []string{"a", "c"}, ShapingConfig{Dequant: true, FlattenOutputs: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	vals := out[0].Float32s()
	require.Len(t, vals, 3)
	assert.InDelta(t, 0.0, vals[0], 1e-6)
	assert.InDelta(t, 1.0, vals[1], 1e-6)
	assert.InDelta(t, 2.0, vals[2], 1e-6)
}

func TestShapeDequantPerChannelUsesAxisScale(t *testing.T) {
	attr := tensor.TensorAttr{
		Layout: tensor.LayoutNA, Type: tensor.U8, Dims: []int64{2, 1},
		Quant: tensor.AffinePerChannel{Axis: 0, Scale: []float32{1, 2}, ZeroPoint: []int32{0, 0}},
	}
	b := blob.New(attr)
	copy(b.Data, []byte{5, 5})

	out, err := Shape([]blob.Blob{b}, []string{"out0"}, ShapingConfig{Dequant: true})
	require.NoError(t, err)
	vals := out[0].Float32s()
	assert.InDelta(t, 5.0, vals[0], 1e-6)
	assert.InDelta(t, 10.0, vals[1], 1e-6)
}
