// Package blob defines Blob, the n-dimensional numeric buffer handed between
// the pre-processor, network, and post-processor stages, with its typed
// accessors and the per-element Dequant helper.
package blob

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/harshmittal2210/jevois/tensor"
)

// Blob is a tensor-shaped buffer with an associated TensorAttr. It is
// created by the pre-processor, owned by the pipeline controller for the
// duration of one frame, and passed by shared read-only reference to the
// network. In asynchronous mode the controller retains exclusive ownership
// until the inference future is awaited and consumed (see package
// network's Future).
type Blob struct {
	Attr tensor.TensorAttr
	Data []byte
}

// New allocates a zeroed Blob matching attr.
func New(attr tensor.TensorAttr) Blob {
	n := attr.NumElements() * int64(attr.Type.ByteWidth())
	return Blob{Attr: attr, Data: make([]byte, n)}
}

// Float32s reinterprets Data as a []float32. Panics if Attr.Type is not F32;
// callers always know the type from Attr, so this is a programmer error, not
// a runtime condition to recover from.
func (b Blob) Float32s() []float32 {
	if b.Attr.Type != tensor.F32 {
		panic(fmt.Sprintf("blob: Float32s called on %s blob", b.Attr.Type))
	}
	out := make([]float32, len(b.Data)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b.Data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// SetFloat32s writes vals into Data as little-endian float32s. Panics if
// Attr.Type is not F32 or len(vals) doesn't match the buffer's capacity.
func (b Blob) SetFloat32s(vals []float32) {
	if b.Attr.Type != tensor.F32 {
		panic(fmt.Sprintf("blob: SetFloat32s called on %s blob", b.Attr.Type))
	}
	if len(vals)*4 != len(b.Data) {
		panic(fmt.Sprintf("blob: SetFloat32s length mismatch: %d vals, %d-byte buffer", len(vals), len(b.Data)))
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b.Data[i*4:], math.Float32bits(v))
	}
}

// Uint8s reinterprets Data as a []uint8 (a plain alias; provided for
// symmetry with the other typed accessors).
func (b Blob) Uint8s() []uint8 {
	if b.Attr.Type != tensor.U8 {
		panic(fmt.Sprintf("blob: Uint8s called on %s blob", b.Attr.Type))
	}
	return b.Data
}

// Int8s reinterprets Data as a []int8.
func (b Blob) Int8s() []int8 {
	if b.Attr.Type != tensor.I8 {
		panic(fmt.Sprintf("blob: Int8s called on %s blob", b.Attr.Type))
	}
	out := make([]int8, len(b.Data))
	for i, v := range b.Data {
		out[i] = int8(v)
	}
	return out
}

// Dequant converts one element of an integer blob to float32 using Attr's
// quantization descriptor. raw is the element's integer value; for
// AffinePerChannel, channelIdx is the element's index along Quant.Axis.
func Dequant(attr tensor.TensorAttr, raw float64, channelIdx int) float32 {
	switch q := attr.Quant.(type) {
	case tensor.AffineAsymmetric:
		return float32((raw - float64(q.ZeroPoint)) * float64(q.Scale))
	case tensor.AffinePerChannel:
		return float32((raw - float64(q.ZeroPoint[channelIdx])) * float64(q.Scale[channelIdx]))
	case tensor.DynamicFixedPoint:
		return float32(raw / math.Pow(2, float64(q.FracLen)))
	default:
		return float32(raw)
	}
}
