package network

import (
	"fmt"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/tensor"
)

// ShapingConfig controls the post-network shaping applied uniformly
// regardless of backend (spec §4.3).
type ShapingConfig struct {
	// Dequant converts every integer output to F32 using its quant
	// descriptor (an integer output with no quant descriptor is converted
	// value for value), except those named in ExcludeNames (the
	// "no:<name>" per-output override zoo entries may request).
	Dequant bool
	// FlattenOutputs concatenates all outputs (after dequant) into a single
	// 1-D F32 vector in output-index order. Only meaningful with Dequant.
	FlattenOutputs bool
	// ExcludeNames lists output names to leave quantized even when Dequant
	// is set.
	ExcludeNames map[string]bool
}

// Shape applies dequant/flattenoutputs to outputs (in output-index order),
// using names (parallel to outputs, may be empty strings) to honor
// per-output dequant exclusions.
func Shape(outputs []blob.Blob, names []string, cfg ShapingConfig) ([]blob.Blob, error) {
	if !cfg.Dequant {
		return outputs, nil
	}
	if err := validateExclude(names, cfg.ExcludeNames); err != nil {
		return nil, err
	}
	shaped := make([]blob.Blob, len(outputs))
	for i, b := range outputs {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		if cfg.ExcludeNames[name] || !b.Attr.Type.IsInteger() {
			shaped[i] = b
			continue
		}
		shaped[i] = dequantBlob(b)
	}
	if cfg.FlattenOutputs {
		return []blob.Blob{flatten(shaped)}, nil
	}
	return shaped, nil
}

func dequantBlob(b blob.Blob) blob.Blob {
	n := int(b.Attr.NumElements())
	raw := make([]float64, n)
	readInts(b, raw)

	channelStride := int64(1)
	axis := -1
	if pc, ok := b.Attr.Quant.(tensor.AffinePerChannel); ok {
		axis = pc.Axis
		for d := pc.Axis + 1; d < b.Attr.Rank(); d++ {
			channelStride *= b.Attr.Dims[d]
		}
	}

	out := make([]float32, n)
	for i, r := range raw {
		ch := 0
		if axis >= 0 {
			ch = int((int64(i) / channelStride) % b.Attr.Dims[axis])
		}
		out[i] = blob.Dequant(b.Attr, r, ch)
	}

	newAttr := b.Attr
	newAttr.Type = tensor.F32
	newAttr.Quant = tensor.NoQuant{}
	fb := blob.New(newAttr)
	fb.SetFloat32s(out)
	return fb
}

func readInts(b blob.Blob, out []float64) {
	width := b.Attr.Type.ByteWidth()
	signed := b.Attr.Type == tensor.I8 || b.Attr.Type == tensor.I16 || b.Attr.Type == tensor.I32
	for i := range out {
		off := i * width
		var v int64
		for k := width - 1; k >= 0; k-- {
			v = v<<8 | int64(b.Data[off+k])
		}
		if signed {
			switch width {
			case 1:
				v = int64(int8(v))
			case 2:
				v = int64(int16(v))
			case 4:
				v = int64(int32(v))
			}
		}
		out[i] = float64(v)
	}
}

// flatten concatenates blobs (assumed already F32) into a single 1-D F32
// blob, in slice order.
func flatten(blobs []blob.Blob) blob.Blob {
	var total int64
	for _, b := range blobs {
		total += b.Attr.NumElements()
	}
	attr := tensor.TensorAttr{Layout: tensor.LayoutNA, Type: tensor.F32, Dims: []int64{total}, Quant: tensor.NoQuant{}}
	out := blob.New(attr)
	vals := make([]float32, 0, total)
	for _, b := range blobs {
		vals = append(vals, b.Float32s()...)
	}
	out.SetFloat32s(vals)
	return out
}

// validateExclude checks that ExcludeNames only references known output
// names, returning an error string for a ZooParseError-style surface rather
// than panicking deep inside shaping.
func validateExclude(names []string, exclude map[string]bool) error {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for n := range exclude {
		if !known[n] {
			return fmt.Errorf("network: dequant exclusion %q does not match any declared output name", n)
		}
	}
	return nil
}
