// Package tensor implements the cross-runtime tensor descriptor (TensorAttr),
// the tensor-spec string grammar, and small numeric utilities (top-k,
// softmax, rectangle clamping, label-to-color hashing) shared by the
// pre-processor, network, and post-processor stages.
package tensor

import "fmt"

// ElemType is the closed set of element types a TensorAttr can carry.
type ElemType int

const (
	U8 ElemType = iota
	I8
	U16
	I16
	U32
	I32
	F16
	F32
	Bool
)

func (t ElemType) String() string {
	switch t {
	case U8:
		return "U8"
	case I8:
		return "I8"
	case U16:
		return "U16"
	case I16:
		return "I16"
	case U32:
		return "U32"
	case I32:
		return "I32"
	case F16:
		return "F16"
	case F32:
		return "F32"
	case Bool:
		return "Bool"
	default:
		return fmt.Sprintf("ElemType(%d)", int(t))
	}
}

// IsInteger reports whether the type may legally carry quantization metadata.
func (t ElemType) IsInteger() bool {
	switch t {
	case U8, I8, U16, I16, U32, I32:
		return true
	default:
		return false
	}
}

// ByteWidth returns the size in bytes of one element of this type.
func (t ElemType) ByteWidth() int {
	switch t {
	case U8, I8, Bool:
		return 1
	case U16, I16, F16:
		return 2
	case U32, I32, F32:
		return 4
	default:
		return 0
	}
}

// Quant is the closed variant of quantization descriptors a TensorAttr may
// carry. Only NoQuant is valid on a non-integer ElemType.
type Quant interface {
	isQuant()
}

// NoQuant means the tensor carries no quantization metadata.
type NoQuant struct{}

func (NoQuant) isQuant() {}

// DynamicFixedPoint scales by a power-of-two factor: value = raw / 2^FracLen.
type DynamicFixedPoint struct {
	FracLen int
}

func (DynamicFixedPoint) isQuant() {}

// AffineAsymmetric maps value = (raw - ZeroPoint) * Scale.
type AffineAsymmetric struct {
	Scale     float32
	ZeroPoint int32
}

func (AffineAsymmetric) isQuant() {}

// AffinePerChannel is AffineAsymmetric with one (scale, zero_point) pair per
// slice along Axis.
type AffinePerChannel struct {
	Axis      int
	Scale     []float32
	ZeroPoint []int32
}

func (AffinePerChannel) isQuant() {}

// Layout is informational only: it documents dimension order but never
// reorders data on its own.
type Layout int

const (
	LayoutNA Layout = iota
	NCHW
	NHWC
)

func (l Layout) String() string {
	switch l {
	case NCHW:
		return "NCHW"
	case NHWC:
		return "NHWC"
	default:
		return "NA"
	}
}

// TensorAttr is the cross-runtime descriptor of one tensor: rank, per-
// dimension sizes, element type, quantization, and an informational layout.
type TensorAttr struct {
	Layout Layout
	Type   ElemType
	Dims   []int64 // len(Dims) == Rank, 1 <= Rank <= 8
	Quant  Quant
}

// Rank returns the number of dimensions.
func (a TensorAttr) Rank() int { return len(a.Dims) }

// NumElements returns the product of all dimensions.
func (a TensorAttr) NumElements() int64 {
	var n int64 = 1
	for _, d := range a.Dims {
		n *= d
	}
	return n
}

// Validate checks the invariants from spec §3: rank bounds, quant/type
// compatibility, and affine-per-channel shape consistency.
func (a TensorAttr) Validate() error {
	if a.Rank() < 1 || a.Rank() > 8 {
		return fmt.Errorf("tensor: rank %d out of range [1,8]", a.Rank())
	}
	for i, d := range a.Dims {
		if d <= 0 {
			return fmt.Errorf("tensor: dim[%d]=%d must be positive", i, d)
		}
	}
	switch q := a.Quant.(type) {
	case nil, NoQuant:
		return nil
	case DynamicFixedPoint, AffineAsymmetric:
		if !a.Type.IsInteger() {
			return fmt.Errorf("tensor: quant variant requires an integer element type, got %s", a.Type)
		}
		return nil
	case AffinePerChannel:
		if !a.Type.IsInteger() {
			return fmt.Errorf("tensor: quant variant requires an integer element type, got %s", a.Type)
		}
		if q.Axis < 0 || q.Axis >= a.Rank() {
			return fmt.Errorf("tensor: affine-per-channel axis %d out of range for rank %d", q.Axis, a.Rank())
		}
		n := a.Dims[q.Axis]
		if int64(len(q.Scale)) != n || int64(len(q.ZeroPoint)) != n {
			return fmt.Errorf("tensor: affine-per-channel scale/zero_point length must equal dim[axis]=%d, got %d/%d",
				n, len(q.Scale), len(q.ZeroPoint))
		}
		return nil
	default:
		return fmt.Errorf("tensor: unknown quant variant %T", q)
	}
}

// Equal reports whether two attrs describe the same layout, type, shape, and
// quantization (used by the preproc↔network shape-matching invariant).
func (a TensorAttr) Equal(b TensorAttr) bool {
	if a.Layout != b.Layout || a.Type != b.Type || len(a.Dims) != len(b.Dims) {
		return false
	}
	for i := range a.Dims {
		if a.Dims[i] != b.Dims[i] {
			return false
		}
	}
	return quantEqual(a.Quant, b.Quant)
}

func quantEqual(a, b Quant) bool {
	switch av := a.(type) {
	case nil:
		_, ok := b.(NoQuant)
		return b == nil || ok
	case NoQuant:
		_, ok := b.(NoQuant)
		return ok || b == nil
	case DynamicFixedPoint:
		bv, ok := b.(DynamicFixedPoint)
		return ok && av.FracLen == bv.FracLen
	case AffineAsymmetric:
		bv, ok := b.(AffineAsymmetric)
		return ok && av.Scale == bv.Scale && av.ZeroPoint == bv.ZeroPoint
	case AffinePerChannel:
		bv, ok := b.(AffinePerChannel)
		if !ok || av.Axis != bv.Axis || len(av.Scale) != len(bv.Scale) {
			return false
		}
		for i := range av.Scale {
			if av.Scale[i] != bv.Scale[i] || av.ZeroPoint[i] != bv.ZeroPoint[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}
