package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// MalformedSpec reports a tensor-spec string that failed to parse: an
// unrecognized field, an unparseable shape, a quant variant missing its
// required numeric fields, or a quant variant attached to an incompatible
// element type.
type MalformedSpec struct {
	Input  string
	Reason string
}

func (e *MalformedSpec) Error() string {
	return fmt.Sprintf("tensor: malformed spec %q: %s", e.Input, e.Reason)
}

var typeCodes = map[string]ElemType{
	"8U":  U8,
	"8S":  I8,
	"16U": U16,
	"16S": I16,
	"32U": U32,
	"32S": I32,
	"16F": F16,
	"32F": F32,
	"1B":  Bool,
}

var layoutCodes = map[string]Layout{
	"NCHW": NCHW,
	"NHWC": NHWC,
	"NA":   LayoutNA,
}

// ParseSpec parses a comma-separated list of colon-separated tensor
// descriptors as defined in spec §4.1. Empty input yields an empty (nil)
// list and a nil error.
func ParseSpec(s string) ([]TensorAttr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	attrs := make([]TensorAttr, 0, len(parts))
	for _, p := range parts {
		attr, err := parseOne(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func parseOne(s string) (TensorAttr, error) {
	fields := strings.Split(s, ":")
	if len(fields) < 3 {
		return TensorAttr{}, &MalformedSpec{Input: s, Reason: "need at least layout:type:shape"}
	}

	layout, ok := layoutCodes[fields[0]]
	if !ok {
		return TensorAttr{}, &MalformedSpec{Input: s, Reason: fmt.Sprintf("unrecognized layout %q", fields[0])}
	}

	elemType, ok := typeCodes[fields[1]]
	if !ok {
		return TensorAttr{}, &MalformedSpec{Input: s, Reason: fmt.Sprintf("unrecognized type code %q", fields[1])}
	}

	dims, err := parseShape(fields[2])
	if err != nil {
		return TensorAttr{}, &MalformedSpec{Input: s, Reason: err.Error()}
	}

	attr := TensorAttr{Layout: layout, Type: elemType, Dims: dims, Quant: NoQuant{}}

	if len(fields) > 3 {
		quant, err := parseQuant(fields[3], fields[4:], elemType)
		if err != nil {
			return TensorAttr{}, &MalformedSpec{Input: s, Reason: err.Error()}
		}
		attr.Quant = quant
	}

	if err := attr.Validate(); err != nil {
		return TensorAttr{}, &MalformedSpec{Input: s, Reason: err.Error()}
	}
	return attr, nil
}

func parseShape(s string) ([]int64, error) {
	parts := strings.Split(s, "x")
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty shape")
	}
	dims := make([]int64, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad dimension %q: %w", p, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("dimension %q must be positive", p)
		}
		dims = append(dims, d)
	}
	return dims, nil
}

func parseQuant(kind string, rest []string, elemType ElemType) (Quant, error) {
	switch kind {
	case "AA":
		if len(rest) < 2 {
			return nil, fmt.Errorf("AA quant requires scale and zero_point")
		}
		scale, err := strconv.ParseFloat(rest[0], 32)
		if err != nil {
			return nil, fmt.Errorf("bad AA scale %q: %w", rest[0], err)
		}
		zp, err := strconv.ParseInt(rest[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad AA zero_point %q: %w", rest[1], err)
		}
		if !elemType.IsInteger() {
			return nil, fmt.Errorf("AA quant requires an integer element type, got %s", elemType)
		}
		return AffineAsymmetric{Scale: float32(scale), ZeroPoint: int32(zp)}, nil
	case "DFP":
		if len(rest) < 1 {
			return nil, fmt.Errorf("DFP quant requires a fractional length")
		}
		fl, err := strconv.Atoi(rest[0])
		if err != nil {
			return nil, fmt.Errorf("bad DFP fractional length %q: %w", rest[0], err)
		}
		if !elemType.IsInteger() {
			return nil, fmt.Errorf("DFP quant requires an integer element type, got %s", elemType)
		}
		return DynamicFixedPoint{FracLen: fl}, nil
	default:
		return nil, fmt.Errorf("unrecognized quant variant %q", kind)
	}
}

// FormatSpec is the inverse of ParseSpec: it renders attrs back into the
// comma-separated colon-delimited grammar. Round-tripping through
// ParseSpec(FormatSpec(attrs)) yields logically equal attrs (modulo
// whitespace), per spec §8.
func FormatSpec(attrs []TensorAttr) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		parts = append(parts, formatOne(a))
	}
	return strings.Join(parts, ", ")
}

func formatOne(a TensorAttr) string {
	dims := make([]string, len(a.Dims))
	for i, d := range a.Dims {
		dims[i] = strconv.FormatInt(d, 10)
	}
	s := fmt.Sprintf("%s:%s:%s", a.Layout, typeCode(a.Type), strings.Join(dims, "x"))
	switch q := a.Quant.(type) {
	case AffineAsymmetric:
		s += fmt.Sprintf(":AA:%v:%d", q.Scale, q.ZeroPoint)
	case DynamicFixedPoint:
		s += fmt.Sprintf(":DFP:%d", q.FracLen)
	}
	return s
}

func typeCode(t ElemType) string {
	for code, et := range typeCodes {
		if et == t {
			return code
		}
	}
	return t.String()
}
