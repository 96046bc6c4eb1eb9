package tensor

import (
	"hash/fnv"
	"math"
	"sort"
)

// Rect is an axis-aligned rectangle in image coordinates, [X0,X1)×[Y0,Y1).
type Rect struct {
	X0, Y0, X1, Y1 float32
}

// Width returns X1-X0, or 0 if the rectangle has collapsed.
func (r Rect) Width() float32 {
	if r.X1 <= r.X0 {
		return 0
	}
	return r.X1 - r.X0
}

// Height returns Y1-Y0, or 0 if the rectangle has collapsed.
func (r Rect) Height() float32 {
	if r.Y1 <= r.Y0 {
		return 0
	}
	return r.Y1 - r.Y0
}

// Area returns Width()*Height().
func (r Rect) Area() float32 { return r.Width() * r.Height() }

// Clamp returns the intersection of r with [0,W)×[0,H), collapsing to a
// zero-area rectangle on the nearest image edge when disjoint. Idempotent:
// Clamp(Clamp(r)) == Clamp(r).
func Clamp(r Rect, w, h float32) Rect {
	x0 := clampf(r.X0, 0, w)
	y0 := clampf(r.Y0, 0, h)
	x1 := clampf(r.X1, 0, w)
	y1 := clampf(r.Y1, 0, h)
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IoU returns the intersection-over-union of two rectangles.
func IoU(a, b Rect) float64 {
	ix0 := math.Max(float64(a.X0), float64(b.X0))
	iy0 := math.Max(float64(a.Y0), float64(b.Y0))
	ix1 := math.Min(float64(a.X1), float64(b.X1))
	iy1 := math.Min(float64(a.Y1), float64(b.Y1))
	if ix1 <= ix0 || iy1 <= iy0 {
		return 0
	}
	inter := (ix1 - ix0) * (iy1 - iy0)
	union := float64(a.Area()) + float64(b.Area()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// TopK returns the indices and values of the k largest entries of scores, in
// descending score order, ties broken by ascending index. k is clamped to
// len(scores).
func TopK(scores []float32, k int) (indices []int, values []float32) {
	if k > len(scores) {
		k = len(scores)
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		si, sj := scores[idx[i]], scores[idx[j]]
		if si != sj {
			return si > sj
		}
		return idx[i] < idx[j]
	})
	idx = idx[:k]
	vals := make([]float32, k)
	for i, ix := range idx {
		vals[i] = scores[ix]
	}
	return idx, vals
}

// Softmax computes a numerically stable softmax with temperature fac: the
// max is subtracted before exponentiating, and each exponent is divided by
// fac before summation.
func Softmax(in []float32, fac float32) []float32 {
	out := make([]float32, len(in))
	if len(in) == 0 {
		return out
	}
	max32 := in[0]
	for _, v := range in[1:] {
		if v > max32 {
			max32 = v
		}
	}
	var sum float64
	for i, v := range in {
		e := math.Exp(float64(v-max32) / float64(fac))
		out[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// LabelToColor hashes a label string to a stable 32-bit RGBA color (FNV-1a
// over the label; R, G, B are the hash's three low bytes), with alpha set by
// the caller. Equal labels
// always render the same color; alpha is excluded from the hash.
func LabelToColor(label string, alpha uint8) (r, g, b, a uint8) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(label))
	v := h.Sum32()
	return uint8(v >> 16), uint8(v >> 8), uint8(v), alpha
}
