package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopK_TiesBreakByAscendingIndex(t *testing.T) {
	idx, vals := TopK([]float32{0.1, 0.9, 0.9, 0.2}, 2)
	assert.Equal(t, []int{1, 2}, idx)
	assert.Equal(t, []float32{0.9, 0.9}, vals)
}

func TestTopK_ClampsK(t *testing.T) {
	idx, _ := TopK([]float32{1, 2}, 10)
	assert.Len(t, idx, 2)
}

func TestSoftmax_SumsToOne(t *testing.T) {
	out := Softmax([]float32{1.0, 2.0, 3.0}, 1.0)
	want := []float32{0.0900, 0.2447, 0.6652}
	for i := range out {
		assert.InDelta(t, want[i], out[i], 1e-3)
	}
	var sum float32
	for _, v := range out {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestSoftmax_ShiftInvariant(t *testing.T) {
	a := Softmax([]float32{1.0, 2.0, 3.0}, 1.0)
	b := Softmax([]float32{1001.0, 1002.0, 1003.0}, 1.0)
	for i := range a {
		assert.InDelta(t, a[i], b[i], 1e-6)
	}
}

func TestClamp_Idempotent(t *testing.T) {
	r := Rect{X0: -5, Y0: -5, X1: 15, Y1: 15}
	once := Clamp(r, 10, 10)
	twice := Clamp(once, 10, 10)
	assert.Equal(t, once, twice)
}

func TestClamp_DisjointCollapsesToZeroArea(t *testing.T) {
	r := Rect{X0: 20, Y0: 20, X1: 30, Y1: 30}
	c := Clamp(r, 10, 10)
	assert.Equal(t, float32(0), c.Area())
}

func TestIoU_KnownOverlap(t *testing.T) {
	a := Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}
	b := Rect{X0: 1, Y0: 1, X1: 11, Y1: 11}
	iou := IoU(a, b)
	assert.InDelta(t, 0.68, iou, 0.01)
}

func TestLabelToColor_PureFunctionOfLabel(t *testing.T) {
	r1, g1, b1, a1 := LabelToColor("person", 255)
	r2, g2, b2, a2 := LabelToColor("person", 128)
	assert.Equal(t, r1, r2)
	assert.Equal(t, g1, g2)
	assert.Equal(t, b1, b2)
	assert.NotEqual(t, a1, a2)

	r3, _, _, _ := LabelToColor("car", 255)
	assert.NotEqual(t, r1, r3, "different labels should usually hash to different colors")
}
