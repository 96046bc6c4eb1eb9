package postproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/tensor"
)

func rawYOLOBlob(a, ch, gy, gx int, set map[[4]int]float32) blob.Blob {
	attr := tensor.TensorAttr{
		Layout: tensor.LayoutNA, Type: tensor.F32,
		Dims: []int64{int64(a), int64(ch), int64(gy), int64(gx)}, Quant: tensor.NoQuant{},
	}
	b := blob.New(attr)
	vals := make([]float32, a*ch*gy*gx)
	idx := func(ai, ci, yi, xi int) int { return ((ai*ch+ci)*gy+yi)*gx + xi }
	for k, v := range set {
		vals[idx(k[0], k[1], k[2], k[3])] = v
	}
	b.SetFloat32s(vals)
	return b
}

func TestDecodeRawYOLOScenario5(t *testing.T) {
	cfg := DetectConfig{
		Type: RAWYOLOv3, NMS: 50, Thresh: 90, Classes: 1,
		InputWidth: 416, InputHeight: 416, Anchors: "10,14,23,27,37,58",
	}
	d, err := NewDetect(cfg, nil)
	require.NoError(t, err)

	out := rawYOLOBlob(3, 6, 13, 13, map[[4]int]float32{
		{0, 4, 0, 0}: 5, // to
		{0, 5, 0, 0}: 5, // tc0
	})

	require.NoError(t, d.Process([]blob.Blob{out}, identityCtx(416)))

	results := d.Results()
	require.Len(t, results, 1)
	det := results[0]
	assert.Equal(t, 0, det.ClassID)
	assert.Greater(t, det.Score, float32(0.9))

	cx := (det.Rect.X0 + det.Rect.X1) / 2
	cy := (det.Rect.Y0 + det.Rect.Y1) / 2
	assert.InDelta(t, 16.0, cx, 0.5)
	assert.InDelta(t, 16.0, cy, 0.5)
	assert.InDelta(t, 10.0, det.Rect.Width(), 0.5)
	assert.InDelta(t, 14.0, det.Rect.Height(), 0.5)
}

func TestDecodeRawYOLOAnchorMismatch(t *testing.T) {
	cfg := DetectConfig{
		Type: RAWYOLOv3, Classes: 1, InputWidth: 416, InputHeight: 416,
		Anchors: "10,14,23,27; 37,58", // 2 groups, but only 1 output layer below
	}
	d, err := NewDetect(cfg, nil)
	require.NoError(t, err)

	out := rawYOLOBlob(1, 6, 13, 13, nil)
	err = d.Process([]blob.Blob{out}, identityCtx(416))
	require.Error(t, err)
	var am AnchorMismatch
	require.ErrorAs(t, err, &am)
}

func TestDecodeRawYOLOSharedAnchorGroupAppliesToAllLayers(t *testing.T) {
	cfg := DetectConfig{
		Type: RAWYOLOv4, Classes: 1, Thresh: 5, InputWidth: 416, InputHeight: 416,
		Anchors: "10,14",
	}
	d, err := NewDetect(cfg, nil)
	require.NoError(t, err)

	layer1 := rawYOLOBlob(1, 6, 13, 13, nil)
	layer2 := rawYOLOBlob(1, 6, 26, 26, nil)
	err = d.Process([]blob.Blob{layer1, layer2}, identityCtx(416))
	require.NoError(t, err)
}

func TestParseAnchorGroupsRejectsOddCount(t *testing.T) {
	_, err := parseAnchorGroups("10,14,23")
	require.Error(t, err)
}

func TestParseAnchorGroupsMultipleLayers(t *testing.T) {
	groups, err := parseAnchorGroups("10,14,23,27; 37,58,81,82")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []float32{10, 14, 23, 27}, groups[0])
	assert.Equal(t, []float32{37, 58, 81, 82}, groups[1])
}
