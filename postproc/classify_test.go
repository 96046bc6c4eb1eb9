package postproc

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/labels"
	"github.com/harshmittal2210/jevois/preproc"
	"github.com/harshmittal2210/jevois/tensor"
)

func writeLabels(t *testing.T, lines string) *labels.Map {
	path := t.TempDir() + "/labels.txt"
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	m, err := labels.Load(path)
	require.NoError(t, err)
	return m
}

func f32Blob(vals []float32) blob.Blob {
	attr := tensor.TensorAttr{Layout: tensor.LayoutNA, Type: tensor.F32, Dims: []int64{int64(len(vals))}, Quant: tensor.NoQuant{}}
	b := blob.New(attr)
	b.SetFloat32s(vals)
	return b
}

type recordingReporter struct{ lines []string }

func (r *recordingReporter) SendSerial(line string) { r.lines = append(r.lines, line) }

func TestClassifyTopAndThreshold(t *testing.T) {
	labelMap := writeLabels(t, "cat\ndog\nbird\n")
	c := NewClassify(ClassifyConfig{Thresh: 20, Top: 2}, labelMap)

	err := c.Process([]blob.Blob{f32Blob([]float32{0.1, 0.9, 0.3})}, preproc.Context{})
	require.NoError(t, err)

	results := c.Results()
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].ClassID)
	assert.Equal(t, "dog", results[0].Label)
	assert.Equal(t, 2, results[1].ClassID)
}

func TestClassifyNoResultsReportsPlaceholder(t *testing.T) {
	c := NewClassify(ClassifyConfig{Thresh: 90}, nil)
	require.NoError(t, c.Process([]blob.Blob{f32Blob([]float32{0.1, 0.2})}, preproc.Context{}))

	rep := &recordingReporter{}
	c.Report(rep, nil)
	require.Len(t, rep.lines, 1)
	assert.Equal(t, "(no detections above threshold)", rep.lines[0])
}

func TestClassifySoftmaxNormalizes(t *testing.T) {
	c := NewClassify(ClassifyConfig{Softmax: true, Thresh: 0, Top: 3}, nil)
	require.NoError(t, c.Process([]blob.Blob{f32Blob([]float32{1.0, 2.0, 3.0})}, preproc.Context{}))

	var sum float32
	for _, r := range c.Results() {
		sum += r.Score
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Equal(t, 2, c.Results()[0].ClassID) // highest logit wins
}

func TestClassifyReportFormatsPercent(t *testing.T) {
	c := NewClassify(ClassifyConfig{Thresh: 0, Top: 1}, nil)
	require.NoError(t, c.Process([]blob.Blob{f32Blob([]float32{0.5})}, preproc.Context{}))

	rep := &recordingReporter{}
	c.Report(rep, nil)
	require.Len(t, rep.lines, 1)
	assert.Equal(t, "0: 0: 50.00%", rep.lines[0])
}
