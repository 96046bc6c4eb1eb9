package npu

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/network"
	"github.com/harshmittal2210/jevois/tensor"
)

func tmpModelFile(t *testing.T) string {
	f, err := os.CreateTemp(t.TempDir(), "model-*.bin")
	require.NoError(t, err)
	defer f.Close()
	return f.Name()
}

func baseCfg(t *testing.T) network.Config {
	return network.Config{
		ModelPath:  tmpModelFile(t),
		InTensors:  "NHWC:8U:1x2x2x3",
		OutTensors: "NA:32F:1x4",
	}
}

func TestNewWithExecutorRejectsMalformedTensors(t *testing.T) {
	cfg := baseCfg(t)
	cfg.InTensors = "not a spec"
	_, err := New(cfg)
	require.Error(t, err)
}

func TestLoadFailsWhenModelMissing(t *testing.T) {
	cfg := baseCfg(t)
	cfg.ModelPath = "/nonexistent/path/model.bin"
	n, err := New(cfg)
	require.NoError(t, err)
	err = n.Load()
	require.Error(t, err)
	var bf *network.BackendFailure
	require.ErrorAs(t, err, &bf)
}

func TestProcessBeforeReadyReturnsModelNotLoaded(t *testing.T) {
	cfg := baseCfg(t)
	n, err := New(cfg)
	require.NoError(t, err)

	inAttr, _ := tensor.ParseSpec(cfg.InTensors)
	blobs := []blob.Blob{blob.New(inAttr[0])}
	_, err = n.Process(blobs, &network.Info{})
	assert.Equal(t, network.ModelNotLoaded{}, err)
}

func TestProcessUsesReferenceZeroExecutorAfterLoad(t *testing.T) {
	cfg := baseCfg(t)
	n, err := New(cfg)
	require.NoError(t, err)

	// Load() alone does not flip the Base bookkeeping; RunLoad does.
	base := n.(*Network)
	loadFuture := base.RunLoad(func() error { return nil })
	_, err = loadFuture.Await()
	require.NoError(t, err)
	require.True(t, n.Ready())

	inAttr, _ := tensor.ParseSpec(cfg.InTensors)
	outAttr, _ := tensor.ParseSpec(cfg.OutTensors)
	blobs := []blob.Blob{blob.New(inAttr[0])}

	info := &network.Info{}
	outs, err := n.Process(blobs, info)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.True(t, outs[0].Attr.Equal(outAttr[0]))
	assert.NotEmpty(t, info.Lines())
}

func TestProcessWrapsExecutorErrorAsBackendFailure(t *testing.T) {
	cfg := baseCfg(t)
	wantErr := errors.New("vendor sdk failure")
	n, err := NewWithExecutor(cfg, failingExecutor{err: wantErr})
	require.NoError(t, err)

	base := n.(*Network)
	loadFuture := base.RunLoad(func() error { return nil })
	_, _ = loadFuture.Await()

	inAttr, _ := tensor.ParseSpec(cfg.InTensors)
	blobs := []blob.Blob{blob.New(inAttr[0])}
	_, err = n.Process(blobs, &network.Info{})
	require.Error(t, err)
	var bf *network.BackendFailure
	require.ErrorAs(t, err, &bf)
}

type failingExecutor struct{ err error }

func (f failingExecutor) Forward(_ []blob.Blob, _ []tensor.TensorAttr) ([]blob.Blob, error) {
	return nil, f.err
}
