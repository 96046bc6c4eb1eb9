package pipeline

import (
	"image"
	"image/draw"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/network"
	"github.com/harshmittal2210/jevois/postproc"
	"github.com/harshmittal2210/jevois/preproc"
	"github.com/harshmittal2210/jevois/tensor"
	"github.com/harshmittal2210/jevois/zoo"
)

const customZoo = `
custom:
  preproc: Custom
  nettype: Custom
  postproc: Custom
`

func writeZoo(t *testing.T, content string) string {
	path := t.TempDir() + "/zoo.yml"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type fakePre struct {
	blobs []blob.Blob
	ctx   preproc.Context
	err   error
}

func (f *fakePre) Process(_ image.Image, _ []tensor.TensorAttr) ([]blob.Blob, preproc.Context, error) {
	return f.blobs, f.ctx, f.err
}
func (f *fakePre) Freeze(bool) {}

type fakePost struct {
	order []int
}

func (p *fakePost) Process(outputs []blob.Blob, _ preproc.Context) error {
	p.order = append(p.order, int(outputs[0].Float32s()[0]))
	return nil
}
func (p *fakePost) Report(rep postproc.Reporter, _ draw.Image) {
	if rep != nil {
		rep.SendSerial("ok")
	}
}
func (p *fakePost) Freeze(bool) {}

func idBlob(id int) blob.Blob {
	attr := tensor.TensorAttr{Layout: tensor.LayoutNA, Type: tensor.F32, Dims: []int64{1}, Quant: tensor.NoQuant{}}
	b := blob.New(attr)
	b.SetFloat32s([]float32{float32(id)})
	return b
}

// syncNet is a minimal, always-ready, non-blocking fake Network.
type syncNet struct {
	out blob.Blob
	err error
}

func (n *syncNet) Load() error                       { return nil }
func (n *syncNet) InputShapes() []tensor.TensorAttr  { return nil }
func (n *syncNet) OutputShapes() []tensor.TensorAttr { return nil }
func (n *syncNet) Process(_ []blob.Blob, _ *network.Info) ([]blob.Blob, error) {
	if n.err != nil {
		return nil, n.err
	}
	return []blob.Blob{n.out}, nil
}
func (n *syncNet) Freeze(bool)        {}
func (n *syncNet) Ready() bool        { return true }
func (n *syncNet) WaitBeforeDestroy() {}

func TestSyncProcessDecodesAndReports(t *testing.T) {
	c := NewController(writeZoo(t, customZoo), zoo.All, "custom", false)
	c.Process(nil, nil, nil) // first call only rebuilds (Custom stages start nil)
	require.Equal(t, Idle, c.State())

	require.NoError(t, c.SetCustomPreProc(&fakePre{blobs: []blob.Blob{idBlob(7)}}))
	require.NoError(t, c.SetCustomNetwork(&syncNet{out: idBlob(42)}))
	post := &fakePost{}
	require.NoError(t, c.SetCustomPostProc(post))

	c.Process(nil, nil, nil)
	require.Equal(t, Ready, c.State())
	assert.Equal(t, []int{42}, post.order)
	assert.EqualValues(t, 1, c.Stats().Frames)
}

func TestSyncProcessFailureEntersErrorState(t *testing.T) {
	c := NewController(writeZoo(t, customZoo), zoo.All, "custom", false)
	c.Process(nil, nil, nil)

	require.NoError(t, c.SetCustomPreProc(&fakePre{blobs: []blob.Blob{idBlob(1)}}))
	require.NoError(t, c.SetCustomNetwork(&syncNet{err: assert.AnError}))
	require.NoError(t, c.SetCustomPostProc(&fakePost{}))

	c.Process(nil, nil, nil)
	assert.Equal(t, Error, c.State())
	assert.ErrorIs(t, c.Stats().LastError, assert.AnError)

	// Further frames are skipped until reconfiguration; state stays Error.
	c.Process(nil, nil, nil)
	assert.Equal(t, Error, c.State())
}

func TestCustomInstallRejectedWhenEntryIsNotCustom(t *testing.T) {
	c := NewController(writeZoo(t, "p:\n  preproc: Blob\n  nettype: Custom\n  postproc: Custom\n"), zoo.All, "p", false)
	c.Process(nil, nil, nil)

	err := c.SetCustomPreProc(&fakePre{})
	assert.Error(t, err)
}

// gatedNet blocks inside Process until release is signaled, after
// announcing it has started via started. Each call returns a monotonically
// numbered output blob.
type gatedNet struct {
	started chan struct{}
	release chan struct{}
	counter int64
}

func (n *gatedNet) Load() error                       { return nil }
func (n *gatedNet) InputShapes() []tensor.TensorAttr  { return nil }
func (n *gatedNet) OutputShapes() []tensor.TensorAttr { return nil }
func (n *gatedNet) Process(_ []blob.Blob, _ *network.Info) ([]blob.Blob, error) {
	n.started <- struct{}{}
	<-n.release
	id := atomic.AddInt64(&n.counter, 1)
	return []blob.Blob{idBlob(int(id))}, nil
}
func (n *gatedNet) Freeze(bool)        {}
func (n *gatedNet) Ready() bool        { return true }
func (n *gatedNet) WaitBeforeDestroy() {}

func TestAsyncConsumesExactlyOnceInLaunchOrder(t *testing.T) {
	c := NewController(writeZoo(t, customZoo), zoo.All, "custom", true)
	c.Process(nil, nil, nil) // rebuild only

	require.NoError(t, c.SetCustomPreProc(&fakePre{blobs: []blob.Blob{idBlob(0)}}))
	net := &gatedNet{started: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, c.SetCustomNetwork(net))
	post := &fakePost{}
	require.NoError(t, c.SetCustomPostProc(post))

	const rounds = 3
	for i := 0; i < rounds; i++ {
		// Round 0 launches the first inference here; later rounds' inference
		// was already launched by the call that consumed the previous result.
		c.Process(nil, nil, nil)
		select {
		case <-net.started:
		case <-time.After(time.Second):
			t.Fatalf("round %d: network never started", i)
		}

		// A frame arriving while busy must not launch a second inference and
		// must just re-report the previous (possibly empty) results.
		c.Process(nil, nil, nil)
		assert.Equal(t, i, len(post.order))

		net.release <- struct{}{}

		// The next Process() call consumes the just-finished inference and
		// launches the next one.
		deadline := time.After(time.Second)
		for len(post.order) != i+1 {
			c.Process(nil, nil, nil)
			select {
			case <-deadline:
				t.Fatalf("round %d: result never consumed", i)
			default:
			}
		}
	}

	assert.Equal(t, []int{1, 2, 3}, post.order)
}
