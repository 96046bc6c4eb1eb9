package pipeline

import (
	"image"
	"image/draw"
	"time"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/network"
	"github.com/harshmittal2210/jevois/postproc"
	"github.com/harshmittal2210/jevois/preproc"
)

// inflightState tracks the single outstanding backgrounded inference, if
// any (spec §4.5: "at most one inference in flight at any moment; results
// are consumed exactly once, in launch order").
type inflightState struct {
	active bool
	future *network.Future[asyncNetResult]
	ctx    preproc.Context
}

// asyncNetResult is everything the background goroutine computes; nothing
// it touches is read by the owning goroutine until Poll/Await report ready,
// so there is no shared mutable state between the two.
type asyncNetResult struct {
	outputs []blob.Blob
	info    []string
	netTime time.Duration
}

// processAsync implements the backgrounded-network variant of Process: the
// network stage's forward pass for one frame runs on its own goroutine while
// the pipeline keeps accepting new frames, preprocessing them and polling
// for the prior inference's completion. A frame whose inference is not yet
// done simply re-reports the previously decoded results, giving the overlay
// a one-inference latency rather than blocking the caller.
func (c *Controller) processAsync(img image.Image, rep postproc.Reporter, dst draw.Image) {
	c.state = RunningAsyncInflight

	if c.inflight.active {
		if result, err, ready := c.inflight.future.Poll(); ready {
			ctx := c.inflight.ctx
			c.inflight = inflightState{}
			if err != nil {
				c.fail(err)
				return
			}
			c.lastInfo = result.info
			c.netTiming.add(result.netTime)
			if err := c.runPost(result.outputs, ctx); err != nil {
				c.fail(err)
				return
			}
			c.frames++
		}
	}

	if !c.inflight.active {
		t0 := time.Now()
		blobs, ctx, err := c.pre.Process(img, c.net.InputShapes())
		c.preTiming.add(time.Since(t0))
		if err != nil {
			c.fail(err)
			return
		}
		c.inflight.active = true
		c.inflight.ctx = ctx
		net := c.net
		entry := c.entry
		c.inflight.future = network.Go(func() (asyncNetResult, error) {
			t1 := time.Now()
			info := &network.Info{}
			outputs, err := net.Process(blobs, info)
			elapsed := time.Since(t1)
			if err != nil {
				return asyncNetResult{}, err
			}
			outputs, err = network.Shape(outputs, outputNames(outputs), shapingConfigFor(entry))
			if err != nil {
				return asyncNetResult{}, err
			}
			return asyncNetResult{outputs: outputs, info: info.Lines(), netTime: elapsed}, nil
		})
	}

	c.state = Ready
	c.post.Report(rep, dst)
}
