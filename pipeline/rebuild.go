package pipeline

import (
	"fmt"

	"github.com/harshmittal2210/jevois/network"
	"github.com/harshmittal2210/jevois/postproc"
	"github.com/harshmittal2210/jevois/preproc"
	"github.com/harshmittal2210/jevois/tensor"
	"github.com/harshmittal2210/jevois/zoo"
)

// maybeRebuild applies any pending SetZoo/SetFilter/SetPipe request, running
// the 5-step reconfiguration sequence of spec §4.5. It reports whether a
// rebuild ran (in which case the caller's Process() should return without
// processing this frame: the network has just started loading).
func (c *Controller) maybeRebuild() bool {
	c.pendingMu.Lock()
	dirty := c.dirty
	zooPath, haveZooPath := c.pendingZooPath, c.haveZooPath
	filter, haveFilter := c.pendingFilter, c.haveFilter
	pipe, havePipe := c.pendingPipe, c.havePipe
	c.dirty = false
	c.pendingMu.Unlock()

	if !dirty {
		return false
	}

	// Step 1: wait out any outstanding load or in-flight async inference,
	// discarding its result, before tearing anything down.
	c.drainOutstandingWork()

	// Step 2: tear down stages in reverse construction order.
	c.teardownStages()

	if haveZooPath {
		z, err := zoo.Load(zooPath)
		if err != nil {
			c.fail(err)
			return true
		}
		c.z = z
	}
	if haveFilter {
		c.filter = filter
	}
	if havePipe {
		c.pipe = pipe
	}

	if c.z == nil || c.pipe == "" {
		c.state = Idle
		return true
	}
	entry, ok := c.z.Entry(c.pipe)
	if !ok {
		c.fail(fmt.Errorf("pipeline: zoo has no pipe named %q", c.pipe))
		return true
	}
	if !c.filter.Matches(entry.NetType) {
		c.fail(fmt.Errorf("pipeline: pipe %q (nettype %q) excluded by the active filter", c.pipe, entry.NetType))
		return true
	}
	c.entry = entry

	// Step 3: construct stages per the selected entry.
	if err := c.buildStages(entry); err != nil {
		c.fail(err)
		return true
	}

	// Step 4: kick off network.load() in the background; state becomes
	// Loading. Step 5 (short-circuiting further Process() calls until
	// Ready()) is handled by the caller checking c.net.Ready().
	c.threw = false
	c.lastErr = nil
	if c.net == nil {
		// entry.NetType == "Custom": nothing to load until SetCustomNetwork
		// installs an implementation.
		c.state = Idle
		return true
	}
	c.state = Loading
	if base, ok := c.net.(interface{ RunLoad(func() error) *network.Future[struct{}] }); ok {
		base.RunLoad(c.net.Load)
	} else {
		// A Custom network has no Base to background through; load inline.
		if err := c.net.Load(); err != nil {
			c.fail(err)
		}
	}
	return true
}

func (c *Controller) drainOutstandingWork() {
	if c.net != nil {
		c.net.WaitBeforeDestroy()
	}
	if c.inflight.active {
		c.inflight.future.Await()
		c.inflight = inflightState{}
	}
}

func (c *Controller) teardownStages() {
	c.post = nil
	c.net = nil
	c.pre = nil
	c.customPre, c.customNet, c.customPost = nil, nil, nil
}

// buildStages constructs the three stages for entry, applying every
// parameter the zoo table (spec §6) names.
func (c *Controller) buildStages(entry zoo.Entry) error {
	if entry.Preproc != "Custom" {
		crop, err := preproc.ParseCropMode(entry.Resize)
		if err != nil {
			return err
		}
		pre, err := preproc.NewPreProcessor(entry.Preproc, preproc.Config{
			Crop:  crop,
			Mean:  entry.Mean,
			Scale: entry.Scale,
			RGB:   entry.RGB,
		})
		if err != nil {
			return err
		}
		c.pre = pre
	}

	if entry.NetType != "Custom" {
		net, err := network.New(entry.NetType, network.Config{
			ModelPath:   c.z.ResolvePath(entry.Model),
			ConfigPath:  c.z.ResolvePath(entry.Config),
			InTensors:   entry.InTensors,
			OutTensors:  entry.OutTensors,
			Target:      entry.Target,
			Backend:     entry.Backend,
			TPUNum:      entry.TPUNum,
			Accelerator: entry.Accelerator,
			Shaping:     shapingConfigFor(entry),
		})
		if err != nil {
			return err
		}
		c.net = net
	}

	if entry.PostProc != "Custom" {
		post, err := c.buildPostProc(entry)
		if err != nil {
			return err
		}
		c.post = post
	}

	c.lastInfo = nil
	return nil
}

func (c *Controller) buildPostProc(entry zoo.Entry) (postproc.PostProcessor, error) {
	labelMap, err := labelsFromEntry(c.z, entry)
	if err != nil {
		return nil, err
	}

	switch entry.PostProc {
	case "Classify", "":
		return postproc.NewClassify(postproc.ClassifyConfig{
			Softmax:     entry.Softmax,
			ScoreScale:  entry.ScoreScale,
			Thresh:      entry.Thresh,
			Top:         entry.Top,
			ClassOffset: entry.ClassOffset,
		}, labelMap), nil

	case "Detect":
		detType, err := postproc.ParseDetectType(entry.DetectType)
		if err != nil {
			return nil, err
		}
		w, h, err := c.detectInputSize(detType, entry)
		if err != nil {
			return nil, err
		}
		return postproc.NewDetect(postproc.DetectConfig{
			Type:        detType,
			NMS:         entry.NMS,
			Thresh:      entry.Thresh,
			Alpha:       uint8(entry.Alpha),
			Classes:     labelMap.Len(),
			ClassOffset: entry.ClassOffset,
			Anchors:     entry.Anchors,
			InputWidth:  w,
			InputHeight: h,
		}, labelMap)

	case "Segment":
		segType, err := postproc.ParseSegType(entry.SegType)
		if err != nil {
			return nil, err
		}
		return postproc.NewSegment(postproc.SegmentConfig{
			Type:  segType,
			Alpha: uint8(entry.Alpha),
			BgID:  entry.BgID,
		}, labelMap), nil

	default:
		return nil, fmt.Errorf("pipeline: unknown postproc %q", entry.PostProc)
	}
}

// detectInputSize resolves the network's declared input spatial size,
// needed by RAWYOLO decoders to derive per-layer stride.
func (c *Controller) detectInputSize(detType postproc.DetectType, entry zoo.Entry) (w, h int, err error) {
	attrs, err := tensor.ParseSpec(entry.InTensors)
	if err != nil {
		return 0, 0, err
	}
	return inputSpatialSize(attrs)
}

