// Package opencv backs the zoo "nettype: OpenCV" network: a general-purpose
// CPU/GPU backend using OpenCV's DNN module (gocv.io/x/gocv). It registers
// itself with package network via init(), per that package's doc comment.
package opencv

import (
	"fmt"
	"os"

	"gocv.io/x/gocv"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/network"
	"github.com/harshmittal2210/jevois/tensor"
)

func init() {
	network.Register("OpenCV", New)
}

// Network wraps a gocv.Net loaded from a zoo entry's model/config paths.
// The forward pass itself is gocv's concern; this type owns only the
// load-state bookkeeping and the TensorAttr bridging spec §4.3 requires.
type Network struct {
	network.Base
	cfg network.Config
	net gocv.Net

	inAttrs, outAttrs []tensor.TensorAttr
	frozen            bool
}

// New constructs an OpenCV network from cfg. Load is not started here; the
// pipeline controller backgrounds it via Base.RunLoad.
func New(cfg network.Config) (network.Network, error) {
	inAttrs, err := tensor.ParseSpec(cfg.InTensors)
	if err != nil {
		return nil, fmt.Errorf("opencv: intensors: %w", err)
	}
	outAttrs, err := tensor.ParseSpec(cfg.OutTensors)
	if err != nil {
		return nil, fmt.Errorf("opencv: outtensors: %w", err)
	}
	return &Network{cfg: cfg, inAttrs: inAttrs, outAttrs: outAttrs}, nil
}

// Load reads the model (and optional config) file into an OpenCV net. It is
// the synchronous function the pipeline controller backgrounds.
func (n *Network) Load() error {
	if _, err := os.Stat(n.cfg.ModelPath); err != nil {
		return &network.BackendFailure{Message: "model file not found", Err: err}
	}
	var net gocv.Net
	if n.cfg.ConfigPath != "" {
		net = gocv.ReadNet(n.cfg.ModelPath, n.cfg.ConfigPath)
	} else {
		net = gocv.ReadNetFromONNX(n.cfg.ModelPath)
	}
	if net.Empty() {
		return &network.BackendFailure{Message: fmt.Sprintf("gocv.ReadNet returned an empty net for %q", n.cfg.ModelPath)}
	}
	if err := applyTarget(&net, n.cfg.Backend, n.cfg.Target); err != nil {
		net.Close()
		return err
	}
	n.net = net
	return nil
}

func applyTarget(net *gocv.Net, backend, target string) error {
	if backend != "" {
		be, ok := backendCodes[backend]
		if !ok {
			return &network.BackendFailure{Message: fmt.Sprintf("unknown OpenCV backend %q", backend)}
		}
		if err := net.SetPreferableBackend(be); err != nil {
			return &network.BackendFailure{Message: "SetPreferableBackend", Err: err}
		}
	}
	if target != "" {
		t, ok := targetCodes[target]
		if !ok {
			return &network.BackendFailure{Message: fmt.Sprintf("unknown OpenCV target %q", target)}
		}
		if err := net.SetPreferableTarget(t); err != nil {
			return &network.BackendFailure{Message: "SetPreferableTarget", Err: err}
		}
	}
	return nil
}

var backendCodes = map[string]gocv.NetBackendType{
	"Default": gocv.NetBackendDefault,
	"OpenCV":  gocv.NetBackendOpenCV,
	"CUDA":    gocv.NetBackendCUDA,
}

var targetCodes = map[string]gocv.NetTargetType{
	"CPU":  gocv.NetTargetCPU,
	"CUDA": gocv.NetTargetCUDA,
	"OCL":  gocv.NetTargetOpenCL,
}

func (n *Network) InputShapes() []tensor.TensorAttr  { return n.inAttrs }
func (n *Network) OutputShapes() []tensor.TensorAttr { return n.outAttrs }

func (n *Network) Freeze(doit bool) { n.frozen = doit }

// Process runs one forward pass. Outputs are bridged back from gocv.Mat into
// Blobs matching n.outAttrs, in declared order (spec §3 "Output set").
func (n *Network) Process(blobs []blob.Blob, info *network.Info) ([]blob.Blob, error) {
	if !n.Ready() {
		return nil, network.ModelNotLoaded{}
	}
	if err := network.CheckInputs(blobs, n.inAttrs); err != nil {
		return nil, err
	}

	info.Header("OpenCV DNN forward pass")
	mats := make([]gocv.Mat, len(blobs))
	for i, b := range blobs {
		mats[i] = blobToMat(b)
		defer mats[i].Close()
	}
	input := mats[0]
	n.net.SetInput(input, "")

	outNames := n.net.GetUnconnectedOutLayersNames()
	outs := n.net.ForwardLayers(outNames)
	defer func() {
		for _, m := range outs {
			m.Close()
		}
	}()

	results := make([]blob.Blob, len(n.outAttrs))
	for i, attr := range n.outAttrs {
		if i >= len(outs) {
			return nil, &network.ShapeMismatch{Reason: fmt.Sprintf("backend returned %d outputs, declared %d", len(outs), len(n.outAttrs))}
		}
		results[i] = matToBlob(outs[i], attr)
		info.Bullet("output %d: %v", i, attr)
	}
	return results, nil
}

func (n *Network) WaitBeforeDestroy() {
	n.Base.WaitBeforeDestroy()
	if !n.net.Empty() {
		n.net.Close()
	}
}
