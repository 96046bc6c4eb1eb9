// Package npu backs the zoo "nettype: NPU" network: a vendor neural
// processing accelerator. The vendor SDK itself is an external collaborator
// (spec §1); this package specifies the contract a vendor adapter must
// satisfy and provides a minimal reference Executor used when none is
// passed to NewWithExecutor.
package npu

import (
	"fmt"
	"os"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/network"
	"github.com/harshmittal2210/jevois/tensor"
)

func init() {
	network.Register("NPU", New)
}

// Executor is the seam a vendor NPU SDK adapter implements: given raw input
// blobs and declared output attrs, produce the output blobs. Swapping this
// out (via NewWithExecutor) is how a real vendor library plugs in without
// touching the rest of this package.
type Executor interface {
	Forward(blobs []blob.Blob, outAttrs []tensor.TensorAttr) ([]blob.Blob, error)
}

// Network wraps an Executor with the load-state bookkeeping and tensor
// bridging spec §4.3 requires.
type Network struct {
	network.Base
	cfg      network.Config
	inAttrs  []tensor.TensorAttr
	outAttrs []tensor.TensorAttr
	exec     Executor
	frozen   bool
}

// New constructs an NPU network using the reference Executor (echo/zero
// outputs — exercised by tests, never meant for production inference).
// Production builds supply a vendor Executor via NewWithExecutor.
func New(cfg network.Config) (network.Network, error) {
	return NewWithExecutor(cfg, nil)
}

// NewWithExecutor constructs an NPU network using exec. A nil exec falls
// back to the zero-output reference Executor.
func NewWithExecutor(cfg network.Config, exec Executor) (network.Network, error) {
	inAttrs, err := tensor.ParseSpec(cfg.InTensors)
	if err != nil {
		return nil, fmt.Errorf("npu: intensors: %w", err)
	}
	outAttrs, err := tensor.ParseSpec(cfg.OutTensors)
	if err != nil {
		return nil, fmt.Errorf("npu: outtensors: %w", err)
	}
	if exec == nil {
		exec = zeroExecutor{}
	}
	return &Network{cfg: cfg, inAttrs: inAttrs, outAttrs: outAttrs, exec: exec}, nil
}

func (n *Network) Load() error {
	if _, err := os.Stat(n.cfg.ModelPath); err != nil {
		return &network.BackendFailure{Message: "model file not found", Err: err}
	}
	return nil
}

func (n *Network) InputShapes() []tensor.TensorAttr  { return n.inAttrs }
func (n *Network) OutputShapes() []tensor.TensorAttr { return n.outAttrs }
func (n *Network) Freeze(doit bool)                  { n.frozen = doit }

func (n *Network) Process(blobs []blob.Blob, info *network.Info) ([]blob.Blob, error) {
	if !n.Ready() {
		return nil, network.ModelNotLoaded{}
	}
	if err := network.CheckInputs(blobs, n.inAttrs); err != nil {
		return nil, err
	}
	info.Header("NPU forward pass (accelerator=%s, tpunum=%d)", n.cfg.Accelerator, n.cfg.TPUNum)
	outs, err := n.exec.Forward(blobs, n.outAttrs)
	if err != nil {
		return nil, &network.BackendFailure{Message: "NPU executor", Err: err}
	}
	for i, a := range n.outAttrs {
		if i < len(outs) {
			info.Bullet("output %d: %v", i, a)
		}
	}
	return outs, nil
}

// zeroExecutor produces zero-filled outputs matching outAttrs. It exists so
// this package is independently testable without a vendor SDK present.
type zeroExecutor struct{}

func (zeroExecutor) Forward(_ []blob.Blob, outAttrs []tensor.TensorAttr) ([]blob.Blob, error) {
	outs := make([]blob.Blob, len(outAttrs))
	for i, a := range outAttrs {
		outs[i] = blob.New(a)
	}
	return outs, nil
}
