// Package tpu backs the zoo "nettype: TPU" network: an Edge TPU accelerator,
// possibly one of several attached devices. Device assignment (spec §6's
// "accelerator" key, used to assign tpunum when multiple accelerators are
// present) is handled by Pool, a round-robin assignment grounded on the
// teacher's load-balancer shape (sim/loadbalancer.go, sim/routing.go
// RoundRobin) adapted from picking a simulated replica to picking a
// physical device index.
package tpu

import (
	"fmt"
	"os"
	"sync"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/network"
	"github.com/harshmittal2210/jevois/tensor"
)

func init() {
	network.Register("TPU", New)
}

// Device describes one attached Edge TPU.
type Device struct {
	Num   int
	Label string // the "accelerator" label matched against a zoo entry's request
}

// Pool assigns a tpunum to each new network instance, round-robin among the
// devices matching a requested accelerator label (or among all devices if no
// label is given).
type Pool struct {
	mu      sync.Mutex
	devices []Device
	next    int
}

// NewPool constructs a Pool over the given devices.
func NewPool(devices []Device) *Pool {
	return &Pool{devices: devices}
}

// Assign returns the tpunum of the next device matching label in round-robin
// order. An empty label matches any device. Returns an error if no device
// matches.
func (p *Pool) Assign(label string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []Device
	for _, d := range p.devices {
		if label == "" || d.Label == label {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return 0, fmt.Errorf("tpu: no attached device matches accelerator %q", label)
	}
	d := candidates[p.next%len(candidates)]
	p.next++
	return d.Num, nil
}

// DefaultPool is the process-wide pool New and NewWithExecutor consult when
// a zoo entry's tpunum is unset (0) but requests an accelerator label. It
// starts empty; nothing in this module adds devices to it.
var DefaultPool = NewPool(nil)

// Network wraps the documented Edge TPU contract. The vendor runtime is an
// external collaborator (spec §1); Executor is the seam it plugs into.
type Executor interface {
	Forward(blobs []blob.Blob, outAttrs []tensor.TensorAttr, tpunum int) ([]blob.Blob, error)
}

type Network struct {
	network.Base
	cfg      network.Config
	tpunum   int
	inAttrs  []tensor.TensorAttr
	outAttrs []tensor.TensorAttr
	exec     Executor
	frozen   bool
}

func New(cfg network.Config) (network.Network, error) {
	return NewWithExecutor(cfg, nil)
}

func NewWithExecutor(cfg network.Config, exec Executor) (network.Network, error) {
	inAttrs, err := tensor.ParseSpec(cfg.InTensors)
	if err != nil {
		return nil, fmt.Errorf("tpu: intensors: %w", err)
	}
	outAttrs, err := tensor.ParseSpec(cfg.OutTensors)
	if err != nil {
		return nil, fmt.Errorf("tpu: outtensors: %w", err)
	}
	tpunum := cfg.TPUNum
	if tpunum == 0 && cfg.Accelerator != "" {
		tpunum, err = DefaultPool.Assign(cfg.Accelerator)
		if err != nil {
			return nil, fmt.Errorf("tpu: %w", err)
		}
	}
	if exec == nil {
		exec = zeroExecutor{}
	}
	return &Network{cfg: cfg, tpunum: tpunum, inAttrs: inAttrs, outAttrs: outAttrs, exec: exec}, nil
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
	info.Header("Edge TPU forward pass (tpunum=%d)", n.tpunum)
	outs, err := n.exec.Forward(blobs, n.outAttrs, n.tpunum)
	if err != nil {
		return nil, &network.BackendFailure{Message: "TPU executor", Err: err}
	}
	for i, a := range n.outAttrs {
		if i < len(outs) {
			info.Bullet("output %d: %v", i, a)
		}
	}
	return outs, nil
}

type zeroExecutor struct{}

func (zeroExecutor) Forward(_ []blob.Blob, outAttrs []tensor.TensorAttr, _ int) ([]blob.Blob, error) {
	outs := make([]blob.Blob, len(outAttrs))
	for i, a := range outAttrs {
		outs[i] = blob.New(a)
	}
	return outs, nil
}
