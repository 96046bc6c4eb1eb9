// Package network implements the Network stage contract (spec §4.3): load
// weights once on a backend, run a forward pass, and optionally
// dequantize/flatten its outputs. Concrete backends (OpenCV, NPU, TPU) live
// in subpackages and register themselves with this package via init(), the
// same factory-registration idiom the teacher's latency/kv subpackages use
// to avoid an import cycle between this package and its implementations.
package network

import (
	"fmt"
	"sync/atomic"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/tensor"
)

// Info is the only observable diagnostic side channel Process may write to.
// By convention a line beginning with "* " is a header and "- " is a bullet;
// all bullets are grouped under the most recently appended header.
type Info struct {
	lines []string
}

// Header appends a header line.
func (i *Info) Header(format string, args ...any) {
	i.lines = append(i.lines, "* "+fmt.Sprintf(format, args...))
}

// Bullet appends a bullet line under the most recent header.
func (i *Info) Bullet(format string, args ...any) {
	i.lines = append(i.lines, "- "+fmt.Sprintf(format, args...))
}

// Lines returns the accumulated info lines in append order.
func (i *Info) Lines() []string { return i.lines }

// Network is the abstract contract every backend (OpenCV, NPU, TPU, Custom)
// implements. Load is synchronous; the pipeline controller backgrounds it
// via Base.RunLoad and polls Ready.
type Network interface {
	// Load reads the model file into backend memory. Safe to call only
	// once per instance; call through Base.RunLoad for the idempotent,
	// backgrounded form the pipeline relies on.
	Load() error

	// InputShapes/OutputShapes are available only once loading has begun
	// (they may reflect declared zoo shapes before Ready()).
	InputShapes() []tensor.TensorAttr
	OutputShapes() []tensor.TensorAttr

	// Process runs one forward pass. blobs must match InputShapes(). info
	// receives diagnostic lines per the Info convention above.
	Process(blobs []blob.Blob, info *Info) ([]blob.Blob, error)

	// Freeze locks the parameters that govern this stage's identity while
	// the pipeline is running.
	Freeze(doit bool)

	// Ready reports whether Load has completed successfully.
	Ready() bool

	// WaitBeforeDestroy blocks until any outstanding load completes.
	// Derived implementations must call this first in their own teardown.
	WaitBeforeDestroy()
}

// Base implements the loading/loaded bookkeeping every concrete backend
// embeds. The invariants from spec §4.3 hold at every observation point:
// loading ⇒ ¬loaded, loaded ⇒ ¬loading (there is a brief window with both
// false, at the loading→loaded transition, which violates neither).
type Base struct {
	loading atomic.Bool
	loaded  atomic.Bool
	future  *Future[struct{}]
}

// RunLoad backgrounds loadFn exactly once: a second call while loading or
// after success is a no-op and returns the original future. The pipeline
// controller calls this once per network construction.
func (b *Base) RunLoad(loadFn func() error) *Future[struct{}] {
	if b.loading.Load() || b.loaded.Load() {
		return b.future
	}
	b.loading.Store(true)
	b.future = Go(func() (struct{}, error) {
		err := loadFn()
		b.loading.Store(false)
		b.loaded.Store(err == nil)
		return struct{}{}, err
	})
	return b.future
}

// Ready reports whether loading has completed successfully.
func (b *Base) Ready() bool { return b.loaded.Load() }

// Loading reports whether a load is currently in flight.
func (b *Base) Loading() bool { return b.loading.Load() }

// WaitBeforeDestroy blocks until any outstanding load completes.
func (b *Base) WaitBeforeDestroy() {
	if b.future != nil {
		_, _ = b.future.Await()
	}
}

// ModelNotLoaded is returned by Process when called before Load completes.
// Recovered locally by the pipeline: the frame is skipped and a "Network
// loading…" overlay is shown.
type ModelNotLoaded struct{}

func (ModelNotLoaded) Error() string { return "network: model not loaded" }

// BackendFailure wraps an error from the underlying backend SDK with a short
// message. Drives the pipeline to its error state.
type BackendFailure struct {
	Message string
	Err     error
}

func (e *BackendFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network: backend failure: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("network: backend failure: %s", e.Message)
}

func (e *BackendFailure) Unwrap() error { return e.Err }

// ShapeMismatch is returned when input blobs do not match a network's
// declared attrs.
type ShapeMismatch struct {
	Reason string
}

func (e *ShapeMismatch) Error() string {
	return fmt.Sprintf("network: shape mismatch: %s", e.Reason)
}

// CheckInputs validates that blobs match attrs in count and TensorAttr,
// returning *ShapeMismatch on any discrepancy. Every backend's Process
// should call this first.
func CheckInputs(blobs []blob.Blob, attrs []tensor.TensorAttr) error {
	if len(blobs) != len(attrs) {
		return &ShapeMismatch{Reason: fmt.Sprintf("got %d input blobs, declared %d", len(blobs), len(attrs))}
	}
	for i, a := range attrs {
		if !blobs[i].Attr.Equal(a) {
			return &ShapeMismatch{Reason: fmt.Sprintf("input %d: got %v, declared %v", i, blobs[i].Attr, a)}
		}
	}
	return nil
}
