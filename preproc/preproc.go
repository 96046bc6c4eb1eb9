// Package preproc implements the pre-processor contract (spec §4.2): turning
// a source frame into the list of input Blobs a Network declares, plus the
// built-in "Blob" implementation (crop, resize, channel reorder, mean/scale,
// cast, quantize, pack).
package preproc

import (
	"fmt"
	"image"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/tensor"
)

// Context carries the geometry a pre-processor applied to the source frame
// so the post-processor can map detections back to original image
// coordinates: the source size, the crop region used, the scale factor from
// crop to resized input, and any letterbox padding.
type Context struct {
	SrcWidth, SrcHeight int
	CropRect            image.Rectangle
	ScaleX, ScaleY       float64
	PadX, PadY           int
}

// ToImageRect maps a rectangle in resized-input-tensor coordinates back to
// original source image coordinates, inverting letterbox padding, resize,
// and crop in that order.
func (c Context) ToImageRect(r tensor.Rect) tensor.Rect {
	x0 := (float64(r.X0) - float64(c.PadX)) / c.ScaleX
	y0 := (float64(r.Y0) - float64(c.PadY)) / c.ScaleY
	x1 := (float64(r.X1) - float64(c.PadX)) / c.ScaleX
	y1 := (float64(r.Y1) - float64(c.PadY)) / c.ScaleY
	return tensor.Rect{
		X0: float32(x0) + float32(c.CropRect.Min.X),
		Y0: float32(y0) + float32(c.CropRect.Min.Y),
		X1: float32(x1) + float32(c.CropRect.Min.X),
		Y1: float32(y1) + float32(c.CropRect.Min.Y),
	}
}

// PreProcessor converts a source image into the Blobs a Network's declared
// input TensorAttrs call for. Two variants: the built-in Blob implementation
// and a user-supplied Custom one conforming to the same interface.
type PreProcessor interface {
	// Process consumes img plus the network's declared input attrs and
	// returns one Blob per attr, in the same order. Returns
	// *BlobShapeMismatch if it cannot produce a matching list.
	Process(img image.Image, inputAttrs []tensor.TensorAttr) ([]blob.Blob, Context, error)

	// Freeze locks the parameters that govern this stage's identity while
	// the pipeline is running.
	Freeze(doit bool)
}

// CropMode selects how the source frame's region of interest is chosen.
type CropMode int

const (
	// CropCenter takes the largest centered crop matching the model's
	// aspect ratio. This is the default.
	CropCenter CropMode = iota
	// CropFull stretches the entire frame into the model's HxW, ignoring
	// aspect ratio.
	CropFull
	// CropLetterbox resizes preserving aspect ratio and pads with black to
	// reach the model's HxW, recording the padding in Context.
	CropLetterbox
)

// ParseCropMode maps a zoo "resize" string to a CropMode. An empty string
// is CropCenter, the default.
func ParseCropMode(s string) (CropMode, error) {
	switch s {
	case "", "Crop":
		return CropCenter, nil
	case "Full":
		return CropFull, nil
	case "Letterbox":
		return CropLetterbox, nil
	default:
		return 0, fmt.Errorf("preproc: unknown resize mode %q", s)
	}
}

// Config groups the built-in Blob pre-processor's parameters, set from a
// zoo entry's preproc keys (spec §6: mean, scale, rgb, resize/crop).
type Config struct {
	Crop  CropMode
	Mean  []float32 // per input channel
	Scale []float32 // per input channel
	// RGB is true if the model expects RGB channel order; false means the
	// model expects BGR and the built-in preprocessor swaps R and B.
	RGB bool
}

// NewPreProcessor constructs a PreProcessor by zoo "preproc" kind. "Custom"
// is not constructible here: the pipeline controller installs a
// user-supplied implementation via SetCustomPreProc instead.
func NewPreProcessor(kind string, cfg Config) (PreProcessor, error) {
	switch kind {
	case "Blob", "":
		return NewBlobPreProcessor(cfg), nil
	case "Custom":
		return nil, fmt.Errorf("preproc: kind %q must be installed via SetCustomPreProc, not NewPreProcessor", kind)
	default:
		return nil, fmt.Errorf("preproc: unknown kind %q; valid kinds: [Blob, Custom]", kind)
	}
}
