// Package postproc implements the three built-in post-processor variants
// (spec §4.4): Classify, Detect, Segment. Each consumes a Network's output
// Blobs plus the preproc.Context that maps tensor-space coordinates back to
// the source frame, and exposes a Report step that emits results to a host
// module and, optionally, draws an overlay.
package postproc

import (
	"fmt"
	"image/draw"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/preproc"
	"github.com/harshmittal2210/jevois/tensor"
)

// Reporter receives one serial text line per post-processor result, mirroring
// spec §6's "one serial message per result to the host module."
type Reporter interface {
	SendSerial(line string)
}

// PostProcessor is the contract all three built-ins (and a Custom seat)
// satisfy: decode outputs into stored results, then report them.
type PostProcessor interface {
	// Process decodes outputs (already shaped by the network stage) into
	// this post-processor's internal result set, using ctx to map detection
	// rectangles back into source-image coordinates.
	Process(outputs []blob.Blob, ctx preproc.Context) error

	// Report emits the most recent Process call's results as serial text to
	// rep (if non-nil) and draws an overlay onto dst (if non-nil).
	Report(rep Reporter, dst draw.Image)

	// Freeze locks the parameters that govern this stage's identity while
	// the pipeline is running.
	Freeze(doit bool)
}

// Classification is one Classify result.
type Classification struct {
	ClassID int
	Label   string
	Score   float32
}

// Point2D is one facial landmark coordinate, in source-image pixels.
type Point2D struct {
	X, Y float32
}

// Detection is one Detect result (spec §3's Detection data model).
type Detection struct {
	ClassID int
	Label   string
	Score   float32
	Rect    tensor.Rect
	// Extra carries a decode-specific payload: []Point2D keypoints for
	// RAWYOLOface, or nil for every other detect type.
	Extra any
}

func argmaxF32(v []float32) (idx int, best float32) {
	best = v[0]
	for i, x := range v[1:] {
		if x > best {
			best = x
			idx = i + 1
		}
	}
	return idx, best
}

func fmtPercent(score float32) string {
	return fmt.Sprintf("%.2f%%", float64(score)*100)
}
