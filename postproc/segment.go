package postproc

import (
	"fmt"
	"image"
	stddraw "image/draw"

	"golang.org/x/image/draw"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/labels"
	"github.com/harshmittal2210/jevois/preproc"
	"github.com/harshmittal2210/jevois/tensor"
)

// SegType selects a semantic-segmentation output layout (spec §4.4.3's
// "segtype").
type SegType int

const (
	Classes SegType = iota
	Classes2
	ArgMax
)

// ParseSegType maps a zoo "segtype" string to a SegType.
func ParseSegType(s string) (SegType, error) {
	switch s {
	case "Classes":
		return Classes, nil
	case "Classes2":
		return Classes2, nil
	case "ArgMax":
		return ArgMax, nil
	default:
		return 0, fmt.Errorf("postproc: unknown segtype %q", s)
	}
}

// SegmentConfig groups the zoo "postproc: Segment" parameters.
type SegmentConfig struct {
	Type  SegType
	Alpha uint8
	// BgID is the class id rendered fully transparent.
	BgID int
}

// Segment is the built-in semantic-segmentation post-processor.
type Segment struct {
	cfg      SegmentConfig
	labelMap *labels.Map
	overlay  *image.RGBA
	frozen   bool
}

// NewSegment constructs a Segment post-processor.
func NewSegment(cfg SegmentConfig, labelMap *labels.Map) *Segment {
	return &Segment{cfg: cfg, labelMap: labelMap}
}

func (s *Segment) Process(outputs []blob.Blob, _ preproc.Context) error {
	if len(outputs) != 1 {
		return fmt.Errorf("postproc: Segment expects exactly 1 output, got %d", len(outputs))
	}
	attr := outputs[0].Attr
	var w, h int
	classIDs, err := s.classIDsPerPixel(outputs[0], attr, &w, &h)
	if err != nil {
		return err
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			id := classIDs[y*w+x]
			if id == s.cfg.BgID {
				continue // left fully transparent
			}
			label := fmt.Sprint(id)
			if s.labelMap != nil {
				label = s.labelMap.Lookup(id)
			}
			r, g, b, a := tensor.LabelToColor(label, s.cfg.Alpha)
			img.Set(x, y, colorRGBA{r, g, b, a})
		}
	}
	s.overlay = img
	return nil
}

// classIDsPerPixel computes argmax-over-channel (Classes/Classes2) or reads
// ids directly (ArgMax), writing the spatial size into w, h.
func (s *Segment) classIDsPerPixel(b blob.Blob, attr tensor.TensorAttr, w, h *int) ([]int, error) {
	dims := attr.Dims
	switch s.cfg.Type {
	case Classes: // [H,W,C]
		if len(dims) != 3 {
			return nil, fmt.Errorf("postproc: Classes segment output must be rank 3 [H,W,C], got rank %d", len(dims))
		}
		*h, *w = int(dims[0]), int(dims[1])
		c := int(dims[2])
		vals := b.Float32s()
		ids := make([]int, (*h)*(*w))
		for y := 0; y < *h; y++ {
			for x := 0; x < *w; x++ {
				base := (y**w + x) * c
				id, _ := argmaxF32(vals[base : base+c])
				ids[y**w+x] = id
			}
		}
		return ids, nil
	case Classes2: // [C,H,W]
		if len(dims) != 3 {
			return nil, fmt.Errorf("postproc: Classes2 segment output must be rank 3 [C,H,W], got rank %d", len(dims))
		}
		c := int(dims[0])
		*h, *w = int(dims[1]), int(dims[2])
		vals := b.Float32s()
		ids := make([]int, (*h)*(*w))
		for y := 0; y < *h; y++ {
			for x := 0; x < *w; x++ {
				best := vals[y**w+x]
				bestC := 0
				for ci := 1; ci < c; ci++ {
					v := vals[(ci*(*h)+y)*(*w)+x]
					if v > best {
						best = v
						bestC = ci
					}
				}
				ids[y**w+x] = bestC
			}
		}
		return ids, nil
	case ArgMax: // [H,W] integer ids
		if len(dims) != 2 {
			return nil, fmt.Errorf("postproc: ArgMax segment output must be rank 2 [H,W], got rank %d", len(dims))
		}
		*h, *w = int(dims[0]), int(dims[1])
		return readIntGrid(b, (*h)*(*w)), nil
	default:
		return nil, fmt.Errorf("postproc: unknown segtype %d", s.cfg.Type)
	}
}

// readIntGrid decodes n little-endian integer elements of b's declared type.
func readIntGrid(b blob.Blob, n int) []int {
	width := b.Attr.Type.ByteWidth()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		off := i * width
		var v int64
		for k := width - 1; k >= 0; k-- {
			v = v<<8 | int64(b.Data[off+k])
		}
		out[i] = int(v)
	}
	return out
}

// Report upsamples the class overlay onto dst (if non-nil). It sends no
// serial lines to rep.
func (s *Segment) Report(rep Reporter, dst stddraw.Image) {
	if s.overlay == nil || dst == nil {
		return
	}
	db := dst.Bounds()
	draw.NearestNeighbor.Scale(dst, db, s.overlay, s.overlay.Bounds(), stddraw.Over, nil)
}

func (s *Segment) Freeze(doit bool) { s.frozen = doit }

// Overlay returns the most recent Process call's colorized class overlay, at
// its native (pre-upsample) resolution.
func (s *Segment) Overlay() *image.RGBA { return s.overlay }

type colorRGBA struct{ r, g, b, a uint8 }

func (c colorRGBA) RGBA() (r, g, b, a uint32) {
	r = uint32(c.r) * 0x101
	g = uint32(c.g) * 0x101
	b = uint32(c.b) * 0x101
	a = uint32(c.a) * 0x101
	return
}
