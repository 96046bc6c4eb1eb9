package postproc

import (
	"fmt"
	"image"
	"image/draw"
	"sort"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/labels"
	"github.com/harshmittal2210/jevois/preproc"
	"github.com/harshmittal2210/jevois/tensor"
)

// DetectType selects a decoder within the Detect post-processor (spec
// §4.4.2's "detecttype").
type DetectType int

const (
	SSD DetectType = iota
	TPUSSD
	FasterRCNN
	YOLO
	RAWYOLOface
	RAWYOLOv2
	RAWYOLOv3
	RAWYOLOv4
	RAWYOLOv3Tiny
)

func (t DetectType) String() string {
	switch t {
	case SSD:
		return "SSD"
	case TPUSSD:
		return "TPUSSD"
	case FasterRCNN:
		return "FasterRCNN"
	case YOLO:
		return "YOLO"
	case RAWYOLOface:
		return "RAWYOLOface"
	case RAWYOLOv2:
		return "RAWYOLOv2"
	case RAWYOLOv3:
		return "RAWYOLOv3"
	case RAWYOLOv4:
		return "RAWYOLOv4"
	case RAWYOLOv3Tiny:
		return "RAWYOLOv3tiny"
	default:
		return fmt.Sprintf("DetectType(%d)", int(t))
	}
}

// ParseDetectType maps a zoo "detecttype" string to a DetectType.
func ParseDetectType(s string) (DetectType, error) {
	switch s {
	case "SSD":
		return SSD, nil
	case "TPUSSD":
		return TPUSSD, nil
	case "FasterRCNN":
		return FasterRCNN, nil
	case "YOLO":
		return YOLO, nil
	case "RAWYOLOface":
		return RAWYOLOface, nil
	case "RAWYOLOv2":
		return RAWYOLOv2, nil
	case "RAWYOLOv3":
		return RAWYOLOv3, nil
	case "RAWYOLOv4":
		return RAWYOLOv4, nil
	case "RAWYOLOv3tiny":
		return RAWYOLOv3Tiny, nil
	default:
		return 0, fmt.Errorf("postproc: unknown detecttype %q", s)
	}
}

func isRawYOLO(t DetectType) bool {
	switch t {
	case RAWYOLOface, RAWYOLOv2, RAWYOLOv3, RAWYOLOv4, RAWYOLOv3Tiny:
		return true
	default:
		return false
	}
}

// DetectConfig groups the zoo "postproc: Detect" parameters.
type DetectConfig struct {
	Type        DetectType
	NMS         float32 // percent, 0-100
	Thresh      float32 // percent, 0-100
	Alpha       uint8
	Classes     int // class count (RAWYOLO family, YOLO)
	ClassOffset int
	// Anchors is the raw semicolon-separated, comma-within-group anchor
	// string (spec §4.4.2), required for the RAWYOLO family.
	Anchors string
	// InputWidth/InputHeight are the network's declared input tensor
	// spatial size, used to map normalized/grid coordinates back to
	// tensor-space pixels before Context.ToImageRect.
	InputWidth, InputHeight int
}

// Detect is the built-in object-detection post-processor.
type Detect struct {
	cfg          DetectConfig
	labelMap     *labels.Map
	anchorGroups [][]float32
	results      []Detection
	frozen       bool
}

// NewDetect constructs a Detect post-processor, parsing and validating the
// anchors string up front for RAWYOLO types.
func NewDetect(cfg DetectConfig, labelMap *labels.Map) (*Detect, error) {
	var groups [][]float32
	if isRawYOLO(cfg.Type) {
		var err error
		groups, err = parseAnchorGroups(cfg.Anchors)
		if err != nil {
			return nil, err
		}
	}
	return &Detect{cfg: cfg, labelMap: labelMap, anchorGroups: groups}, nil
}

func (d *Detect) Process(outputs []blob.Blob, ctx preproc.Context) error {
	var dets []Detection
	var err error

	switch d.cfg.Type {
	case SSD, TPUSSD:
		dets, err = decodeSSDFamily(outputs, d.cfg, ctx)
	case FasterRCNN:
		dets, err = decodeFasterRCNN(outputs, d.cfg, ctx)
	case YOLO:
		dets, err = decodeYOLO(outputs, d.cfg, ctx)
	default:
		dets, err = d.decodeRawYOLO(outputs, ctx)
	}
	if err != nil {
		return err
	}

	for i := range dets {
		dets[i].Rect = tensor.Clamp(dets[i].Rect, float32(ctx.SrcWidth), float32(ctx.SrcHeight))
		if d.labelMap != nil {
			dets[i].Label = d.labelMap.Lookup(dets[i].ClassID)
		} else if dets[i].Label == "" {
			dets[i].Label = fmt.Sprint(dets[i].ClassID)
		}
	}

	d.results = nmsPerClass(dets, d.cfg.NMS/100)
	return nil
}

// Report draws a filled rectangle at the configured alpha for each detection
// (spec §4.4.2's final step) and emits one serial line per detection
// carrying class id, name, score, and the clamped box coordinates (spec §6).
func (d *Detect) Report(rep Reporter, dst draw.Image) {
	if dst != nil {
		for _, det := range d.results {
			drawFilledRect(dst, det.Rect, d.cfg.Alpha, det.Label)
		}
	}

	if rep == nil {
		return
	}
	if len(d.results) == 0 {
		rep.SendSerial("(no detections above threshold)")
		return
	}
	for _, det := range d.results {
		rep.SendSerial(fmt.Sprintf("%d: %s: %s: %d,%d,%d,%d",
			det.ClassID, det.Label, fmtPercent(det.Score),
			int(det.Rect.X0), int(det.Rect.Y0), int(det.Rect.X1), int(det.Rect.Y1)))
	}
}

// drawFilledRect composites a filled, alpha-blended rectangle for one
// detection's (already clamped) box onto dst, colored by tensor.LabelToColor
// so each class renders a stable, distinct color.
func drawFilledRect(dst draw.Image, r tensor.Rect, alpha uint8, label string) {
	rr, gg, bb, aa := tensor.LabelToColor(label, alpha)
	col := colorRGBA{rr, gg, bb, aa}
	rect := image.Rect(int(r.X0), int(r.Y0), int(r.X1), int(r.Y1)).Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	draw.Draw(dst, rect, &image.Uniform{C: col}, image.Point{}, draw.Over)
}

func (d *Detect) Freeze(doit bool) { d.frozen = doit }

// Results returns the most recent Process call's detections.
func (d *Detect) Results() []Detection { return d.results }

func decodeSSDFamily(outputs []blob.Blob, cfg DetectConfig, ctx preproc.Context) ([]Detection, error) {
	if len(outputs) != 3 {
		return nil, fmt.Errorf("postproc: %s expects 3 outputs, got %d", cfg.Type, len(outputs))
	}
	scores := outputs[0].Float32s()
	boxes := outputs[1].Float32s()
	classRaw := outputs[2].Float32s()

	n := len(scores)
	thresh := cfg.Thresh / 100
	var dets []Detection
	for i := 0; i < n; i++ {
		if scores[i] < thresh {
			continue
		}
		y0, x0, y1, x1 := boxes[i*4], boxes[i*4+1], boxes[i*4+2], boxes[i*4+3]
		rect := tensorSpaceRect(x0, y0, x1, y1, cfg, ctx)
		dets = append(dets, Detection{
			ClassID: int(classRaw[i]+0.5) + cfg.ClassOffset,
			Score:   scores[i],
			Rect:    rect,
		})
	}
	return dets, nil
}

func decodeFasterRCNN(outputs []blob.Blob, cfg DetectConfig, ctx preproc.Context) ([]Detection, error) {
	if len(outputs) != 1 {
		return nil, fmt.Errorf("postproc: FasterRCNN expects 1 output, got %d", len(outputs))
	}
	raw := outputs[0].Float32s()
	if len(raw)%7 != 0 {
		return nil, fmt.Errorf("postproc: FasterRCNN output length %d is not a multiple of 7", len(raw))
	}
	n := len(raw) / 7
	thresh := cfg.Thresh / 100
	var dets []Detection
	for i := 0; i < n; i++ {
		row := raw[i*7 : i*7+7]
		class, score, x0, y0, x1, y1 := row[1], row[2], row[3], row[4], row[5], row[6]
		if score < thresh {
			continue
		}
		rect := tensorSpaceRect(x0, y0, x1, y1, cfg, ctx)
		dets = append(dets, Detection{
			ClassID: int(class+0.5) + cfg.ClassOffset,
			Score:   score,
			Rect:    rect,
		})
	}
	return dets, nil
}

func decodeYOLO(outputs []blob.Blob, cfg DetectConfig, ctx preproc.Context) ([]Detection, error) {
	if len(outputs) != 1 {
		return nil, fmt.Errorf("postproc: YOLO expects 1 output, got %d", len(outputs))
	}
	raw := outputs[0].Float32s()
	rowLen := 5 + cfg.Classes
	if rowLen <= 0 || len(raw)%rowLen != 0 {
		return nil, fmt.Errorf("postproc: YOLO output length %d is not a multiple of row length %d", len(raw), rowLen)
	}
	n := len(raw) / rowLen
	thresh := cfg.Thresh / 100
	var dets []Detection
	for i := 0; i < n; i++ {
		row := raw[i*rowLen : (i+1)*rowLen]
		cx, cy, w, h, obj := row[0], row[1], row[2], row[3], row[4]
		classID, classScore := argmaxF32(row[5:])
		score := obj * classScore
		if score < thresh {
			continue
		}
		tensorRect := tensor.Rect{X0: cx - w/2, Y0: cy - h/2, X1: cx + w/2, Y1: cy + h/2}
		dets = append(dets, Detection{
			ClassID: classID + cfg.ClassOffset,
			Score:   score,
			Rect:    ctx.ToImageRect(tensorRect),
		})
	}
	return dets, nil
}

// tensorSpaceRect maps normalized [0,1] box coordinates into tensor-space
// pixels using the network's declared input size, then back to source-image
// coordinates via ctx.
func tensorSpaceRect(x0, y0, x1, y1 float32, cfg DetectConfig, ctx preproc.Context) tensor.Rect {
	w, h := float32(cfg.InputWidth), float32(cfg.InputHeight)
	r := tensor.Rect{X0: x0 * w, Y0: y0 * h, X1: x1 * w, Y1: y1 * h}
	return ctx.ToImageRect(r)
}

// nmsPerClass runs per-class greedy suppression (spec §4.4.2): within each
// class, sort by descending score (ties broken by ascending original
// index), then keep a detection only if its IoU with every previously
// accepted same-class detection is at most iouThresh. The returned slice is
// ordered by ascending original index, for determinism independent of class
// grouping order.
func nmsPerClass(dets []Detection, iouThresh float32) []Detection {
	byClass := make(map[int][]int)
	for i, d := range dets {
		byClass[d.ClassID] = append(byClass[d.ClassID], i)
	}

	keep := make(map[int]bool)
	for _, indices := range byClass {
		sort.Slice(indices, func(a, b int) bool {
			sa, sb := dets[indices[a]].Score, dets[indices[b]].Score
			if sa != sb {
				return sa > sb
			}
			return indices[a] < indices[b]
		})
		var accepted []int
		for _, i := range indices {
			suppressed := false
			for _, a := range accepted {
				if tensor.IoU(dets[i].Rect, dets[a].Rect) > float64(iouThresh) {
					suppressed = true
					break
				}
			}
			if !suppressed {
				accepted = append(accepted, i)
				keep[i] = true
			}
		}
	}

	var order []int
	for i := range dets {
		if keep[i] {
			order = append(order, i)
		}
	}
	sort.Ints(order)

	out := make([]Detection, len(order))
	for i, idx := range order {
		out[i] = dets[idx]
	}
	return out
}
