package postproc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/preproc"
	"github.com/harshmittal2210/jevois/tensor"
)

// parseAnchorGroups parses the zoo "anchors" parameter: a semicolon-
// separated list of groups, one per raw-YOLO output layer, each a
// comma-separated list of alternating width,height values.
func parseAnchorGroups(s string) ([][]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("postproc: RAWYOLO detect types require a non-empty anchors string")
	}
	groupStrs := strings.Split(s, ";")
	groups := make([][]float32, len(groupStrs))
	for gi, gs := range groupStrs {
		fields := strings.Split(gs, ",")
		vals := make([]float32, 0, len(fields))
		for _, f := range fields {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, fmt.Errorf("postproc: anchors group %d: invalid value %q: %w", gi, f, err)
			}
			vals = append(vals, float32(v))
		}
		if len(vals) == 0 || len(vals)%2 != 0 {
			return nil, fmt.Errorf("postproc: anchors group %d must list an even, non-zero number of width,height values", gi)
		}
		groups[gi] = vals
	}
	return groups, nil
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// decodeRawYOLO decodes every raw output layer per spec §4.4.2's RAWYOLO
// family formulas, resolving anchors per the "one shared group, or one group
// per layer" rule.
func (d *Detect) decodeRawYOLO(outputs []blob.Blob, ctx preproc.Context) ([]Detection, error) {
	groups := d.anchorGroups
	if len(groups) == 1 && len(outputs) > 1 {
		shared := groups[0]
		groups = make([][]float32, len(outputs))
		for i := range groups {
			groups[i] = shared
		}
	}
	if len(groups) != len(outputs) {
		return nil, AnchorMismatch{Groups: len(d.anchorGroups), Layers: len(outputs)}
	}

	var all []Detection
	for li, out := range outputs {
		dets, err := decodeRawYOLOLayer(out, groups[li], d.cfg, ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, dets...)
	}
	return all, nil
}

// decodeRawYOLOLayer decodes one [A,(5+C)[+2K for K face keypoints],Gy,Gx]
// output grid.
func decodeRawYOLOLayer(b blob.Blob, anchors []float32, cfg DetectConfig, ctx preproc.Context) ([]Detection, error) {
	dims := b.Attr.Dims
	if len(dims) != 4 {
		return nil, fmt.Errorf("postproc: RAWYOLO output must be rank 4 [A,5+C,Gy,Gx], got rank %d", len(dims))
	}
	a := int(dims[0])
	ch := int(dims[1])
	gy := int(dims[2])
	gx := int(dims[3])
	if a*2 != len(anchors) {
		return nil, fmt.Errorf("postproc: layer declares %d anchors, output grid has %d anchor slots", len(anchors)/2, a)
	}

	numKeypoints := 0
	if cfg.Type == RAWYOLOface {
		extra := ch - 5 - cfg.Classes
		if extra > 0 && extra%2 == 0 {
			numKeypoints = extra / 2
		}
	}
	if ch-5-numKeypoints*2 != cfg.Classes {
		return nil, fmt.Errorf("postproc: RAWYOLO output channel width %d inconsistent with %d classes", ch, cfg.Classes)
	}

	vals := b.Float32s()
	idx := func(ai, ci, yi, xi int) int {
		return ((ai*ch+ci)*gy+yi)*gx + xi
	}

	strideX := float32(cfg.InputWidth) / float32(gx)
	strideY := float32(cfg.InputHeight) / float32(gy)
	thresh := cfg.Thresh / 100

	var dets []Detection
	for ai := 0; ai < a; ai++ {
		anchorW, anchorH := anchors[2*ai], anchors[2*ai+1]
		for yi := 0; yi < gy; yi++ {
			for xi := 0; xi < gx; xi++ {
				tx := vals[idx(ai, 0, yi, xi)]
				ty := vals[idx(ai, 1, yi, xi)]
				tw := vals[idx(ai, 2, yi, xi)]
				th := vals[idx(ai, 3, yi, xi)]
				tobj := vals[idx(ai, 4, yi, xi)]

				objConf := sigmoid(tobj)

				bx := (sigmoid(tx) + float32(xi)) * strideX
				by := (sigmoid(ty) + float32(yi)) * strideY

				var bw, bh float32
				if cfg.Type == RAWYOLOv2 {
					bw = float32(math.Exp(float64(tw))) * anchorW * strideX
					bh = float32(math.Exp(float64(th))) * anchorH * strideY
				} else {
					bw = float32(math.Exp(float64(tw))) * anchorW
					bh = float32(math.Exp(float64(th))) * anchorH
				}

				classID, classScore := classifyCell(vals, idx, ai, yi, xi, cfg.Classes, cfg.Type)
				score := objConf * classScore
				if score < thresh {
					continue
				}

				tensorRect := tensor.Rect{X0: bx - bw/2, Y0: by - bh/2, X1: bx + bw/2, Y1: by + bh/2}
				det := Detection{
					ClassID: classID + cfg.ClassOffset,
					Score:   score,
					Rect:    ctx.ToImageRect(tensorRect),
				}
				if numKeypoints > 0 {
					det.Extra = decodeKeypoints(vals, idx, ai, yi, xi, cfg.Classes, numKeypoints, bx, by, anchorW, anchorH, ctx)
				}
				dets = append(dets, det)
			}
		}
	}
	return dets, nil
}

func classifyCell(vals []float32, idx func(int, int, int, int) int, ai, yi, xi, classes int, t DetectType) (classID int, score float32) {
	if t == RAWYOLOv2 {
		raw := make([]float32, classes)
		for c := 0; c < classes; c++ {
			raw[c] = vals[idx(ai, 5+c, yi, xi)]
		}
		probs := tensor.Softmax(raw, 1)
		return argmaxF32(probs)
	}
	best := sigmoid(vals[idx(ai, 5, yi, xi)])
	bestC := 0
	for c := 1; c < classes; c++ {
		s := sigmoid(vals[idx(ai, 5+c, yi, xi)])
		if s > best {
			best = s
			bestC = c
		}
	}
	return bestC, best
}

// decodeKeypoints decodes RAWYOLOface's n facial landmarks, stored as
// (dx,dy) offsets scaled by the cell's anchor, following the predicted-box
// convention: kp = box_center + (raw_offset * anchor_dim).
func decodeKeypoints(vals []float32, idx func(int, int, int, int) int, ai, yi, xi, classes, n int, bx, by, anchorW, anchorH float32, ctx preproc.Context) []Point2D {
	pts := make([]Point2D, n)
	base := 5 + classes
	for k := 0; k < n; k++ {
		dx := vals[idx(ai, base+2*k, yi, xi)]
		dy := vals[idx(ai, base+2*k+1, yi, xi)]
		tensorPt := tensor.Rect{X0: bx + dx*anchorW, Y0: by + dy*anchorH, X1: bx + dx*anchorW, Y1: by + dy*anchorH}
		mapped := ctx.ToImageRect(tensorPt)
		pts[k] = Point2D{X: mapped.X0, Y: mapped.Y0}
	}
	return pts
}
