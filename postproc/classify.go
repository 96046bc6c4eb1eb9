package postproc

import (
	"fmt"
	"image/draw"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/labels"
	"github.com/harshmittal2210/jevois/preproc"
	"github.com/harshmittal2210/jevois/tensor"
)

// ClassifyConfig groups the zoo "postproc: Classify" parameters (spec
// §4.4.1): softmax/scorescale normalization, threshold, top-k, and the
// class-id offset applied before label lookup.
type ClassifyConfig struct {
	Softmax     bool
	ScoreScale  float32
	Thresh      float32 // percent, 0-100
	Top         int
	ClassOffset int
}

// Classify is the built-in single-label classification post-processor.
type Classify struct {
	cfg      ClassifyConfig
	labelMap *labels.Map
	results  []Classification
	frozen   bool
}

// NewClassify constructs a Classify post-processor. labelMap may be nil, in
// which case results render their decimal class id.
func NewClassify(cfg ClassifyConfig, labelMap *labels.Map) *Classify {
	return &Classify{cfg: cfg, labelMap: labelMap}
}

func (c *Classify) Process(outputs []blob.Blob, _ preproc.Context) error {
	if len(outputs) != 1 {
		return fmt.Errorf("postproc: Classify expects exactly 1 output, got %d", len(outputs))
	}
	vals := outputs[0].Float32s()
	if c.cfg.Softmax {
		vals = tensor.Softmax(vals, 1)
	}
	scaled := make([]float32, len(vals))
	scale := c.cfg.ScoreScale
	if scale == 0 {
		scale = 1
	}
	for i, v := range vals {
		scaled[i] = v * scale
	}

	idx, scores := tensor.TopK(scaled, len(scaled))
	thresh := c.cfg.Thresh / 100
	top := c.cfg.Top
	if top <= 0 {
		top = len(idx)
	}

	var results []Classification
	for i, id := range idx {
		if scores[i] < thresh {
			continue
		}
		if len(results) >= top {
			break
		}
		classID := id + c.cfg.ClassOffset
		results = append(results, Classification{
			ClassID: classID,
			Label:   c.labelMap.Lookup(classID),
			Score:   scores[i],
		})
	}
	c.results = results
	return nil
}

func (c *Classify) Report(rep Reporter, _ draw.Image) {
	if rep == nil {
		return
	}
	if len(c.results) == 0 {
		rep.SendSerial("(no detections above threshold)")
		return
	}
	for _, r := range c.results {
		rep.SendSerial(fmt.Sprintf("%d: %s: %s", r.ClassID, r.Label, fmtPercent(r.Score)))
	}
}

func (c *Classify) Freeze(doit bool) { c.frozen = doit }

// Results returns the most recent Process call's classifications, for
// callers needing structured access beyond the serial report.
func (c *Classify) Results() []Classification { return c.results }
