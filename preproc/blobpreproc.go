package preproc

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/tensor"
)

// BlobPreProcessor is the built-in PreProcessor implementation: for each
// declared input tensor it crops, resizes (bilinear, via
// golang.org/x/image/draw), reorders channels, applies mean/scale, casts,
// and quantizes, then packs the result into the tensor's declared layout.
type BlobPreProcessor struct {
	cfg    Config
	frozen bool
}

// NewBlobPreProcessor constructs the built-in pre-processor with cfg.
func NewBlobPreProcessor(cfg Config) *BlobPreProcessor {
	return &BlobPreProcessor{cfg: cfg}
}

func (p *BlobPreProcessor) Freeze(doit bool) { p.frozen = doit }

func (p *BlobPreProcessor) Process(img image.Image, inputAttrs []tensor.TensorAttr) ([]blob.Blob, Context, error) {
	if len(inputAttrs) == 0 {
		return nil, Context{}, &BlobShapeMismatch{Reason: "no declared input attrs"}
	}

	blobs := make([]blob.Blob, 0, len(inputAttrs))
	var ctx Context
	for i, attr := range inputAttrs {
		if err := attr.Validate(); err != nil {
			return nil, Context{}, fmt.Errorf("preproc: input %d: %w", i, err)
		}
		b, c, err := p.processOne(img, attr)
		if err != nil {
			return nil, Context{}, fmt.Errorf("preproc: input %d: %w", i, err)
		}
		if !b.Attr.Equal(attr) {
			return nil, Context{}, &BlobShapeMismatch{
				Reason: fmt.Sprintf("input %d: produced %v, declared %v", i, b.Attr, attr),
			}
		}
		blobs = append(blobs, b)
		if i == 0 {
			ctx = c
		}
	}
	if len(blobs) != len(inputAttrs) {
		return nil, Context{}, &BlobShapeMismatch{
			Reason: fmt.Sprintf("produced %d blobs, declared %d inputs", len(blobs), len(inputAttrs)),
		}
	}
	return blobs, ctx, nil
}

// dims extracts (c, h, w) from attr according to its layout. Non-spatial
// (NA) tensors of any rank are treated as auxiliary inputs and zero-filled.
func dims(attr tensor.TensorAttr) (c, h, w int, spatial bool) {
	if attr.Rank() != 4 || attr.Layout == tensor.LayoutNA {
		return 0, 0, 0, false
	}
	switch attr.Layout {
	case tensor.NCHW:
		return int(attr.Dims[1]), int(attr.Dims[2]), int(attr.Dims[3]), true
	case tensor.NHWC:
		return int(attr.Dims[3]), int(attr.Dims[1]), int(attr.Dims[2]), true
	default:
		return 0, 0, 0, false
	}
}

func (p *BlobPreProcessor) processOne(img image.Image, attr tensor.TensorAttr) (blob.Blob, Context, error) {
	c, h, w, spatial := dims(attr)
	if !spatial {
		// Auxiliary non-image input (e.g. an "image shape" tensor some SSD
		// models require): zero-filled, caller-populated out of band.
		return blob.New(attr), Context{}, nil
	}
	if len(p.cfg.Mean) != 0 && len(p.cfg.Mean) != c {
		return blob.Blob{}, Context{}, fmt.Errorf("mean has %d entries, expected %d channels", len(p.cfg.Mean), c)
	}
	if len(p.cfg.Scale) != 0 && len(p.cfg.Scale) != c {
		return blob.Blob{}, Context{}, fmt.Errorf("scale has %d entries, expected %d channels", len(p.cfg.Scale), c)
	}

	srcBounds := img.Bounds()
	cropRect, ctx := chooseCrop(srcBounds, w, h, p.cfg.Crop)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	fitW, fitH, padX, padY := w, h, 0, 0
	if p.cfg.Crop == CropLetterbox {
		fitW, fitH, padX, padY = letterboxFit(cropRect.Dx(), cropRect.Dy(), w, h)
	}
	draw.BiLinear.Scale(dst, image.Rect(padX, padY, padX+fitW, padY+fitH), img, cropRect, draw.Src, nil)
	ctx.PadX, ctx.PadY = padX, padY
	ctx.ScaleX = float64(fitW) / float64(cropRect.Dx())
	ctx.ScaleY = float64(fitH) / float64(cropRect.Dy())

	mean := resolveMeanScale(p.cfg.Mean, c, 0)
	scale := resolveMeanScale(p.cfg.Scale, c, 1)

	b := blob.New(attr)
	packPixels(dst, attr, b, mean, scale, p.cfg.RGB)
	return b, ctx, nil
}

func resolveMeanScale(v []float32, c int, zeroDefault float32) []float32 {
	if len(v) == c {
		return v
	}
	out := make([]float32, c)
	for i := range out {
		out[i] = zeroDefault
	}
	return out
}

// chooseCrop picks the source-image crop rectangle per mode and returns the
// partially-filled Context (SrcWidth/Height and CropRect set; ScaleX/Y and
// padding are finished by the caller once the target fit is known).
func chooseCrop(src image.Rectangle, targetW, targetH int, mode CropMode) (image.Rectangle, Context) {
	ctx := Context{SrcWidth: src.Dx(), SrcHeight: src.Dy()}
	switch mode {
	case CropFull, CropLetterbox:
		ctx.CropRect = src
		return src, ctx
	default: // CropCenter
		srcAspect := float64(src.Dx()) / float64(src.Dy())
		targetAspect := float64(targetW) / float64(targetH)
		var cw, ch int
		if srcAspect > targetAspect {
			ch = src.Dy()
			cw = int(float64(ch) * targetAspect)
		} else {
			cw = src.Dx()
			ch = int(float64(cw) / targetAspect)
		}
		x0 := src.Min.X + (src.Dx()-cw)/2
		y0 := src.Min.Y + (src.Dy()-ch)/2
		r := image.Rect(x0, y0, x0+cw, y0+ch)
		ctx.CropRect = r
		return r, ctx
	}
}

// letterboxFit computes the largest (fitW, fitH) that preserves srcW:srcH
// aspect ratio while fitting within targetW x targetH, plus the centering
// padding in the target canvas.
func letterboxFit(srcW, srcH, targetW, targetH int) (fitW, fitH, padX, padY int) {
	srcAspect := float64(srcW) / float64(srcH)
	targetAspect := float64(targetW) / float64(targetH)
	if srcAspect > targetAspect {
		fitW = targetW
		fitH = int(float64(targetW) / srcAspect)
	} else {
		fitH = targetH
		fitW = int(float64(targetH) * srcAspect)
	}
	padX = (targetW - fitW) / 2
	padY = (targetH - fitH) / 2
	return
}

// packPixels applies channel reorder, mean/scale, cast, and quantization,
// then packs the result into attr's declared layout (NCHW or NHWC).
func packPixels(img *image.RGBA, attr tensor.TensorAttr, b blob.Blob, mean, scale []float32, rgb bool) {
	c, h, w, _ := dims(attr)
	chanOrder := [3]int{0, 1, 2} // R, G, B
	if !rgb {
		chanOrder = [3]int{2, 1, 0} // B, G, R
	}

	getChan := func(x, y, ch int) float32 {
		r, g, bl, _ := img.At(x, y).RGBA()
		rgbVals := [3]float32{float32(r >> 8), float32(g >> 8), float32(bl >> 8)}
		return rgbVals[chanOrder[ch]]
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for ch := 0; ch < c && ch < 3; ch++ {
				v := (getChan(x, y, ch) - mean[ch]) * scale[ch]
				writeElem(attr, b, x, y, ch, w, h, c, v)
			}
		}
	}
}

func writeElem(attr tensor.TensorAttr, b blob.Blob, x, y, ch, w, h, c int, v float32) {
	var idx int64
	if attr.Layout == tensor.NCHW {
		idx = int64(ch)*int64(h)*int64(w) + int64(y)*int64(w) + int64(x)
	} else {
		idx = int64(y)*int64(w)*int64(c) + int64(x)*int64(c) + int64(ch)
	}
	writeQuantized(attr, b, idx, ch, v)
}

// writeQuantized casts/quantizes one scalar value into b.Data at flat
// element index idx, per attr's Type and Quant.
func writeQuantized(attr tensor.TensorAttr, b blob.Blob, idx int64, channelIdx int, v float32) {
	width := int64(attr.Type.ByteWidth())
	off := idx * width
	switch attr.Type {
	case tensor.F32:
		putFloat32(b.Data[off:], v)
	case tensor.F16:
		putUint16(b.Data[off:], float32ToFloat16(v))
	case tensor.U8, tensor.I8, tensor.U16, tensor.I16, tensor.U32, tensor.I32:
		raw := quantizeInt(attr, v, channelIdx)
		putIntN(b.Data[off:off+width], raw, attr.Type)
	case tensor.Bool:
		if v != 0 {
			b.Data[off] = 1
		}
	}
}

func quantizeInt(attr tensor.TensorAttr, v float32, channelIdx int) int64 {
	var raw float64
	switch q := attr.Quant.(type) {
	case tensor.AffineAsymmetric:
		raw = math.Round(float64(v)/float64(q.Scale)) + float64(q.ZeroPoint)
	case tensor.AffinePerChannel:
		raw = math.Round(float64(v)/float64(q.Scale[channelIdx])) + float64(q.ZeroPoint[channelIdx])
	case tensor.DynamicFixedPoint:
		raw = math.Round(float64(v) * math.Pow(2, float64(q.FracLen)))
	default:
		raw = math.Round(float64(v))
	}
	return saturate(raw, attr.Type)
}

func saturate(raw float64, t tensor.ElemType) int64 {
	var lo, hi float64
	switch t {
	case tensor.U8:
		lo, hi = 0, 255
	case tensor.I8:
		lo, hi = -128, 127
	case tensor.U16:
		lo, hi = 0, 65535
	case tensor.I16:
		lo, hi = -32768, 32767
	case tensor.U32:
		lo, hi = 0, 4294967295
	case tensor.I32:
		lo, hi = -2147483648, 2147483647
	default:
		return int64(raw)
	}
	if raw < lo {
		raw = lo
	}
	if raw > hi {
		raw = hi
	}
	return int64(raw)
}

func putIntN(dst []byte, v int64, t tensor.ElemType) {
	switch t {
	case tensor.U8, tensor.I8:
		dst[0] = byte(v)
	case tensor.U16, tensor.I16:
		putUint16(dst, uint16(v))
	case tensor.U32, tensor.I32:
		putUint32(dst, uint32(v))
	}
}

func putUint16(dst []byte, v uint16) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
}

func putUint32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

func putFloat32(dst []byte, v float32) {
	putUint32(dst, math.Float32bits(v))
}

// float32ToFloat16 converts to IEEE-754 binary16, round-to-nearest-even.
// Values below the binary16 normal range flush to signed zero; values above
// it (and NaN) become signed infinity. No example repo in the retrieval pack
// carries a float16 codec dependency that fits this narrow need, so this is
// a small hand-rolled conversion.
func float32ToFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16((bits >> 16) & 0x8000)
	exp := int32((bits>>23)&0xFF) - 127 + 15
	mant := bits & 0x7FFFFF
	switch {
	case exp <= 0:
		return sign
	case exp >= 31:
		return sign | 0x7C00
	default:
		h := uint32(sign) | uint32(exp)<<10 | mant>>13
		// A carry out of the mantissa bumps the exponent, up to infinity.
		rem := mant & 0x1FFF
		if rem > 0x1000 || (rem == 0x1000 && h&1 == 1) {
			h++
		}
		return uint16(h)
	}
}
