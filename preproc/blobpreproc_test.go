package preproc

import (
	"image"
	"image/color"
	"testing"

	"github.com/harshmittal2210/jevois/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestBlobPreProcessor_ProducesDeclaredShape(t *testing.T) {
	attrs, err := tensor.ParseSpec("NCHW:8U:1x3x4x4:AA:1:0")
	require.NoError(t, err)

	p := NewBlobPreProcessor(Config{RGB: true})
	img := solidImage(32, 32, color.RGBA{R: 100, G: 150, B: 200, A: 255})

	blobs, ctx, err := p.Process(img, attrs)
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.True(t, blobs[0].Attr.Equal(attrs[0]))
	assert.Equal(t, 32, ctx.SrcWidth)
	assert.Equal(t, 32, ctx.SrcHeight)
}

func TestBlobPreProcessor_SolidColorQuantizesUniformly(t *testing.T) {
	attrs, err := tensor.ParseSpec("NHWC:8U:1x2x2x3")
	require.NoError(t, err)

	p := NewBlobPreProcessor(Config{RGB: true})
	img := solidImage(8, 8, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	blobs, _, err := p.Process(img, attrs)
	require.NoError(t, err)
	data := blobs[0].Uint8s()
	// NHWC 2x2x3: every pixel should carry the same RGB triple.
	for i := 0; i < len(data); i += 3 {
		assert.Equal(t, uint8(10), data[i])
		assert.Equal(t, uint8(20), data[i+1])
		assert.Equal(t, uint8(30), data[i+2])
	}
}

func TestBlobPreProcessor_BGRReorder(t *testing.T) {
	attrs, err := tensor.ParseSpec("NHWC:8U:1x1x1x3")
	require.NoError(t, err)

	p := NewBlobPreProcessor(Config{RGB: false})
	img := solidImage(4, 4, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	blobs, _, err := p.Process(img, attrs)
	require.NoError(t, err)
	data := blobs[0].Uint8s()
	assert.Equal(t, []uint8{30, 20, 10}, data)
}

func TestBlobPreProcessor_BlobShapeMismatchWhenNoInputs(t *testing.T) {
	p := NewBlobPreProcessor(Config{})
	_, _, err := p.Process(solidImage(4, 4, color.RGBA{}), nil)
	require.Error(t, err)
	var mismatch *BlobShapeMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestBlobPreProcessor_AuxiliaryNonSpatialInputZeroFilled(t *testing.T) {
	attrs, err := tensor.ParseSpec("NA:32F:1x2")
	require.NoError(t, err)
	p := NewBlobPreProcessor(Config{})
	blobs, _, err := p.Process(solidImage(4, 4, color.RGBA{}), attrs)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, blobs[0].Float32s())
}

func TestLetterboxFit_PreservesAspectAndCenters(t *testing.T) {
	fitW, fitH, padX, padY := letterboxFit(100, 50, 64, 64)
	assert.Equal(t, 64, fitW)
	assert.Equal(t, 32, fitH)
	assert.Equal(t, 0, padX)
	assert.Equal(t, 16, padY)
}
