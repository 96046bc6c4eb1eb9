package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec_SingleAffineTensor(t *testing.T) {
	attrs, err := ParseSpec("NCHW:8U:1x3x224x224:AA:0.017:114")
	require.NoError(t, err)
	require.Len(t, attrs, 1)

	a := attrs[0]
	assert.Equal(t, NCHW, a.Layout)
	assert.Equal(t, U8, a.Type)
	assert.Equal(t, 4, a.Rank())
	assert.Equal(t, []int64{1, 3, 224, 224}, a.Dims)

	q, ok := a.Quant.(AffineAsymmetric)
	require.True(t, ok)
	assert.InDelta(t, 0.017, q.Scale, 1e-6)
	assert.Equal(t, int32(114), q.ZeroPoint)
}

func TestParseSpec_MultipleTensors(t *testing.T) {
	attrs, err := ParseSpec("NCHW:8U:1x3x224x224:AA:0.017:114, NCHW:8U:1x3x224x224:AA:0.017:114")
	require.NoError(t, err)
	assert.Len(t, attrs, 2)
	assert.True(t, attrs[0].Equal(attrs[1]))
}

func TestParseSpec_Empty(t *testing.T) {
	attrs, err := ParseSpec("")
	require.NoError(t, err)
	assert.Nil(t, attrs)
}

func TestParseSpec_NoQuant(t *testing.T) {
	attrs, err := ParseSpec("NHWC:32F:1x224x224x3")
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, NoQuant{}, attrs[0].Quant)
	assert.Equal(t, F32, attrs[0].Type)
}

func TestParseSpec_DFP(t *testing.T) {
	attrs, err := ParseSpec("NA:16S:1x128:DFP:7")
	require.NoError(t, err)
	q, ok := attrs[0].Quant.(DynamicFixedPoint)
	require.True(t, ok)
	assert.Equal(t, 7, q.FracLen)
}

func TestParseSpec_MalformedUnknownLayout(t *testing.T) {
	_, err := ParseSpec("XYZ:8U:1x3x224x224")
	require.Error(t, err)
	var ms *MalformedSpec
	assert.ErrorAs(t, err, &ms)
}

func TestParseSpec_MalformedUnknownType(t *testing.T) {
	_, err := ParseSpec("NCHW:99Q:1x3x224x224")
	require.Error(t, err)
}

func TestParseSpec_MalformedShape(t *testing.T) {
	_, err := ParseSpec("NCHW:8U:1x3xabcx224")
	require.Error(t, err)
}

func TestParseSpec_QuantOnFloatType(t *testing.T) {
	_, err := ParseSpec("NCHW:32F:1x3x224x224:AA:0.017:114")
	require.Error(t, err)
}

func TestParseSpec_IncompleteQuant(t *testing.T) {
	_, err := ParseSpec("NCHW:8U:1x3x224x224:AA:0.017")
	require.Error(t, err)
}

func TestParseFormatRoundTrip(t *testing.T) {
	specs := []string{
		"NCHW:8U:1x3x224x224:AA:0.017:114",
		"NHWC:32F:1x224x224x3",
		"NA:16S:1x128:DFP:7",
	}
	for _, s := range specs {
		attrs, err := ParseSpec(s)
		require.NoError(t, err)
		roundTripped, err := ParseSpec(FormatSpec(attrs))
		require.NoError(t, err)
		require.Len(t, roundTripped, len(attrs))
		for i := range attrs {
			assert.True(t, attrs[i].Equal(roundTripped[i]), "round-trip mismatch for %q", s)
		}
	}
}

func TestTensorAttr_ValidateAffinePerChannel(t *testing.T) {
	a := TensorAttr{
		Layout: NCHW,
		Type:   I8,
		Dims:   []int64{1, 3, 4, 4},
		Quant: AffinePerChannel{
			Axis:      1,
			Scale:     []float32{0.1, 0.2, 0.3},
			ZeroPoint: []int32{0, 0, 0},
		},
	}
	assert.NoError(t, a.Validate())

	bad := a
	bad.Quant = AffinePerChannel{Axis: 5, Scale: []float32{0.1}, ZeroPoint: []int32{0}}
	assert.Error(t, bad.Validate())
}
