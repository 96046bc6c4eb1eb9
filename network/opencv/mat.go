package opencv

import (
	"gocv.io/x/gocv"

	"github.com/harshmittal2210/jevois/blob"
	"github.com/harshmittal2210/jevois/tensor"
)

// blobToMat wraps a Blob's raw bytes in a gocv.Mat of matching shape and
// type, for handoff into gocv.Net.SetInput.
func blobToMat(b blob.Blob) gocv.Mat {
	sizes := make([]int, b.Attr.Rank())
	for i, d := range b.Attr.Dims {
		sizes[i] = int(d)
	}
	mt := matType(b.Attr.Type)
	mat, err := gocv.NewMatWithSizesFromBytes(sizes, mt, b.Data)
	if err != nil {
		// Caller already validated b.Attr via CheckInputs; a failure here
		// means gocv itself rejected the shape/type combination.
		return gocv.NewMat()
	}
	return mat
}

// matToBlob copies a gocv.Mat's backing bytes into a Blob matching attr.
func matToBlob(m gocv.Mat, attr tensor.TensorAttr) blob.Blob {
	b := blob.New(attr)
	data := m.ToBytes()
	n := len(data)
	if n > len(b.Data) {
		n = len(b.Data)
	}
	copy(b.Data, data[:n])
	return b
}

func matType(t tensor.ElemType) gocv.MatType {
	switch t {
	case tensor.U8:
		return gocv.MatTypeCV8U
	case tensor.I8:
		return gocv.MatTypeCV8S
	case tensor.U16:
		return gocv.MatTypeCV16U
	case tensor.I16:
		return gocv.MatTypeCV16S
	case tensor.I32:
		return gocv.MatTypeCV32S
	case tensor.F32:
		return gocv.MatTypeCV32F
	default:
		return gocv.MatTypeCV32F
	}
}
