package serialization

import (
	"fmt"
	"math/bits"

	"github.com/born-ml/stcore/internal/dtype"
)

// View is anything that can be written as a tensor.
//
// DataLen must equal len(Data()). It exists so that representations which
// know their size without materializing bytes (for example a device-resident
// buffer) can be laid out before Data is called.
type View interface {
	DType() dtype.DType
	Shape() []uint64
	Data() []byte
	DataLen() int
}

// NamedView is a pair of a View and its name (or label, or key).
type NamedView struct {
	Name string
	View View
}

// TensorView is an immutable, non-owning descriptor of one tensor: a dtype,
// a shape and the bytes backing it.
//
// The data slice is borrowed, never copied. The caller owns the backing
// array and must keep it unchanged for as long as the view is in use.
// The shape is copied on construction.
type TensorView struct {
	dt    dtype.DType
	shape []uint64
	data  []byte
}

var _ View = TensorView{}

// NewTensorView creates a new TensorView.
//
// len(data) must equal the packed byte length of shape elements of dt,
// i.e. product(shape)*size for byte-granular dtypes and
// ceil(product(shape)*bits/8) for sub-byte dtypes. Any other length fails
// with KindInvalidTensorView.
func NewTensorView(dt dtype.DType, shape []uint64, data []byte) (TensorView, error) {
	if err := checkView("", dt, shape, len(data)); err != nil {
		return TensorView{}, err
	}

	return TensorView{
		dt:    dt,
		shape: append([]uint64(nil), shape...),
		data:  data,
	}, nil
}

// checkView validates the size invariant shared by NewTensorView, Prepare and
// the reader.
func checkView(name string, dt dtype.DType, shape []uint64, n int) error {
	if !dt.Valid() {
		return newError(KindTensorInvalidInfo, name, "unknown dtype %d", int(dt))
	}
	want, err := dtype.ShapeByteLen(dt, shape)
	if err != nil {
		return sizeError(name, err)
	}
	if n != want {
		return invalidTensorView(name, dt, shape, n, want)
	}
	return nil
}

// DType returns the element type.
func (tv TensorView) DType() dtype.DType { return tv.dt }

// Shape returns a copy of the dimensions.
func (tv TensorView) Shape() []uint64 { return append([]uint64(nil), tv.shape...) }

// Data returns the borrowed bytes. It does not copy; do not modify the result.
func (tv TensorView) Data() []byte { return tv.data }

// DataLen returns the length of the data in bytes.
func (tv TensorView) DataLen() int { return len(tv.data) }

// NumElements returns the number of elements described by the shape.
func (tv TensorView) NumElements() uint64 {
	// Cannot overflow: checked in NewTensorView.
	n, _ := dtype.ElementCount(tv.shape)
	return n
}

// String implements fmt.Stringer.
func (tv TensorView) String() string {
	return fmt.Sprintf("TensorView(%s, %v, %d bytes)", tv.dt, tv.shape, len(tv.data))
}

// Narrow returns a zero-copy view of rows [begin, end) along the first axis.
//
// For sub-byte dtypes the selected range must start on a byte boundary and
// must either end on one or extend to the last row; otherwise the result
// cannot be expressed as a byte slice and KindMisalignedSlice is returned.
func (tv TensorView) Narrow(begin, end uint64) (TensorView, error) {
	if len(tv.shape) == 0 {
		return TensorView{}, newError(KindTensorInvalidInfo, "", "cannot narrow a scalar")
	}
	rows := tv.shape[0]
	if begin > end || end > rows {
		return TensorView{}, newError(KindTensorInvalidInfo, "",
			"range [%d, %d) out of bounds for dimension of size %d", begin, end, rows)
	}

	shape := tv.Shape()
	shape[0] = end - begin
	if begin == end {
		return TensorView{dt: tv.dt, shape: shape, data: tv.data[:0]}, nil
	}

	rowElems, err := dtype.ElementCount(tv.shape[1:])
	if err != nil {
		return TensorView{}, sizeError("", err)
	}

	startByte, err := rowByteOffset(tv.dt, rowElems, begin)
	if err != nil {
		return TensorView{}, err
	}
	endByte := len(tv.data)
	if end != rows {
		endByte, err = rowByteOffset(tv.dt, rowElems, end)
		if err != nil {
			return TensorView{}, err
		}
	}

	return TensorView{dt: tv.dt, shape: shape, data: tv.data[startByte:endByte]}, nil
}

// rowByteOffset returns the byte offset of the first element of row.
// For packed dtypes it fails when that element does not start on a byte.
func rowByteOffset(dt dtype.DType, rowElems, row uint64) (int, error) {
	hi, idx := bits.Mul64(row, rowElems)
	if hi != 0 {
		return 0, newError(KindValidationOverflow, "", "row %d of %d elements", row, rowElems)
	}
	bitOff, err := dtype.BitOffset(dt, idx)
	if err != nil {
		return 0, sizeError("", err)
	}
	if bitOff%8 != 0 {
		return 0, newError(KindMisalignedSlice, "",
			"%s element %d starts at bit %d", dt, idx, bitOff)
	}
	// Bounded by len(data), which is an int.
	return int(bitOff / 8), nil
}
