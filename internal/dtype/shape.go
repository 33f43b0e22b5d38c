package dtype

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// ErrOverflow is returned when an element count or byte length does not fit
// in the platform's address-width integer.
var ErrOverflow = errors.New("arithmetic overflow")

// ElementCount returns the product of the dimensions of shape.
// An empty shape is a scalar and has one element; any zero dimension yields 0.
func ElementCount(shape []uint64) (uint64, error) {
	for _, dim := range shape {
		if dim == 0 {
			return 0, nil
		}
	}

	n := uint64(1)
	for i, dim := range shape {
		hi, lo := bits.Mul64(n, dim)
		if hi != 0 {
			return 0, fmt.Errorf("%w: shape %v at dimension %d", ErrOverflow, shape, i)
		}
		n = lo
	}
	return n, nil
}

// ByteLen returns the exact number of bytes needed to store count elements
// of dt. Sub-byte dtypes are packed, so the length is ceil(count*bits/8).
func ByteLen(dt DType, count uint64) (int, error) {
	if !dt.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknown, int(dt))
	}

	var n uint64
	if size, ok := dt.Size(); ok {
		hi, lo := bits.Mul64(count, uint64(size))
		if hi != 0 {
			return 0, fmt.Errorf("%w: %d elements of %s", ErrOverflow, count, dt)
		}
		n = lo
	} else {
		hi, total := bits.Mul64(count, uint64(dt.BitSize()))
		if hi != 0 {
			return 0, fmt.Errorf("%w: %d elements of %s", ErrOverflow, count, dt)
		}
		n = total / 8
		if total%8 != 0 {
			n++
		}
	}

	if n > math.MaxInt {
		return 0, fmt.Errorf("%w: %d bytes exceeds address range", ErrOverflow, n)
	}
	return int(n), nil
}

// ShapeByteLen combines ElementCount and ByteLen.
func ShapeByteLen(dt DType, shape []uint64) (int, error) {
	n, err := ElementCount(shape)
	if err != nil {
		return 0, err
	}
	return ByteLen(dt, n)
}

// BitOffset returns the bit position of element index within a packed
// buffer of dt, failing on overflow.
func BitOffset(dt DType, index uint64) (uint64, error) {
	hi, lo := bits.Mul64(index, uint64(dt.BitSize()))
	if hi != 0 {
		return 0, fmt.Errorf("%w: element %d of %s", ErrOverflow, index, dt)
	}
	return lo, nil
}
