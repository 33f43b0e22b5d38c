// Package dtype defines the closed set of element types a safetensors
// container can carry, together with their storage widths.
//
// The declaration order of the enumeration is significant: it is
// non-decreasing in required memory alignment, so for any two dtypes a and b,
// a <= b implies a.Alignment() <= b.Alignment(). Consumers may rely on this.
package dtype

import (
	"errors"
	"fmt"
)

// DType identifies the element type of a tensor.
type DType int

// Supported dtypes, in increasing alignment order. Do not reorder.
// Note: Names use underscores to match the safetensors header names exactly.
//
//nolint:revive,stylecheck // underscores are part of the wire names
const (
	BOOL    DType = iota // Boolean, one byte per element
	F4                   // MXFP4 microscaling float (4 bits)
	F6_E2M3              // MXFP6 microscaling float (6 bits)
	F6_E3M2              // MXFP6 microscaling float (6 bits)
	U8                   // Unsigned 8-bit integer
	I8                   // Signed 8-bit integer
	F8_E5M2              // FP8, 5-bit exponent
	F8_E4M3              // FP8, 4-bit exponent
	F8_E8M0              // FP8 scale format (exponent only)
	I16                  // Signed 16-bit integer
	U16                  // Unsigned 16-bit integer
	F16                  // IEEE-754 half precision
	BF16                 // Brain floating point
	I32                  // Signed 32-bit integer
	U32                  // Unsigned 32-bit integer
	F32                  // IEEE-754 single precision
	F64                  // IEEE-754 double precision
	I64                  // Signed 64-bit integer
	U64                  // Unsigned 64-bit integer

	numDTypes // sentinel, keep last
)

// Count is the number of dtypes in the enumeration.
const Count = int(numDTypes)

// ErrUnknown is returned when a dtype name or value is not part of the enumeration.
var ErrUnknown = errors.New("unknown dtype")

// info is the static per-dtype table.
type info struct {
	name string
	bits int
}

var table = [numDTypes]info{
	BOOL:    {"BOOL", 8},
	F4:      {"F4", 4},
	F6_E2M3: {"F6_E2M3", 6},
	F6_E3M2: {"F6_E3M2", 6},
	U8:      {"U8", 8},
	I8:      {"I8", 8},
	F8_E5M2: {"F8_E5M2", 8},
	F8_E4M3: {"F8_E4M3", 8},
	F8_E8M0: {"F8_E8M0", 8},
	I16:     {"I16", 16},
	U16:     {"U16", 16},
	F16:     {"F16", 16},
	BF16:    {"BF16", 16},
	I32:     {"I32", 32},
	U32:     {"U32", 32},
	F32:     {"F32", 32},
	F64:     {"F64", 64},
	I64:     {"I64", 64},
	U64:     {"U64", 64},
}

var byName = func() map[string]DType {
	m := make(map[string]DType, len(table))
	for i, e := range table {
		m[e.name] = DType(i)
	}
	return m
}()

// All returns every dtype in declaration order.
func All() []DType {
	out := make([]DType, numDTypes)
	for i := range out {
		out[i] = DType(i)
	}
	return out
}

// Valid reports whether dt is a member of the enumeration.
func (dt DType) Valid() bool {
	return dt >= 0 && dt < numDTypes
}

// String returns the canonical header name of the dtype (e.g. "F32").
func (dt DType) String() string {
	if !dt.Valid() {
		return fmt.Sprintf("DType(%d)", int(dt))
	}
	return table[dt].name
}

// BitSize returns the storage width of one element in bits.
// It returns 0 for values outside the enumeration.
func (dt DType) BitSize() int {
	if !dt.Valid() {
		return 0
	}
	return table[dt].bits
}

// Size returns the storage width of one element in bytes.
// The second result is false for sub-byte dtypes (F4, F6_E2M3, F6_E3M2)
// and for values outside the enumeration; use BitSize for those.
func (dt DType) Size() (int, bool) {
	b := dt.BitSize()
	if b == 0 || b%8 != 0 {
		return 0, false
	}
	return b / 8, true
}

// SubByte reports whether elements of dt are narrower than one byte.
func (dt DType) SubByte() bool {
	b := dt.BitSize()
	return b > 0 && b < 8
}

// Alignment returns the natural alignment of dt in bytes.
// Sub-byte dtypes are byte aligned.
func (dt DType) Alignment() int {
	if n, ok := dt.Size(); ok {
		return n
	}
	if dt.Valid() {
		return 1
	}
	return 0
}

// Parse returns the dtype with the given header name.
func Parse(name string) (DType, error) {
	dt, ok := byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return dt, nil
}

// MarshalText implements encoding.TextMarshaler, so a DType encodes as its
// header name in JSON.
func (dt DType) MarshalText() ([]byte, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknown, int(dt))
	}
	return []byte(table[dt].name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (dt *DType) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*dt = v
	return nil
}
