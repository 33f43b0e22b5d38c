// Package abi is the contract between the engine and a host-side marshalling
// layer that cannot carry Go types: dtypes and error kinds travel as stable
// numeric codes, tensors as (code, shape, bytes) triples.
//
// Both code tables are declared independently of the engine enumerations and
// their lengths are checked at compile time, so adding a dtype or an error
// kind without a code here breaks the build.
package abi

import (
	"fmt"

	"github.com/born-ml/stcore/internal/dtype"
	"github.com/born-ml/stcore/internal/serialization"
)

// Dtype is the host-side dtype code.
type Dtype uint32

// Host dtype codes. Values are part of the boundary and must never change.
const (
	DtypeBOOL    Dtype = 0
	DtypeF4      Dtype = 1
	DtypeF6E2M3  Dtype = 2
	DtypeF6E3M2  Dtype = 3
	DtypeU8      Dtype = 4
	DtypeI8      Dtype = 5
	DtypeF8E5M2  Dtype = 6
	DtypeF8E4M3  Dtype = 7
	DtypeF8E8M0  Dtype = 8
	DtypeI16     Dtype = 9
	DtypeU16     Dtype = 10
	DtypeF16     Dtype = 11
	DtypeBF16    Dtype = 12
	DtypeI32     Dtype = 13
	DtypeU32     Dtype = 14
	DtypeF32     Dtype = 15
	DtypeF64     Dtype = 16
	DtypeI64     Dtype = 17
	DtypeU64     Dtype = 18
)

// Status is the host-side error code. StatusOK is returned for success.
type Status uint32

// Status codes. Values are part of the boundary and must never change.
const (
	StatusOK                           Status = 0
	StatusInvalidHeader                Status = 1
	StatusInvalidHeaderStart           Status = 2
	StatusInvalidHeaderDeserialization Status = 3
	StatusHeaderTooLarge               Status = 4
	StatusHeaderTooSmall               Status = 5
	StatusInvalidHeaderLength          Status = 6
	StatusTensorNotFound               Status = 7
	StatusTensorInvalidInfo            Status = 8
	StatusInvalidOffset                Status = 9
	StatusIoError                      Status = 10
	StatusJSONError                    Status = 11
	StatusInvalidTensorView            Status = 12
	StatusMetadataIncompleteBuffer     Status = 13
	StatusValidationOverflow           Status = 14
	StatusMisalignedSlice              Status = 15
	// StatusUnknown is returned for errors that did not come from the engine.
	StatusUnknown Status = 255
)

// dtypeCodes is indexed by dtype.DType.
var dtypeCodes = [...]Dtype{
	dtype.BOOL:    DtypeBOOL,
	dtype.F4:      DtypeF4,
	dtype.F6_E2M3: DtypeF6E2M3,
	dtype.F6_E3M2: DtypeF6E3M2,
	dtype.U8:      DtypeU8,
	dtype.I8:      DtypeI8,
	dtype.F8_E5M2: DtypeF8E5M2,
	dtype.F8_E4M3: DtypeF8E4M3,
	dtype.F8_E8M0: DtypeF8E8M0,
	dtype.I16:     DtypeI16,
	dtype.U16:     DtypeU16,
	dtype.F16:     DtypeF16,
	dtype.BF16:    DtypeBF16,
	dtype.I32:     DtypeI32,
	dtype.U32:     DtypeU32,
	dtype.F32:     DtypeF32,
	dtype.F64:     DtypeF64,
	dtype.I64:     DtypeI64,
	dtype.U64:     DtypeU64,
}

// statusCodes is indexed by serialization.ErrorKind; index 0 is success.
var statusCodes = [...]Status{
	0: StatusOK,
	serialization.KindInvalidHeader:                StatusInvalidHeader,
	serialization.KindInvalidHeaderStart:           StatusInvalidHeaderStart,
	serialization.KindInvalidHeaderDeserialization: StatusInvalidHeaderDeserialization,
	serialization.KindHeaderTooLarge:               StatusHeaderTooLarge,
	serialization.KindHeaderTooSmall:               StatusHeaderTooSmall,
	serialization.KindInvalidHeaderLength:          StatusInvalidHeaderLength,
	serialization.KindTensorNotFound:               StatusTensorNotFound,
	serialization.KindTensorInvalidInfo:            StatusTensorInvalidInfo,
	serialization.KindInvalidOffset:                StatusInvalidOffset,
	serialization.KindIoError:                      StatusIoError,
	serialization.KindJSONError:                    StatusJSONError,
	serialization.KindInvalidTensorView:            StatusInvalidTensorView,
	serialization.KindMetadataIncompleteBuffer:     StatusMetadataIncompleteBuffer,
	serialization.KindValidationOverflow:           StatusValidationOverflow,
	serialization.KindMisalignedSlice:              StatusMisalignedSlice,
}

// Compile-time checks: each table covers its enumeration exactly. A negative
// constant converted to uint does not compile.
const (
	_ = uint(len(dtypeCodes) - dtype.Count)
	_ = uint(dtype.Count - len(dtypeCodes))
	_ = uint(len(statusCodes) - 1 - serialization.NumKinds)
	_ = uint(serialization.NumKinds - (len(statusCodes) - 1))
)

// Reverse lookups, built once from the forward tables.
var (
	dtypeByCode  = make(map[Dtype]dtype.DType, len(dtypeCodes))
	kindByStatus = make(map[Status]serialization.ErrorKind, len(statusCodes))
)

func init() {
	for dt, code := range dtypeCodes {
		if _, dup := dtypeByCode[code]; dup {
			panic(fmt.Sprintf("abi: duplicate dtype code %d", code))
		}
		dtypeByCode[code] = dtype.DType(dt)
	}
	for kind, code := range statusCodes {
		if _, dup := kindByStatus[code]; dup {
			panic(fmt.Sprintf("abi: duplicate status code %d", code))
		}
		kindByStatus[code] = serialization.ErrorKind(kind)
	}
}

// DtypeCode returns the host code for dt.
func DtypeCode(dt dtype.DType) (Dtype, error) {
	if !dt.Valid() {
		return 0, fmt.Errorf("%w: %d", dtype.ErrUnknown, int(dt))
	}
	return dtypeCodes[dt], nil
}

// DtypeFromCode returns the engine dtype for a host code.
func DtypeFromCode(code Dtype) (dtype.DType, error) {
	dt, ok := dtypeByCode[code]
	if !ok {
		return 0, fmt.Errorf("%w: code %d", dtype.ErrUnknown, uint32(code))
	}
	return dt, nil
}

// ErrorCode translates err into a status. Diagnostics (tensor name, offsets,
// lengths) are dropped; the kind is kept. nil maps to StatusOK and errors
// from outside the engine to StatusUnknown.
func ErrorCode(err error) Status {
	if err == nil {
		return StatusOK
	}
	kind := serialization.KindOf(err)
	if !kind.Valid() {
		return StatusUnknown
	}
	return statusCodes[kind]
}

// KindFromCode returns the error kind for a status. StatusOK and unknown
// codes report false.
func KindFromCode(code Status) (serialization.ErrorKind, bool) {
	kind, ok := kindByStatus[code]
	if !ok || kind == 0 {
		return 0, false
	}
	return kind, true
}

// String returns the engine name of the status (e.g. "InvalidTensorView").
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusUnknown:
		return "Unknown"
	}
	if kind, ok := KindFromCode(s); ok {
		return kind.String()
	}
	return fmt.Sprintf("Status(%d)", uint32(s))
}

// String returns the dtype name for a known code.
func (d Dtype) String() string {
	if dt, err := DtypeFromCode(d); err == nil {
		return dt.String()
	}
	return fmt.Sprintf("Dtype(%d)", uint32(d))
}
