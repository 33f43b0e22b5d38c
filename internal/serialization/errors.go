package serialization

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/stcore/internal/dtype"
)

// ErrorKind classifies every failure the engine can report.
// The set is closed: callers (and the abi package) may switch over it
// exhaustively.
type ErrorKind int

// Error kinds. The zero value is reserved for errors that did not originate
// in this package.
const (
	// KindInvalidHeader: the header is not valid UTF-8.
	KindInvalidHeader ErrorKind = iota + 1
	// KindInvalidHeaderStart: the header does not start with '{'.
	KindInvalidHeaderStart
	// KindInvalidHeaderDeserialization: the header is text but not the expected JSON.
	KindInvalidHeaderDeserialization
	// KindHeaderTooLarge: the declared header length exceeds MaxHeaderSize.
	KindHeaderTooLarge
	// KindHeaderTooSmall: the buffer is shorter than the 8-byte length prefix.
	KindHeaderTooSmall
	// KindInvalidHeaderLength: the declared header length runs past the buffer.
	KindInvalidHeaderLength
	// KindTensorNotFound: a requested tensor name is not in the container.
	KindTensorNotFound
	// KindTensorInvalidInfo: shape, dtype and offsets disagree with each other.
	KindTensorInvalidInfo
	// KindInvalidOffset: data_offsets are out of order or leave a gap.
	KindInvalidOffset
	// KindIoError: the underlying byte transport failed.
	KindIoError
	// KindJSONError: the JSON codec failed while encoding the header.
	KindJSONError
	// KindInvalidTensorView: a buffer length does not match dtype and shape.
	KindInvalidTensorView
	// KindMetadataIncompleteBuffer: offsets do not cover the payload exactly.
	KindMetadataIncompleteBuffer
	// KindValidationOverflow: element count or offset arithmetic overflowed.
	KindValidationOverflow
	// KindMisalignedSlice: a sub-byte slice would not start or end on a byte.
	KindMisalignedSlice

	numKinds // sentinel, keep last
)

// NumKinds is the number of error kinds, not counting the zero value.
const NumKinds = int(numKinds) - 1

var kindNames = [numKinds]string{
	KindInvalidHeader:                "InvalidHeader",
	KindInvalidHeaderStart:           "InvalidHeaderStart",
	KindInvalidHeaderDeserialization: "InvalidHeaderDeserialization",
	KindHeaderTooLarge:               "HeaderTooLarge",
	KindHeaderTooSmall:               "HeaderTooSmall",
	KindInvalidHeaderLength:          "InvalidHeaderLength",
	KindTensorNotFound:               "TensorNotFound",
	KindTensorInvalidInfo:            "TensorInvalidInfo",
	KindInvalidOffset:                "InvalidOffset",
	KindIoError:                      "IoError",
	KindJSONError:                    "JsonError",
	KindInvalidTensorView:            "InvalidTensorView",
	KindMetadataIncompleteBuffer:     "MetadataIncompleteBuffer",
	KindValidationOverflow:           "ValidationOverflow",
	KindMisalignedSlice:              "MisalignedSlice",
}

var kindMessages = [numKinds]string{
	0:                                "serialization error",
	KindInvalidHeader:                "header is not valid UTF-8",
	KindInvalidHeaderStart:           "header does not start with '{'",
	KindInvalidHeaderDeserialization: "header is not a valid safetensors JSON object",
	KindHeaderTooLarge:               "header exceeds maximum size",
	KindHeaderTooSmall:               "buffer too small for header length prefix",
	KindInvalidHeaderLength:          "header length exceeds buffer",
	KindTensorNotFound:               "tensor not found",
	KindTensorInvalidInfo:            "inconsistent tensor info",
	KindInvalidOffset:                "invalid data offsets",
	KindIoError:                      "i/o error",
	KindJSONError:                    "json error",
	KindInvalidTensorView:            "invalid tensor view",
	KindMetadataIncompleteBuffer:     "data offsets do not cover the payload",
	KindValidationOverflow:           "arithmetic overflow",
	KindMisalignedSlice:              "slice is not byte aligned",
}

// Kinds returns every error kind in declaration order.
func Kinds() []ErrorKind {
	out := make([]ErrorKind, 0, NumKinds)
	for k := KindInvalidHeader; k < numKinds; k++ {
		out = append(out, k)
	}
	return out
}

// Valid reports whether k is one of the declared kinds.
func (k ErrorKind) Valid() bool {
	return k > 0 && k < numKinds
}

// String returns the stable name of the kind (e.g. "InvalidTensorView").
func (k ErrorKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return kindNames[k]
}

// Error is the single error type returned by the engine.
//
// Kind is always set. The remaining fields are diagnostics and may be empty;
// code that crosses a boundary with a smaller error vocabulary may drop them
// and keep only Kind.
type Error struct {
	Kind    ErrorKind
	Tensor  string      // Tensor name involved, if any
	DType   dtype.DType // Valid only when HasView is set
	Shape   []uint64    // Valid only when HasView is set
	Len     int         // Actual buffer length, valid only when HasView is set
	HasView bool
	Details string // Additional details
	Err     error  // Underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(kindMessages[e.kindOrZero()])
	if e.Tensor != "" {
		fmt.Fprintf(&b, ": tensor %q", e.Tensor)
	}
	if e.HasView {
		fmt.Fprintf(&b, ": dtype=%s shape=%v len=%d", e.DType, e.Shape, e.Len)
	}
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) kindOrZero() ErrorKind {
	if e.Kind.Valid() {
		return e.Kind
	}
	return 0
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. This makes the
// Err* sentinels below usable with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels, one per kind, for use with errors.Is.
var (
	ErrInvalidHeader                = &Error{Kind: KindInvalidHeader}
	ErrInvalidHeaderStart           = &Error{Kind: KindInvalidHeaderStart}
	ErrInvalidHeaderDeserialization = &Error{Kind: KindInvalidHeaderDeserialization}
	ErrHeaderTooLarge               = &Error{Kind: KindHeaderTooLarge}
	ErrHeaderTooSmall               = &Error{Kind: KindHeaderTooSmall}
	ErrInvalidHeaderLength          = &Error{Kind: KindInvalidHeaderLength}
	ErrTensorNotFound               = &Error{Kind: KindTensorNotFound}
	ErrTensorInvalidInfo            = &Error{Kind: KindTensorInvalidInfo}
	ErrInvalidOffset                = &Error{Kind: KindInvalidOffset}
	ErrIO                           = &Error{Kind: KindIoError}
	ErrJSON                         = &Error{Kind: KindJSONError}
	ErrInvalidTensorView            = &Error{Kind: KindInvalidTensorView}
	ErrMetadataIncompleteBuffer     = &Error{Kind: KindMetadataIncompleteBuffer}
	ErrValidationOverflow           = &Error{Kind: KindValidationOverflow}
	ErrMisalignedSlice              = &Error{Kind: KindMisalignedSlice}
)

// KindOf returns the kind of the first *Error in err's chain, or 0 if there
// is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind ErrorKind, tensor, format string, args ...any) *Error {
	e := &Error{Kind: kind, Tensor: tensor}
	if format != "" {
		e.Details = fmt.Sprintf(format, args...)
	}
	return e
}

func wrapError(kind ErrorKind, tensor string, err error) *Error {
	return &Error{Kind: kind, Tensor: tensor, Err: err}
}

func invalidTensorView(name string, dt dtype.DType, shape []uint64, n, want int) *Error {
	return &Error{
		Kind:    KindInvalidTensorView,
		Tensor:  name,
		DType:   dt,
		Shape:   append([]uint64(nil), shape...),
		Len:     n,
		HasView: true,
		Details: fmt.Sprintf("expected %d bytes", want),
	}
}

// sizeError maps a failure from the dtype size helpers onto the taxonomy.
func sizeError(name string, err error) *Error {
	if errors.Is(err, dtype.ErrOverflow) {
		return wrapError(KindValidationOverflow, name, err)
	}
	return wrapError(KindTensorInvalidInfo, name, err)
}
