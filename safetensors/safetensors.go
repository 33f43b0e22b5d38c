// Package safetensors reads and writes safetensors containers.
//
// This package wraps the internal engine and exports a clean public API.
// A container is an 8-byte little-endian header length, a JSON header
// describing each tensor's dtype, shape and byte range, and the raw tensor
// bytes back to back.
//
// Example usage:
//
//	import "github.com/born-ml/stcore/safetensors"
//
//	w, err := safetensors.NewTensorView(safetensors.F32, []uint64{2, 3}, raw)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	buf, err := safetensors.Serialize([]safetensors.NamedView{{Name: "w", View: w}},
//	    map[string]string{"format": "pt"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	st, err := safetensors.Deserialize(buf)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	view, _ := st.Tensor("w")
package safetensors

import (
	"context"
	"io"

	"github.com/born-ml/stcore/internal/dtype"
	"github.com/born-ml/stcore/internal/serialization"
	"github.com/born-ml/stcore/internal/storage"
)

// DType identifies a tensor element type.
type DType = dtype.DType

// Supported dtypes, in increasing alignment order.
//
//nolint:revive,stylecheck // underscores are part of the wire names
const (
	BOOL    = dtype.BOOL
	F4      = dtype.F4
	F6_E2M3 = dtype.F6_E2M3
	F6_E3M2 = dtype.F6_E3M2
	U8      = dtype.U8
	I8      = dtype.I8
	F8_E5M2 = dtype.F8_E5M2
	F8_E4M3 = dtype.F8_E4M3
	F8_E8M0 = dtype.F8_E8M0
	I16     = dtype.I16
	U16     = dtype.U16
	F16     = dtype.F16
	BF16    = dtype.BF16
	I32     = dtype.I32
	U32     = dtype.U32
	F32     = dtype.F32
	F64     = dtype.F64
	I64     = dtype.I64
	U64     = dtype.U64
)

// ParseDType returns the dtype with the given header name (e.g. "BF16").
func ParseDType(name string) (DType, error) {
	return dtype.Parse(name)
}

// DTypes returns every dtype in declaration order.
func DTypes() []DType {
	return dtype.All()
}

// View is anything that can be written as a tensor.
type View = serialization.View

// NamedView pairs a View with its name.
type NamedView = serialization.NamedView

// TensorView is an immutable, zero-copy tensor descriptor.
type TensorView = serialization.TensorView

// TensorInfo is one tensor entry of a header.
type TensorInfo = serialization.TensorInfo

// Header is a decoded container header.
type Header = serialization.Header

// SafeTensors is a parsed, validated container.
type SafeTensors = serialization.SafeTensors

// MmapReader is a container backed by a read-only file mapping.
type MmapReader = serialization.MmapReader

// Error is the error type returned for every engine failure.
type Error = serialization.Error

// ErrorKind classifies an Error.
type ErrorKind = serialization.ErrorKind

// Sentinel errors for errors.Is, one per ErrorKind.
var (
	ErrInvalidHeader                = serialization.ErrInvalidHeader
	ErrInvalidHeaderStart           = serialization.ErrInvalidHeaderStart
	ErrInvalidHeaderDeserialization = serialization.ErrInvalidHeaderDeserialization
	ErrHeaderTooLarge               = serialization.ErrHeaderTooLarge
	ErrHeaderTooSmall               = serialization.ErrHeaderTooSmall
	ErrInvalidHeaderLength          = serialization.ErrInvalidHeaderLength
	ErrTensorNotFound               = serialization.ErrTensorNotFound
	ErrTensorInvalidInfo            = serialization.ErrTensorInvalidInfo
	ErrInvalidOffset                = serialization.ErrInvalidOffset
	ErrIO                           = serialization.ErrIO
	ErrJSON                         = serialization.ErrJSON
	ErrInvalidTensorView            = serialization.ErrInvalidTensorView
	ErrMetadataIncompleteBuffer     = serialization.ErrMetadataIncompleteBuffer
	ErrValidationOverflow           = serialization.ErrValidationOverflow
	ErrMisalignedSlice              = serialization.ErrMisalignedSlice
)

// KindOf returns the ErrorKind of err, or 0 if err did not come from this
// package.
func KindOf(err error) ErrorKind {
	return serialization.KindOf(err)
}

// NewTensorView creates a view over data. data is borrowed, not copied, and
// its length must match dtype and shape exactly.
func NewTensorView(dt DType, shape []uint64, data []byte) (TensorView, error) {
	return serialization.NewTensorView(dt, shape, data)
}

// Serialize encodes views and metadata as a container. Tensors are laid out
// in name order; a nil metadata map omits the metadata entry.
func Serialize(views []NamedView, metadata map[string]string) ([]byte, error) {
	return serialization.Serialize(views, metadata)
}

// SerializeMap is Serialize for a map of views.
func SerializeMap(views map[string]View, metadata map[string]string) ([]byte, error) {
	return serialization.SerializeMap(views, metadata)
}

// SerializeTo streams a container to w.
func SerializeTo(w io.Writer, views []NamedView, metadata map[string]string) (int64, error) {
	return serialization.SerializeTo(w, views, metadata)
}

// WriteFile writes a container to path atomically.
func WriteFile(path string, views []NamedView, metadata map[string]string) error {
	return serialization.WriteFile(path, views, metadata)
}

// Deserialize parses and validates a container held in memory.
func Deserialize(buf []byte) (*SafeTensors, error) {
	return serialization.Deserialize(buf)
}

// ReadFile reads and validates the container at path.
func ReadFile(path string) (*SafeTensors, error) {
	return serialization.ReadFile(path)
}

// ReadHeader reads only the header from r.
func ReadHeader(r io.Reader) (*Header, int64, error) {
	return serialization.ReadHeader(r)
}

// OpenMmap maps the container at path. Call Close when done.
func OpenMmap(path string) (*MmapReader, error) {
	return serialization.OpenMmap(path)
}

// Checksum returns the SHA-256 of a serialized container.
func Checksum(buf []byte) [32]byte {
	return serialization.ComputeChecksum(buf)
}

// Fingerprint returns the hex SHA-256 of a serialized container.
func Fingerprint(buf []byte) string {
	return serialization.Fingerprint(buf)
}

// Store persists containers by name.
type Store = storage.Store

// Compression selects container framing at rest.
type Compression = storage.Compression

// Compression modes.
const (
	CompressionNone = storage.CompressionNone
	CompressionZSTD = storage.CompressionZSTD
	CompressionLZ4  = storage.CompressionLZ4
)

// NewLocalStore returns a Store rooted at a local directory.
func NewLocalStore(root string) Store {
	return storage.NewLocalStore(root)
}

// WithCompression wraps s so containers are compressed on Put and
// transparently decompressed on Get.
func WithCompression(s Store, c Compression) Store {
	return storage.NewCompressedStore(s, c)
}

// Save serializes and stores a container.
func Save(ctx context.Context, s Store, name string, views []NamedView, metadata map[string]string) error {
	return serialization.Save(ctx, s, name, views, metadata)
}

// Load fetches and parses a container.
func Load(ctx context.Context, s Store, name string) (*SafeTensors, error) {
	return serialization.Load(ctx, s, name)
}
