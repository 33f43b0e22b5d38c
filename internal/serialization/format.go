package serialization

import (
	"encoding/json"

	"github.com/born-ml/stcore/internal/dtype"
)

// Format constants.
//
// A container is laid out as:
//
//	[0..8)   uint64 little-endian N, the header length in bytes
//	[8..8+N) UTF-8 JSON header
//	[8+N..)  tensor payload, tensors back to back in header order
const (
	HeaderLenSize = 8                 // Size of the header length prefix
	MaxHeaderSize = 100 * 1024 * 1024 // 100MB - maximum header size
	MetadataKey   = "__metadata__"    // Reserved header key for the metadata map
)

// TensorInfo describes one tensor in the header.
// Endianness is assumed to be little-endian. Ordering is assumed to be 'C'.
type TensorInfo struct {
	// The DType of each element of the tensor.
	DType dtype.DType `json:"dtype"`
	// The Shape of the tensor.
	Shape []uint64 `json:"shape"`
	// DataOffsets is the half-open byte range [begin, end) of the tensor
	// relative to the start of the payload.
	DataOffsets [2]uint64 `json:"data_offsets"`
}

// MarshalJSON encodes a scalar's shape as [] rather than null.
func (ti TensorInfo) MarshalJSON() ([]byte, error) {
	type plain TensorInfo
	p := plain(ti)
	if p.Shape == nil {
		p.Shape = []uint64{}
	}
	return json.Marshal(p)
}

// Size returns end - begin.
func (ti TensorInfo) Size() uint64 {
	return ti.DataOffsets[1] - ti.DataOffsets[0]
}

// NamedTensorInfo is a pair of a TensorInfo and its name.
type NamedTensorInfo struct {
	Name string
	Info TensorInfo
}

// Header is the decoded JSON header of a container.
type Header struct {
	// Metadata is nil when the header has no __metadata__ key.
	Metadata map[string]string
	// Tensors lists every tensor in payload order (ascending data offsets).
	Tensors []NamedTensorInfo
}

// Lookup returns the info for the named tensor.
func (h *Header) Lookup(name string) (TensorInfo, bool) {
	for _, t := range h.Tensors {
		if t.Name == name {
			return t.Info, true
		}
	}
	return TensorInfo{}, false
}

// PayloadSize returns the end offset of the last tensor, which for a valid
// header is the payload length.
func (h *Header) PayloadSize() uint64 {
	if len(h.Tensors) == 0 {
		return 0
	}
	return h.Tensors[len(h.Tensors)-1].Info.DataOffsets[1]
}
