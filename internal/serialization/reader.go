package serialization

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"unicode/utf8"

	"github.com/born-ml/stcore/internal/dtype"
)

// SafeTensors is a parsed, fully validated container.
//
// It does not own its bytes: tensor views returned by Tensor slice directly
// into the buffer passed to Deserialize.
type SafeTensors struct {
	header  Header
	index   map[string]int
	names   []string // sorted
	payload []byte
}

// Deserialize parses and validates a complete container held in buf.
//
// Header checks run in this order: length prefix present (HeaderTooSmall),
// header length within MaxHeaderSize (HeaderTooLarge) and within buf
// (InvalidHeaderLength), UTF-8 (InvalidHeader), leading '{'
// (InvalidHeaderStart), JSON schema (InvalidHeaderDeserialization). The
// tensor table is then checked by ValidateHeader.
func Deserialize(buf []byte) (*SafeTensors, error) {
	n, err := readHeaderLen(buf)
	if err != nil {
		return nil, err
	}
	if uint64(len(buf)-HeaderLenSize) < n {
		return nil, newError(KindInvalidHeaderLength, "",
			"header length %d, only %d bytes follow the prefix", n, len(buf)-HeaderLenSize)
	}
	stop := HeaderLenSize + int(n) //nolint:gosec // G115: n <= len(buf)

	header, err := DecodeHeader(buf[HeaderLenSize:stop])
	if err != nil {
		return nil, err
	}

	payload := buf[stop:]
	if err := ValidateHeader(header, uint64(len(payload))); err != nil {
		return nil, err
	}

	return newSafeTensors(header, payload), nil
}

// ReadFile reads the file at path into memory and deserializes it.
// Use OpenMmap to avoid copying large files.
func ReadFile(path string) (*SafeTensors, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(KindIoError, "", err)
	}
	return Deserialize(data)
}

// ReadHeader reads only the length prefix and header from r, leaving r
// positioned at the first payload byte. It returns the decoded header and
// the number of bytes consumed.
//
// The payload is not read, so tensor offsets are only checked for internal
// consistency, not against the payload length.
func ReadHeader(r io.Reader) (*Header, int64, error) {
	var prefix [HeaderLenSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, wrapError(KindHeaderTooSmall, "", err)
		}
		return nil, 0, wrapError(KindIoError, "", err)
	}

	n, err := readHeaderLen(prefix[:])
	if err != nil {
		return nil, 0, err
	}

	headerBytes := make([]byte, n)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, wrapError(KindInvalidHeaderLength, "", err)
		}
		return nil, 0, wrapError(KindIoError, "", err)
	}

	header, err := DecodeHeader(headerBytes)
	if err != nil {
		return nil, 0, err
	}
	if err := ValidateHeader(header, header.PayloadSize()); err != nil {
		return nil, 0, err
	}
	return header, int64(HeaderLenSize) + int64(n), nil //nolint:gosec // G115: n <= MaxHeaderSize
}

// readHeaderLen decodes and bounds-checks the length prefix.
func readHeaderLen(buf []byte) (uint64, error) {
	if len(buf) < HeaderLenSize {
		return 0, newError(KindHeaderTooSmall, "", "got %d bytes", len(buf))
	}
	n := binary.LittleEndian.Uint64(buf[:HeaderLenSize])
	if n > MaxHeaderSize {
		return 0, newError(KindHeaderTooLarge, "", "header length %d, max %d", n, MaxHeaderSize)
	}
	return n, nil
}

// rawTensorInfo mirrors TensorInfo with pointers so missing fields can be
// told apart from zero values.
type rawTensorInfo struct {
	DType       *dtype.DType `json:"dtype"`
	Shape       *[]uint64    `json:"shape"`
	DataOffsets *[]uint64    `json:"data_offsets"`
}

// DecodeHeader parses header JSON. It checks encoding and schema only; use
// ValidateHeader for offsets.
func DecodeHeader(data []byte) (*Header, error) {
	if !utf8.Valid(data) {
		return nil, newError(KindInvalidHeader, "", "")
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, newError(KindInvalidHeaderStart, "", "")
	}

	// First parse as generic map
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return nil, wrapError(KindInvalidHeaderDeserialization, "", err)
	}

	h := &Header{Tensors: make([]NamedTensorInfo, 0, len(rawMap))}

	// Extract metadata
	if metadataRaw, ok := rawMap[MetadataKey]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return nil, wrapError(KindInvalidHeaderDeserialization, MetadataKey,
				fmt.Errorf("failed to unmarshal metadata: %w", err))
		}
	}

	// Extract tensors (everything except __metadata__), in key order so the
	// first reported error does not depend on map iteration.
	keys := make([]string, 0, len(rawMap))
	for key := range rawMap {
		if key != MetadataKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := rawMap[key]
		var raw rawTensorInfo
		if err := json.Unmarshal(value, &raw); err != nil {
			return nil, wrapError(KindInvalidHeaderDeserialization, key, err)
		}
		if raw.DType == nil || raw.Shape == nil || raw.DataOffsets == nil {
			return nil, newError(KindInvalidHeaderDeserialization, key,
				"entry needs dtype, shape and data_offsets")
		}
		offsets := *raw.DataOffsets
		if len(offsets) != 2 {
			return nil, newError(KindInvalidHeaderDeserialization, key,
				"data_offsets has %d entries, want 2", len(offsets))
		}
		h.Tensors = append(h.Tensors, NamedTensorInfo{
			Name: key,
			Info: TensorInfo{DType: *raw.DType, Shape: *raw.Shape, DataOffsets: [2]uint64{offsets[0], offsets[1]}},
		})
	}

	sortByOffsets(h.Tensors)
	return h, nil
}

func newSafeTensors(h *Header, payload []byte) *SafeTensors {
	st := &SafeTensors{
		header:  *h,
		index:   make(map[string]int, len(h.Tensors)),
		names:   make([]string, 0, len(h.Tensors)),
		payload: payload,
	}
	for i, t := range h.Tensors {
		st.index[t.Name] = i
		st.names = append(st.names, t.Name)
	}
	sort.Strings(st.names)
	return st
}

// Header returns the decoded header. Tensors are in payload order.
func (st *SafeTensors) Header() Header {
	return st.header
}

// Metadata returns the metadata map, or nil if the container has none.
func (st *SafeTensors) Metadata() map[string]string {
	return st.header.Metadata
}

// Names returns all tensor names in lexicographic order.
func (st *SafeTensors) Names() []string {
	return append([]string(nil), st.names...)
}

// Len returns the number of tensors.
func (st *SafeTensors) Len() int { return len(st.names) }

// Info returns the header entry for name.
func (st *SafeTensors) Info(name string) (TensorInfo, error) {
	i, ok := st.index[name]
	if !ok {
		return TensorInfo{}, newError(KindTensorNotFound, name, "")
	}
	return st.header.Tensors[i].Info, nil
}

// Tensor returns a zero-copy view of the named tensor.
func (st *SafeTensors) Tensor(name string) (TensorView, error) {
	info, err := st.Info(name)
	if err != nil {
		return TensorView{}, err
	}
	// Offsets were validated against len(payload) in Deserialize.
	data := st.payload[info.DataOffsets[0]:info.DataOffsets[1]]
	return NewTensorView(info.DType, info.Shape, data)
}

// Tensors returns every tensor as a named view, in lexicographic order.
func (st *SafeTensors) Tensors() ([]NamedView, error) {
	out := make([]NamedView, 0, len(st.names))
	for _, name := range st.names {
		tv, err := st.Tensor(name)
		if err != nil {
			return nil, err
		}
		out = append(out, NamedView{Name: name, View: tv})
	}
	return out, nil
}

// PayloadLen returns the length of the payload segment in bytes.
func (st *SafeTensors) PayloadLen() int { return len(st.payload) }
