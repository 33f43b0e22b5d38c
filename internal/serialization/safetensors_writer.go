package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"unicode/utf8"

	"github.com/born-ml/stcore/internal/storage"
)

// Serialize lays out views and metadata as a safetensors container.
//
// Format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]
//
// Tensors are written in lexicographic order of their names, so identical
// logical input always produces identical bytes regardless of the order of
// views. A nil metadata map omits the __metadata__ key; a non-nil empty map
// writes it as {}.
//
// Either the whole container is returned or an error is; there is no partial
// output.
func Serialize(views []NamedView, metadata map[string]string) ([]byte, error) {
	set, err := Prepare(views)
	if err != nil {
		return nil, err
	}
	return serializeSet(set, metadata)
}

// SerializeMap is Serialize for a name-keyed map of views.
func SerializeMap(views map[string]View, metadata map[string]string) ([]byte, error) {
	set, err := PrepareMap(views)
	if err != nil {
		return nil, err
	}
	return serializeSet(set, metadata)
}

func serializeSet(set *TensorSet, metadata map[string]string) ([]byte, error) {
	header, payloadLen, err := buildHeader(set, metadata)
	if err != nil {
		return nil, err
	}

	total := uint64(HeaderLenSize) + uint64(len(header)) + uint64(payloadLen) //nolint:gosec // G115: lengths are non-negative
	if total > math.MaxInt {
		return nil, newError(KindValidationOverflow, "", "container of %d bytes exceeds address range", total)
	}

	buf := make([]byte, 0, int(total))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(header)))
	buf = append(buf, header...)

	// Write tensor data in header order
	for _, name := range set.names {
		v := set.views[name]
		data := v.Data()
		if len(data) != v.DataLen() {
			return nil, invalidTensorView(name, v.DType(), v.Shape(), len(data), v.DataLen())
		}
		buf = append(buf, data...)
	}

	return buf, nil
}

// SerializeTo streams the container to w and returns the number of bytes
// written.
//
// All validation and header encoding happens before the first write. After
// that, a failing writer surfaces as KindIoError and w may hold a prefix of
// the container.
func SerializeTo(w io.Writer, views []NamedView, metadata map[string]string) (int64, error) {
	set, err := Prepare(views)
	if err != nil {
		return 0, err
	}

	header, _, err := buildHeader(set, metadata)
	if err != nil {
		return 0, err
	}

	var written int64

	// Write header size (8 bytes, little-endian uint64)
	var prefix [HeaderLenSize]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(header)))
	n, err := w.Write(prefix[:])
	written += int64(n)
	if err != nil {
		return written, wrapError(KindIoError, "", err)
	}

	// Write header JSON
	n, err = w.Write(header)
	written += int64(n)
	if err != nil {
		return written, wrapError(KindIoError, "", err)
	}

	for _, name := range set.names {
		v := set.views[name]
		data := v.Data()
		if len(data) != v.DataLen() {
			return written, invalidTensorView(name, v.DType(), v.Shape(), len(data), v.DataLen())
		}
		n, err = w.Write(data)
		written += int64(n)
		if err != nil {
			return written, wrapError(KindIoError, name, err)
		}
	}

	return written, nil
}

// WriteFile serializes views and metadata and writes the container to path.
// The file is replaced atomically, so readers never observe a partial file.
func WriteFile(path string, views []NamedView, metadata map[string]string) error {
	data, err := Serialize(views, metadata)
	if err != nil {
		return err
	}
	if err := storage.WriteFileAtomic(path, data, 0o644); err != nil {
		return wrapError(KindIoError, "", err)
	}
	return nil
}

// buildHeader computes the layout and encodes the JSON header.
func buildHeader(set *TensorSet, metadata map[string]string) ([]byte, int, error) {
	infos, payloadLen, err := set.Layout()
	if err != nil {
		return nil, 0, err
	}
	header, err := EncodeHeader(&Header{Metadata: metadata, Tensors: infos})
	if err != nil {
		return nil, 0, err
	}
	return header, payloadLen, nil
}

// EncodeHeader encodes h as compact JSON.
//
// The metadata entry comes first when present, followed by the tensors in
// the order they appear in h.Tensors. Key order is fixed so the encoding is
// reproducible.
func EncodeHeader(h *Header) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	// '<', '>' and '&' are written as is, not as \u003c etc.
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	first := true
	entry := func(key string, value any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := enc.Encode(key); err != nil {
			return wrapError(KindJSONError, key, err)
		}
		buf.Truncate(buf.Len() - 1) // Encode appends '\n'
		buf.WriteByte(':')
		if err := enc.Encode(value); err != nil {
			return wrapError(KindJSONError, key, err)
		}
		buf.Truncate(buf.Len() - 1)
		return nil
	}

	if err := checkHeaderStrings(h); err != nil {
		return nil, err
	}

	if h.Metadata != nil {
		if err := entry(MetadataKey, h.Metadata); err != nil {
			return nil, err
		}
	}
	for _, t := range h.Tensors {
		if err := entry(t.Name, t.Info); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	if buf.Len() > MaxHeaderSize {
		return nil, newError(KindHeaderTooLarge, "", "encoded header is %d bytes", buf.Len())
	}
	return buf.Bytes(), nil
}

// checkHeaderStrings rejects keys and values that encoding/json would
// silently rewrite to U+FFFD.
func checkHeaderStrings(h *Header) error {
	for k, v := range h.Metadata {
		if !utf8.ValidString(k) {
			return newError(KindJSONError, k, "metadata key is not valid UTF-8")
		}
		if !utf8.ValidString(v) {
			return newError(KindJSONError, k, "metadata value is not valid UTF-8")
		}
	}
	for _, t := range h.Tensors {
		if !utf8.ValidString(t.Name) {
			return newError(KindJSONError, t.Name, "tensor name is not valid UTF-8")
		}
	}
	return nil
}
