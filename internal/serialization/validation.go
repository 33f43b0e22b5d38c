package serialization

import (
	"math"
	"math/bits"
	"sort"
	"unicode/utf8"

	"github.com/born-ml/stcore/internal/dtype"
)

// TensorSet is a validated, name-keyed set of views ready to be laid out.
// It is built once per serialization call and never mutated afterwards.
type TensorSet struct {
	names []string // sorted
	views map[string]View
}

// Prepare validates every view and builds a TensorSet.
//
// Each view's size invariant is checked again even if it came from
// NewTensorView, since a View may be implemented outside this package.
// Validation stops at the first bad view. Duplicate names are not an error:
// the last entry with a given name wins.
func Prepare(views []NamedView) (*TensorSet, error) {
	set := &TensorSet{views: make(map[string]View, len(views))}
	for _, nv := range views {
		if err := validateNamedView(nv.Name, nv.View); err != nil {
			return nil, err
		}
		set.views[nv.Name] = nv.View
	}
	set.sortNames()
	return set, nil
}

// PrepareMap is Prepare for callers that already hold a map.
func PrepareMap(views map[string]View) (*TensorSet, error) {
	// Sort first so the reported error is deterministic.
	names := make([]string, 0, len(views))
	for name := range views {
		names = append(names, name)
	}
	sort.Strings(names)

	named := make([]NamedView, len(names))
	for i, name := range names {
		named[i] = NamedView{Name: name, View: views[name]}
	}
	return Prepare(named)
}

func validateNamedView(name string, v View) error {
	if name == MetadataKey {
		return newError(KindTensorInvalidInfo, name, "name is reserved for metadata")
	}
	// encoding/json would turn invalid bytes into U+FFFD, so distinct names
	// could collide in the header.
	if !utf8.ValidString(name) {
		return newError(KindTensorInvalidInfo, name, "name is not valid UTF-8")
	}
	if v == nil {
		return newError(KindInvalidTensorView, name, "nil view")
	}
	if err := checkView(name, v.DType(), v.Shape(), v.DataLen()); err != nil {
		return err
	}
	if n := len(v.Data()); n != v.DataLen() {
		return invalidTensorView(name, v.DType(), v.Shape(), n, v.DataLen())
	}
	return nil
}

func (s *TensorSet) sortNames() {
	s.names = make([]string, 0, len(s.views))
	for name := range s.views {
		s.names = append(s.names, name)
	}
	// Byte-wise lexicographic order keeps output reproducible for hashing.
	sort.Strings(s.names)
}

// Names returns tensor names in output order.
func (s *TensorSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the number of tensors in the set.
func (s *TensorSet) Len() int { return len(s.names) }

// View returns the view registered under name.
func (s *TensorSet) View(name string) (View, bool) {
	v, ok := s.views[name]
	return v, ok
}

// Layout assigns contiguous data offsets to every tensor in output order.
// It returns the header entries and the total payload length.
func (s *TensorSet) Layout() ([]NamedTensorInfo, int, error) {
	infos := make([]NamedTensorInfo, 0, len(s.names))
	var cursor uint64
	for _, name := range s.names {
		v := s.views[name]
		n := uint64(v.DataLen()) //nolint:gosec // G115: DataLen is a validated non-negative length

		end, carry := bits.Add64(cursor, n, 0)
		if carry != 0 || end > math.MaxInt {
			return nil, 0, newError(KindValidationOverflow, name,
				"payload offset %d + %d exceeds address range", cursor, n)
		}

		infos = append(infos, NamedTensorInfo{
			Name: name,
			Info: TensorInfo{
				DType:       v.DType(),
				Shape:       v.Shape(),
				DataOffsets: [2]uint64{cursor, end},
			},
		})
		cursor = end
	}
	return infos, int(cursor), nil
}

// ValidateHeader checks a decoded header against the payload length.
//
// Tensors are visited in ascending offset order. Each must start exactly
// where the previous one ended, must not end before it begins, and must span
// exactly the bytes its dtype and shape require. The last tensor must end at
// payloadLen.
func ValidateHeader(h *Header, payloadLen uint64) error {
	sortByOffsets(h.Tensors)

	var cursor uint64
	for _, t := range h.Tensors {
		begin, end := t.Info.DataOffsets[0], t.Info.DataOffsets[1]
		if begin != cursor || end < begin {
			return newError(KindInvalidOffset, t.Name,
				"data_offsets [%d, %d), expected begin %d", begin, end, cursor)
		}

		if !t.Info.DType.Valid() {
			return newError(KindTensorInvalidInfo, t.Name, "unknown dtype %d", int(t.Info.DType))
		}
		want, err := dtype.ShapeByteLen(t.Info.DType, t.Info.Shape)
		if err != nil {
			return sizeError(t.Name, err)
		}
		if end-begin != uint64(want) { //nolint:gosec // G115: want is non-negative
			return newError(KindTensorInvalidInfo, t.Name,
				"dtype %s shape %v needs %d bytes, data_offsets span %d",
				t.Info.DType, t.Info.Shape, want, end-begin)
		}
		cursor = end
	}

	if cursor != payloadLen {
		return newError(KindMetadataIncompleteBuffer, "",
			"tensors cover %d bytes, payload is %d bytes", cursor, payloadLen)
	}
	return nil
}

// sortByOffsets orders tensors by (begin, end), then name.
func sortByOffsets(ts []NamedTensorInfo) {
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := ts[i].Info.DataOffsets, ts[j].Info.DataOffsets
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return ts[i].Name < ts[j].Name
	})
}
