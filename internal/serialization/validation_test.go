package serialization

import (
	"errors"
	"math"
	"testing"

	"github.com/born-ml/stcore/internal/dtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPrepare_OrderAndDuplicates verifies names are sorted and the last
// duplicate wins.
func TestPrepare_OrderAndDuplicates(t *testing.T) {
	one := mustView(t, dtype.U8, []uint64{1}, []byte{1})
	two := mustView(t, dtype.U8, []uint64{2}, []byte{2, 2})

	set, err := Prepare([]NamedView{{"b", one}, {"a", one}, {"b", two}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, set.Names())
	assert.Equal(t, 2, set.Len())

	v, ok := set.View("b")
	require.True(t, ok)
	assert.Equal(t, 2, v.DataLen())

	_, ok = set.View("c")
	assert.False(t, ok)
}

// TestPrepare_StopsAtFirstError verifies the first bad view is reported.
func TestPrepare_StopsAtFirstError(t *testing.T) {
	_, err := Prepare([]NamedView{
		{"x", fakeView{dtype.F32, []uint64{1}, nil, 3}},
		{MetadataKey, fakeView{dtype.U8, []uint64{1}, []byte{1}, 1}},
	})
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindInvalidTensorView, e.Kind)
	assert.Equal(t, "x", e.Tensor)
}

// TestPrepareMap_DeterministicError verifies the reported error does not
// depend on map iteration order.
func TestPrepareMap_DeterministicError(t *testing.T) {
	views := map[string]View{
		"d": fakeView{dtype.F32, []uint64{1}, nil, 1},
		"c": fakeView{dtype.F32, []uint64{1}, nil, 2},
		"b": fakeView{dtype.F32, []uint64{1}, nil, 3},
		"a": mustView(t, dtype.U8, []uint64{1}, []byte{1}),
	}
	for i := 0; i < 20; i++ {
		_, err := PrepareMap(views)
		var e *Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, "b", e.Tensor)
	}
}

// TestLayout_Contiguous verifies offsets partition the payload.
func TestLayout_Contiguous(t *testing.T) {
	set, err := Prepare([]NamedView{
		{"c", mustView(t, dtype.F64, []uint64{1}, make([]byte, 8))},
		{"a", mustView(t, dtype.F4, []uint64{5}, make([]byte, 3))},
		{"b", mustView(t, dtype.I16, []uint64{0}, nil)},
	})
	require.NoError(t, err)

	infos, total, err := set.Layout()
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, infos, 3)

	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, [2]uint64{0, 3}, infos[0].Info.DataOffsets)
	assert.Equal(t, "b", infos[1].Name)
	assert.Equal(t, [2]uint64{3, 3}, infos[1].Info.DataOffsets)
	assert.Equal(t, "c", infos[2].Name)
	assert.Equal(t, [2]uint64{3, 11}, infos[2].Info.DataOffsets)
	assert.Equal(t, uint64(8), infos[2].Info.Size())

	h := &Header{Tensors: infos}
	assert.Equal(t, uint64(11), h.PayloadSize())
	assert.NoError(t, ValidateHeader(h, 11))
}

// TestLayout_Overflow verifies the running offset cannot wrap.
func TestLayout_Overflow(t *testing.T) {
	huge := fakeView{dtype.U8, []uint64{math.MaxInt}, nil, math.MaxInt}
	// Built by hand: Prepare would ask the view for MaxInt bytes of data.
	set := &TensorSet{names: []string{"a", "b"}, views: map[string]View{"a": huge, "b": huge}}

	_, _, err := set.Layout()
	assert.True(t, errors.Is(err, ErrValidationOverflow))
}

func info(dt dtype.DType, shape []uint64, begin, end uint64) TensorInfo {
	return TensorInfo{DType: dt, Shape: shape, DataOffsets: [2]uint64{begin, end}}
}

// TestValidateHeader covers every way a tensor table can disagree with itself
// or with the payload.
func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name       string
		tensors    []NamedTensorInfo
		payloadLen uint64
		kind       ErrorKind // 0 means valid
	}{
		{
			name:       "empty",
			payloadLen: 0,
		},
		{
			name: "contiguous, listed out of order",
			tensors: []NamedTensorInfo{
				{"b", info(dtype.U8, []uint64{2}, 4, 6)},
				{"a", info(dtype.F32, []uint64{1}, 0, 4)},
			},
			payloadLen: 6,
		},
		{
			name:       "gap at start",
			tensors:    []NamedTensorInfo{{"a", info(dtype.U8, []uint64{2}, 1, 3)}},
			payloadLen: 3,
			kind:       KindInvalidOffset,
		},
		{
			name: "overlap",
			tensors: []NamedTensorInfo{
				{"a", info(dtype.U8, []uint64{4}, 0, 4)},
				{"b", info(dtype.U8, []uint64{4}, 2, 6)},
			},
			payloadLen: 6,
			kind:       KindInvalidOffset,
		},
		{
			name:       "end before begin",
			tensors:    []NamedTensorInfo{{"a", info(dtype.U8, []uint64{0}, 0, 0)}, {"b", info(dtype.U8, nil, 4, 2)}},
			payloadLen: 4,
			kind:       KindInvalidOffset,
		},
		{
			name:       "span disagrees with shape",
			tensors:    []NamedTensorInfo{{"a", info(dtype.F32, []uint64{2}, 0, 4)}},
			payloadLen: 4,
			kind:       KindTensorInvalidInfo,
		},
		{
			name:       "unknown dtype",
			tensors:    []NamedTensorInfo{{"a", info(dtype.DType(77), []uint64{1}, 0, 1)}},
			payloadLen: 1,
			kind:       KindTensorInvalidInfo,
		},
		{
			name:       "shape overflow",
			tensors:    []NamedTensorInfo{{"a", info(dtype.U8, []uint64{math.MaxUint64, 2}, 0, 1)}},
			payloadLen: 1,
			kind:       KindValidationOverflow,
		},
		{
			name:       "trailing bytes",
			tensors:    []NamedTensorInfo{{"a", info(dtype.U8, []uint64{1}, 0, 1)}},
			payloadLen: 2,
			kind:       KindMetadataIncompleteBuffer,
		},
		{
			name:       "payload short",
			tensors:    []NamedTensorInfo{{"a", info(dtype.U16, []uint64{2}, 0, 4)}},
			payloadLen: 3,
			kind:       KindMetadataIncompleteBuffer,
		},
		{
			name:       "packed f4",
			tensors:    []NamedTensorInfo{{"a", info(dtype.F4, []uint64{3}, 0, 2)}},
			payloadLen: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHeader(&Header{Tensors: tt.tensors}, tt.payloadLen)
			if tt.kind == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err), err.Error())
		})
	}
}

// TestHeaderLookup verifies lookup by name.
func TestHeaderLookup(t *testing.T) {
	h := &Header{Tensors: []NamedTensorInfo{{"w", info(dtype.U8, []uint64{1}, 0, 1)}}}
	got, ok := h.Lookup("w")
	require.True(t, ok)
	assert.Equal(t, dtype.U8, got.DType)
	_, ok = h.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, uint64(0), (&Header{}).PayloadSize())
}
