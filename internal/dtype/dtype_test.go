package dtype

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignmentOrder(t *testing.T) {
	all := All()
	require.Len(t, all, Count)

	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		assert.LessOrEqual(t, prev.Alignment(), cur.Alignment(),
			"%s declared before %s but has larger alignment", prev, cur)
	}
}

func TestSizes(t *testing.T) {
	tests := []struct {
		dt   DType
		bits int
		size int
		ok   bool
	}{
		{BOOL, 8, 1, true},
		{F4, 4, 0, false},
		{F6_E2M3, 6, 0, false},
		{F6_E3M2, 6, 0, false},
		{U8, 8, 1, true},
		{I8, 8, 1, true},
		{F8_E5M2, 8, 1, true},
		{F8_E4M3, 8, 1, true},
		{F8_E8M0, 8, 1, true},
		{I16, 16, 2, true},
		{U16, 16, 2, true},
		{F16, 16, 2, true},
		{BF16, 16, 2, true},
		{I32, 32, 4, true},
		{U32, 32, 4, true},
		{F32, 32, 4, true},
		{F64, 64, 8, true},
		{I64, 64, 8, true},
		{U64, 64, 8, true},
	}
	require.Len(t, tests, Count, "every dtype needs a row")

	for _, tt := range tests {
		t.Run(tt.dt.String(), func(t *testing.T) {
			assert.Equal(t, tt.bits, tt.dt.BitSize())
			size, ok := tt.dt.Size()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.size, size)
			assert.Equal(t, !tt.ok, tt.dt.SubByte())
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, dt := range All() {
		got, err := Parse(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, got)
	}

	_, err := Parse("F128")
	assert.ErrorIs(t, err, ErrUnknown)

	_, err = Parse("f32")
	assert.ErrorIs(t, err, ErrUnknown, "names are case sensitive")
}

func TestInvalidDType(t *testing.T) {
	bad := DType(Count)
	assert.False(t, bad.Valid())
	assert.Equal(t, 0, bad.BitSize())
	assert.Equal(t, 0, bad.Alignment())
	assert.Contains(t, bad.String(), "DType(")

	_, err := bad.MarshalText()
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestJSON(t *testing.T) {
	type entry struct {
		DType DType `json:"dtype"`
	}

	b, err := json.Marshal(entry{DType: BF16})
	require.NoError(t, err)
	assert.JSONEq(t, `{"dtype":"BF16"}`, string(b))

	var e entry
	require.NoError(t, json.Unmarshal([]byte(`{"dtype":"F8_E4M3"}`), &e))
	assert.Equal(t, F8_E4M3, e.DType)

	err = json.Unmarshal([]byte(`{"dtype":"Q4_0"}`), &e)
	assert.True(t, errors.Is(err, ErrUnknown))
}

func TestElementCount(t *testing.T) {
	tests := []struct {
		name  string
		shape []uint64
		want  uint64
	}{
		{"scalar", nil, 1},
		{"empty slice scalar", []uint64{}, 1},
		{"vector", []uint64{7}, 7},
		{"matrix", []uint64{2, 3}, 6},
		{"zero dim", []uint64{4, 0, 5}, 0},
		{"zero dim after huge dims", []uint64{math.MaxUint32 + 1, math.MaxUint32 + 1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ElementCount(tt.shape)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestElementCountOverflow(t *testing.T) {
	_, err := ElementCount([]uint64{math.MaxUint32 + 1, math.MaxUint32 + 1})
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestByteLen(t *testing.T) {
	tests := []struct {
		name  string
		dt    DType
		shape []uint64
		want  int
	}{
		{"scalar f32", F32, nil, 4},
		{"2x3 i32", I32, []uint64{2, 3}, 24},
		{"f4 odd count rounds up", F4, []uint64{3}, 2},
		{"f4 even count", F4, []uint64{4}, 2},
		{"f6 four elements", F6_E2M3, []uint64{4}, 3},
		{"f6 one element", F6_E3M2, []uint64{1}, 1},
		{"empty", F64, []uint64{0, 10}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShapeByteLen(tt.dt, tt.shape)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestByteLenOverflow(t *testing.T) {
	_, err := ByteLen(U64, math.MaxUint64/4)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = ByteLen(F4, math.MaxUint64/2)
	assert.ErrorIs(t, err, ErrOverflow)

	// Fits in uint64 but not in a signed address-width int.
	_, err = ByteLen(U8, math.MaxUint64)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = ByteLen(DType(-1), 1)
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestBitOffset(t *testing.T) {
	off, err := BitOffset(F6_E2M3, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(18), off)

	_, err = BitOffset(U64, math.MaxUint64)
	assert.ErrorIs(t, err, ErrOverflow)
}
