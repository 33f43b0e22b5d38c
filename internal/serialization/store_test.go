package serialization

import (
	"context"
	"errors"
	"testing"

	"github.com/born-ml/stcore/internal/dtype"
	"github.com/born-ml/stcore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	for _, c := range []storage.Compression{storage.CompressionNone, storage.CompressionZSTD, storage.CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			store := storage.NewCompressedStore(storage.NewLocalStore(t.TempDir()), c)
			w := mustView(t, dtype.F16, []uint64{4, 4}, make([]byte, 32))

			require.NoError(t, Save(ctx, store, "models/a.safetensors", []NamedView{{"w", w}}, map[string]string{"c": c.String()}))

			st, err := Load(ctx, store, "models/a.safetensors")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"c": c.String()}, st.Metadata())

			got, err := st.Tensor("w")
			require.NoError(t, err)
			assert.Equal(t, []uint64{4, 4}, got.Shape())
		})
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(context.Background(), storage.NewLocalStore(t.TempDir()), "missing.safetensors")
	assert.True(t, errors.Is(err, ErrIO))
	assert.True(t, IsNotFound(err))
}

func TestSave_InvalidName(t *testing.T) {
	err := Save(context.Background(), storage.NewLocalStore(t.TempDir()), "../escape", nil, nil)
	assert.True(t, errors.Is(err, ErrIO))
	assert.True(t, errors.Is(err, storage.ErrInvalidName))
}

func TestSave_ValidationFailsBeforeStore(t *testing.T) {
	dir := t.TempDir()
	err := Save(context.Background(), storage.NewLocalStore(dir), "a.safetensors",
		[]NamedView{{"w", fakeView{dtype.F32, []uint64{1}, nil, 1}}}, nil)
	assert.Equal(t, KindInvalidTensorView, KindOf(err))

	_, err = storage.NewLocalStore(dir).Get(context.Background(), "a.safetensors")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
