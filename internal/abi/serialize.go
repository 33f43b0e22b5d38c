package abi

import (
	"github.com/born-ml/stcore/internal/serialization"
)

// Pair is a named tensor as passed across the boundary.
type Pair struct {
	Name string
	View serialization.TensorView
}

// KV is one metadata entry.
type KV struct {
	Key   string
	Value string
}

// MakeView builds a tensor view from a host dtype code. data is borrowed;
// the host must keep it alive and unchanged until the view is no longer used.
func MakeView(code Dtype, shape []uint64, data []byte) (serialization.TensorView, Status) {
	dt, err := DtypeFromCode(code)
	if err != nil {
		return serialization.TensorView{}, StatusTensorInvalidInfo
	}
	tv, err := serialization.NewTensorView(dt, shape, data)
	if err != nil {
		return serialization.TensorView{}, ErrorCode(err)
	}
	return tv, StatusOK
}

// Serialize encodes pairs and metadata into a container. A nil kv omits the
// metadata entry; a non-nil empty kv writes an empty one. Later pairs and
// entries replace earlier ones with the same name or key.
func Serialize(pairs []Pair, kv []KV) ([]byte, Status) {
	views := make([]serialization.NamedView, len(pairs))
	for i, p := range pairs {
		views[i] = serialization.NamedView{Name: p.Name, View: p.View}
	}

	var metadata map[string]string
	if kv != nil {
		metadata = make(map[string]string, len(kv))
		for _, e := range kv {
			metadata[e.Key] = e.Value
		}
	}

	buf, err := serialization.Serialize(views, metadata)
	if err != nil {
		return nil, ErrorCode(err)
	}
	return buf, StatusOK
}
