package serialization

import (
	"context"
	"errors"

	"github.com/born-ml/stcore/internal/storage"
)

// Save serializes views and metadata and puts the container into s under
// name. Storage failures are reported as KindIoError.
func Save(ctx context.Context, s storage.Store, name string, views []NamedView, metadata map[string]string) error {
	data, err := Serialize(views, metadata)
	if err != nil {
		return err
	}
	if err := s.Put(ctx, name, data); err != nil {
		return wrapError(KindIoError, "", err)
	}
	return nil
}

// Load fetches name from s and deserializes it. The returned container
// references the fetched bytes.
func Load(ctx context.Context, s storage.Store, name string) (*SafeTensors, error) {
	data, err := s.Get(ctx, name)
	if err != nil {
		return nil, wrapError(KindIoError, "", err)
	}
	return Deserialize(data)
}

// IsNotFound reports whether err means the blob was missing from the store.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
