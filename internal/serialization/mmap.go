package serialization

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MmapReader provides memory-mapped access to safetensors files.
// Only the header is decoded on open; tensor bytes are paged in by the OS on
// first access and are never copied.
type MmapReader struct {
	*SafeTensors

	file   *os.File
	data   mmap.MMap // mmap'd region (read-only)
	closed bool
}

// OpenMmap maps the file at path read-only and validates it as a container.
//
// Views returned by the reader point into the mapping and become invalid
// after Close. Always call Close when done (use defer).
func OpenMmap(path string) (*MmapReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, wrapError(KindIoError, "", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, wrapError(KindIoError, "", err)
	}

	// Mapping an empty file fails on most platforms; report it the same way
	// Deserialize would.
	if stat.Size() < HeaderLenSize {
		_ = file.Close()
		return nil, newError(KindHeaderTooSmall, "", "file is %d bytes", stat.Size())
	}

	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		_ = file.Close()
		return nil, wrapError(KindIoError, "", fmt.Errorf("mmap failed: %w", err))
	}

	st, err := Deserialize(data)
	if err != nil {
		_ = data.Unmap()
		_ = file.Close()
		return nil, err
	}

	return &MmapReader{SafeTensors: st, file: file, data: data}, nil
}

// Bytes returns the whole mapped container.
func (r *MmapReader) Bytes() []byte {
	return r.data
}

// Tensor returns a zero-copy view into the mapping. It fails after Close.
func (r *MmapReader) Tensor(name string) (TensorView, error) {
	if r.closed {
		return TensorView{}, wrapError(KindIoError, name, os.ErrClosed)
	}
	return r.SafeTensors.Tensor(name)
}

// Tensors returns every tensor as a view into the mapping. It fails after
// Close.
func (r *MmapReader) Tensors() ([]NamedView, error) {
	if r.closed {
		return nil, wrapError(KindIoError, "", os.ErrClosed)
	}
	return r.SafeTensors.Tensors()
}

// TensorDataCopy returns a copy of the named tensor's bytes that stays valid
// after Close.
func (r *MmapReader) TensorDataCopy(name string) ([]byte, error) {
	tv, err := r.Tensor(name)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), tv.Data()...), nil
}

// Close unmaps and closes the file.
func (r *MmapReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.data != nil {
		err = r.data.Unmap()
		r.data = nil
	}

	if closeErr := r.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	return err
}
