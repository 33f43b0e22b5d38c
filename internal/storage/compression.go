package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how a container is framed at rest.
type Compression uint8

const (
	// CompressionNone stores the container as is.
	CompressionNone Compression = iota
	// CompressionZSTD wraps the container in a zstd frame (better ratio).
	CompressionZSTD
	// CompressionLZ4 wraps the container in an lz4 frame (faster).
	CompressionLZ4
)

// Frame magics. A safetensors container starts with its header length, which
// is at most 100MB, so its first four bytes can never match either magic.
var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// String returns the configuration name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZSTD:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "zstd" or "lz4". The empty string means none.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

// Extension returns the conventional file suffix for c ("" for none).
func (c Compression) Extension() string {
	switch c {
	case CompressionZSTD:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// The zstd encoder is safe for concurrent EncodeAll.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdErr     error
)

func zstdEncoderShared() (*zstd.Encoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return zstdEncoder, zstdErr
}

// DefaultMaxDecompressedSize caps the output of Decompress.
const DefaultMaxDecompressedSize int64 = 16 << 30

// ErrDecompressedTooLarge is returned when a frame expands past the cap.
var ErrDecompressedTooLarge = errors.New("decompressed size exceeds limit")

// Compress frames data with c. CompressionNone returns data unchanged.
func Compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZSTD:
		enc, err := zstdEncoderShared()
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression %d", uint8(c))
	}
}

// Detect reports the framing of data by its leading magic bytes.
func Detect(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZSTD
	case bytes.HasPrefix(data, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// Decompress removes any zstd or lz4 framing detected on data. Unframed data
// is returned unchanged. Output is capped at DefaultMaxDecompressedSize.
func Decompress(data []byte) ([]byte, error) {
	return DecompressLimit(data, DefaultMaxDecompressedSize)
}

// DecompressLimit is Decompress with an explicit output cap in bytes. A
// limit <= 0 selects DefaultMaxDecompressedSize.
func DecompressLimit(data []byte, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxDecompressedSize
	}
	switch Detect(data) {
	case CompressionZSTD:
		dec, err := zstd.NewReader(bytes.NewReader(data),
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(uint64(limit)))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()
		out, err := readLimited(dec, limit)
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			err = ErrDecompressedTooLarge
		}
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	case CompressionLZ4:
		out, err := readLimited(lz4.NewReader(bytes.NewReader(data)), limit)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return out, nil
	default:
		return data, nil
	}
}

// readLimited reads r to EOF, failing once more than limit bytes come out.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrDecompressedTooLarge, limit)
	}
	return out, nil
}

// CompressedStore frames blobs with a compression on Put and strips any
// framing on Get.
type CompressedStore struct {
	Store       Store
	Compression Compression
	// MaxSize caps the decompressed size of a blob returned by Get.
	// Zero means DefaultMaxDecompressedSize.
	MaxSize int64
}

// NewCompressedStore wraps s.
func NewCompressedStore(s Store, c Compression) *CompressedStore {
	return &CompressedStore{Store: s, Compression: c}
}

// Put compresses data and stores it.
func (s *CompressedStore) Put(ctx context.Context, name string, data []byte) error {
	framed, err := Compress(s.Compression, data)
	if err != nil {
		return err
	}
	return s.Store.Put(ctx, name, framed)
}

// Get fetches and decompresses a blob.
func (s *CompressedStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return DecompressLimit(data, s.MaxSize)
}
