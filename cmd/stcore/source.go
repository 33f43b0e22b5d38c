package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/born-ml/stcore/internal/serialization"
	"github.com/born-ml/stcore/internal/storage"
	"github.com/rs/zerolog"
)

const objectScheme = "s3://"

func isObjectURL(s string) bool {
	return strings.HasPrefix(s, objectScheme)
}

// location is a resolved container address: a store and a name within it.
type location struct {
	store *storage.CompressedStore
	name  string
	desc  string
}

// parseObjectURL splits s3://bucket/key.
func parseObjectURL(s string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(s, objectScheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid object url %q, want s3://bucket/key", s)
	}
	return bucket, key, nil
}

// resolve maps a local path or s3:// URL to a store. Containers written
// through the store are framed with c; reads detect framing automatically.
func resolve(target string, minioCfg storage.MinioConfig, c storage.Compression) (location, error) {
	var (
		base storage.Store
		name string
	)
	if isObjectURL(target) {
		bucket, key, err := parseObjectURL(target)
		if err != nil {
			return location{}, err
		}
		ms, err := storage.DialMinio(minioCfg, bucket, "")
		if err != nil {
			return location{}, err
		}
		base, name = ms, key
	} else {
		abs, err := filepath.Abs(target)
		if err != nil {
			return location{}, fmt.Errorf("resolve %s: %w", target, err)
		}
		base = storage.NewLocalStore(filepath.Dir(abs))
		name = filepath.Base(abs)
	}
	return location{
		store: storage.NewCompressedStore(base, c),
		name:  name,
		desc:  target,
	}, nil
}

// fetch reads the whole (decompressed) container at target.
func fetch(ctx context.Context, target string) ([]byte, error) {
	var cfg storage.MinioConfig
	applyMinioEnv(&cfg)
	limit, err := maxDecompressedFromEnv()
	if err != nil {
		return nil, err
	}
	loc, err := resolve(target, cfg, storage.CompressionNone)
	if err != nil {
		return nil, err
	}
	loc.store.MaxSize = limit
	return loc.store.Get(ctx, loc.name)
}

// container is an opened, validated container and the bytes behind it.
type container struct {
	st    *serialization.SafeTensors
	raw   []byte
	close func() error
}

// openContainer validates the container at target. Uncompressed local files
// are memory-mapped; everything else is read into memory and decompressed.
func openContainer(ctx context.Context, target string, logger zerolog.Logger) (*container, error) {
	if !isObjectURL(target) && isPlainFile(target) {
		r, err := serialization.OpenMmap(target)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("file", target).Msg("memory-mapped")
		return &container{st: r.SafeTensors, raw: r.Bytes(), close: r.Close}, nil
	}

	data, err := fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	st, err := serialization.Deserialize(data)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("file", target).Int("bytes", len(data)).Msg("loaded into memory")
	return &container{st: st, raw: data, close: func() error { return nil }}, nil
}

// isPlainFile reports whether path is a readable file without compression
// framing. Any error defers the decision to the regular read path.
func isPlainFile(path string) bool {
	//nolint:gosec // G304: path is a command-line argument
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return storage.Detect(magic[:]) == storage.CompressionNone
}
