package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/born-ml/stcore/internal/dtype"
	"github.com/born-ml/stcore/internal/serialization"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func runPack(ctx context.Context, configPath string, logger zerolog.Logger) error {
	cfg, err := loadPackConfig(configPath)
	if err != nil {
		return err
	}
	logger.Debug().Str("path", configPath).Int("tensors", len(cfg.Tensors)).Msg("loaded pack config")

	start := time.Now()
	views, err := loadTensors(ctx, cfg, logger)
	if err != nil {
		return err
	}

	loc, err := resolve(cfg.Output, cfg.Minio, cfg.Compression)
	if err != nil {
		return err
	}

	data, err := serialization.Serialize(views, cfg.Metadata)
	if err != nil {
		return err
	}
	if err := loc.store.Put(ctx, loc.name, data); err != nil {
		return fmt.Errorf("write %s: %w", loc.desc, err)
	}

	logger.Info().
		Str("output", loc.desc).
		Int("tensors", len(views)).
		Int("bytes", len(data)).
		Str("compression", cfg.Compression.String()).
		Str("sha256", serialization.Fingerprint(data)).
		Dur("elapsed", time.Since(start)).
		Msg("packed")
	return nil
}

// loadTensors reads every tensor file concurrently and builds views. Views
// are returned in manifest order.
func loadTensors(ctx context.Context, cfg packConfig, logger zerolog.Logger) ([]serialization.NamedView, error) {
	views := make([]serialization.NamedView, len(cfg.Tensors))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)

	for i, spec := range cfg.Tensors {
		i, spec := i, spec
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := readTensorFile(spec)
			if err != nil {
				return err
			}
			tv, err := serialization.NewTensorView(spec.DType, spec.Shape, data)
			if err != nil {
				return fmt.Errorf("tensor %s from %s: %w", spec.Name, spec.File, err)
			}
			logger.Debug().Str("tensor", spec.Name).Str("dtype", spec.DType.String()).
				Interface("shape", spec.Shape).Int("bytes", len(data)).Msg("loaded")
			views[i] = serialization.NamedView{Name: spec.Name, View: tv}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// readTensorFile reads exactly the bytes spec needs, starting at spec.Offset.
func readTensorFile(spec tensorSpec) ([]byte, error) {
	n, err := dtype.ShapeByteLen(spec.DType, spec.Shape)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", spec.Name, err)
	}

	//nolint:gosec // G304: paths come from the pack manifest
	f, err := os.Open(spec.File)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", spec.Name, err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", spec.Name, err)
	}
	if spec.Offset > stat.Size() || int64(n) > stat.Size()-spec.Offset {
		return nil, fmt.Errorf("tensor %s: %s is too short for %d bytes at offset %d",
			spec.Name, spec.File, n, spec.Offset)
	}

	data := make([]byte, n)
	if _, err := f.ReadAt(data, spec.Offset); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("tensor %s: %w", spec.Name, err)
	}
	return data, nil
}
