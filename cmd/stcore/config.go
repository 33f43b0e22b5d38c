package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/born-ml/stcore/internal/dtype"
	"github.com/born-ml/stcore/internal/storage"
)

// packConfig is a validated pack manifest.
type packConfig struct {
	Output      string
	Compression storage.Compression
	Concurrency int
	Metadata    map[string]string // nil when the manifest has no [metadata] table
	Minio       storage.MinioConfig
	Tensors     []tensorSpec
}

// tensorSpec describes one tensor to load from a raw little-endian file.
type tensorSpec struct {
	Name   string
	DType  dtype.DType
	Shape  []uint64
	File   string // resolved against the manifest directory
	Offset int64  // byte offset of the tensor data within File
}

type fileConfig struct {
	Output      string              `toml:"output"`
	Compression string              `toml:"compression"`
	Concurrency int                 `toml:"concurrency"`
	Metadata    map[string]string   `toml:"metadata"`
	Minio       storage.MinioConfig `toml:"minio"`
	Tensors     []fileTensor        `toml:"tensor"`
}

type fileTensor struct {
	Name   string   `toml:"name"`
	DType  string   `toml:"dtype"`
	Shape  []uint64 `toml:"shape"`
	File   string   `toml:"file"`
	Offset int64    `toml:"offset"`
}

func defaultPackConfig() packConfig {
	return packConfig{
		Output:      "model.safetensors",
		Compression: storage.CompressionNone,
		Concurrency: runtime.NumCPU(),
	}
}

func loadPackConfig(path string) (packConfig, error) {
	cfg := defaultPackConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return packConfig{}, fmt.Errorf("load pack config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return packConfig{}, fmt.Errorf("load pack config: unknown key %q", undecoded[0].String())
	}

	base := filepath.Dir(path)

	if meta.IsDefined("output") {
		out := strings.TrimSpace(raw.Output)
		if out == "" {
			return packConfig{}, fmt.Errorf("output must not be empty")
		}
		if !isObjectURL(out) && !filepath.IsAbs(out) {
			out = filepath.Join(base, out)
		}
		cfg.Output = out
	} else {
		cfg.Output = filepath.Join(base, cfg.Output)
	}

	if meta.IsDefined("compression") {
		c, err := storage.ParseCompression(raw.Compression)
		if err != nil {
			return packConfig{}, fmt.Errorf("parse compression: %w", err)
		}
		cfg.Compression = c
	}

	if meta.IsDefined("concurrency") {
		if raw.Concurrency < 1 {
			return packConfig{}, fmt.Errorf("concurrency must be at least 1, got %d", raw.Concurrency)
		}
		cfg.Concurrency = raw.Concurrency
	}

	if meta.IsDefined("metadata") {
		cfg.Metadata = make(map[string]string, len(raw.Metadata))
		for k, v := range raw.Metadata {
			cfg.Metadata[k] = v
		}
	}

	if meta.IsDefined("minio") {
		cfg.Minio = raw.Minio
	}
	applyMinioEnv(&cfg.Minio)

	cfg.Tensors = make([]tensorSpec, 0, len(raw.Tensors))
	for i, t := range raw.Tensors {
		spec, err := t.resolve(base)
		if err != nil {
			return packConfig{}, fmt.Errorf("tensor %d: %w", i, err)
		}
		cfg.Tensors = append(cfg.Tensors, spec)
	}

	return cfg, nil
}

func (t fileTensor) resolve(base string) (tensorSpec, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return tensorSpec{}, fmt.Errorf("name is required")
	}
	dt, err := dtype.Parse(strings.TrimSpace(t.DType))
	if err != nil {
		return tensorSpec{}, fmt.Errorf("%s: %w", name, err)
	}
	file := strings.TrimSpace(t.File)
	if file == "" {
		return tensorSpec{}, fmt.Errorf("%s: file is required", name)
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(base, file)
	}
	if t.Offset < 0 {
		return tensorSpec{}, fmt.Errorf("%s: negative offset %d", name, t.Offset)
	}
	shape := t.Shape
	if shape == nil {
		shape = []uint64{}
	}
	return tensorSpec{Name: name, DType: dt, Shape: shape, File: file, Offset: t.Offset}, nil
}

// applyMinioEnv lets STCORE_MINIO_* variables fill or override the manifest
// so credentials need not be written to disk.
func applyMinioEnv(cfg *storage.MinioConfig) {
	if v := os.Getenv("STCORE_MINIO_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("STCORE_MINIO_ACCESS_KEY"); v != "" {
		cfg.AccessKeyID = v
	}
	if v := os.Getenv("STCORE_MINIO_SECRET_KEY"); v != "" {
		cfg.SecretAccessKey = v
	}
	if v := os.Getenv("STCORE_MINIO_REGION"); v != "" {
		cfg.Region = v
	}
	if v := os.Getenv("STCORE_MINIO_SSL"); v != "" {
		cfg.UseSSL = v == "1" || strings.EqualFold(v, "true")
	}
}

// maxDecompressedFromEnv reads STCORE_MAX_DECOMPRESSED, the cap in bytes on a
// decompressed container. Unset means the storage default.
func maxDecompressedFromEnv() (int64, error) {
	v := os.Getenv("STCORE_MAX_DECOMPRESSED")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("STCORE_MAX_DECOMPRESSED: want a positive byte count, got %q", v)
	}
	return n, nil
}
