// Package storage moves finished safetensors containers to and from
// persistent locations: local files (written atomically) and S3-compatible
// object stores. It can optionally frame a container with zstd or lz4
// compression.
//
// The package is format-agnostic: it never looks inside the bytes it stores,
// so a container read back is byte-identical to the one written.
package storage
