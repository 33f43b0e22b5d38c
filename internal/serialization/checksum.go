package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// ComputeChecksum computes the SHA-256 checksum of a serialized container.
// Serialize is deterministic, so equal logical content yields equal sums.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ComputeChecksumReader computes the SHA-256 checksum from an io.Reader.
// This is useful for computing checksums of large files without loading them entirely into memory.
func ComputeChecksumReader(r io.Reader) ([32]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, wrapError(KindIoError, "", err)
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// Fingerprint returns the hex-encoded checksum, suitable as a content address.
func Fingerprint(data []byte) string {
	sum := ComputeChecksum(data)
	return hex.EncodeToString(sum[:])
}
