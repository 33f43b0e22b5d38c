package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrInvalidName is returned for names that could escape the store root.
var ErrInvalidName = errors.New("invalid blob name")

// Store persists whole containers by name.
type Store interface {
	// Put writes data under name, replacing any existing blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Get returns the blob stored under name.
	Get(ctx context.Context, name string) ([]byte, error)
}

// validateName rejects empty names, absolute paths and parent references.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.Contains(name, "\x00") {
		return fmt.Errorf("%w: %q contains null byte", ErrInvalidName, name)
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidName, name)
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("%w: %q contains '..'", ErrInvalidName, name)
		}
	}
	if path.Clean("/"+name) == "/" {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
