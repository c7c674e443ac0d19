// Package blob stores uploaded payment screenshots.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a stored object does not exist.
var ErrNotFound = errors.New("blob not found")

// Store saves and serves binary objects addressed by a slash separated path.
type Store interface {
	Save(ctx context.Context, path string, r io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}
