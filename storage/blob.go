package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a requested object does not exist in the
// blob backend.
var ErrNotFound = errors.New("object not found")

// BlobStore is the byte-storage collaborator. Audio files live under
// "audio/{id}", cover art under "covers/{id}", lyrics under "lyrics/{id}".
//
// GetRange returns exactly length bytes starting at offset. It buffers the
// slice rather than streaming it so that a backend failure surfaces before
// any response bytes are written; ranges served this way are bounded by the
// client's Range header, not the file size.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	GetRange(ctx context.Context, key string, offset, length int64) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
