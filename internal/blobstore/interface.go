package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Open when no object exists for a key.
var ErrNotFound = errors.New("blob not found")

// BlobPutResult describes one persisted blob payload.
type BlobPutResult struct {
	Key       string
	SizeBytes int64
}

// BlobStore is a keyed byte-stream store with no knowledge of evidence semantics.
//
// Put must not return before the bytes are durable. Delete of an absent key
// is not an error.
type BlobStore interface {
	Name() string
	Put(ctx context.Context, r io.Reader) (BlobPutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
