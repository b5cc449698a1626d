package domain

import (
	"context"
	"io"
)

// BlobWriter uploads archive objects. Large payloads go through
// PutMultipart.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
