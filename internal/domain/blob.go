package domain

import (
	"context"
	"io"
)

// BlobWriter stores objects by key in a bucket-style store. PutMultipart is
// for payloads large enough to need chunked upload.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
