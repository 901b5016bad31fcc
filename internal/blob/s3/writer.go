package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// minPartSize is the smallest part S3 accepts in a multipart upload.
const minPartSize int64 = 5 << 20

// Writer uploads objects into one bucket.
type Writer struct {
	api      *s3.Client
	uploader *manager.Uploader
	bucket   string
}

func NewWriter(c *Client) *Writer {
	return &Writer{
		api:      c.s3,
		uploader: manager.NewUploader(c.s3),
		bucket:   c.bucket,
	}
}

// Put stores data with a single PutObject call.
func (w *Writer) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	in := w.input(key, data)
	in.ContentType = aws.String(contentType)
	if _, err := w.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}

// PutMultipart streams data in parts of at least minPartSize bytes.
func (w *Writer) PutMultipart(ctx context.Context, key string, data io.Reader, partSize int64) error {
	_, err := w.uploader.Upload(ctx, w.input(key, data), func(u *manager.Uploader) {
		u.PartSize = max(partSize, minPartSize)
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present in the bucket.
func (w *Writer) Exists(ctx context.Context, key string) (bool, error) {
	_, err := w.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("s3blob: head %s: %w", key, err)
	}
}

func (w *Writer) input(key string, data io.Reader) *s3.PutObjectInput {
	return &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   data,
	}
}

// isNotFound recognises a missing object. HeadObject has no body to carry
// NoSuchKey, so a bare 404 status counts as well.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}

var _ domain.BlobWriter = (*Writer)(nil)
