package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// minPartSize is the S3 lower bound for multipart parts.
const minPartSize int64 = 5 * 1024 * 1024

// Writer uploads archive objects under the client's key prefix.
type Writer struct {
	client *s3.Client
	bucket string
	key    func(string) string
}

// NewWriter creates a Writer for c's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.S3(),
		bucket: c.Bucket(),
		key:    c.Key,
	}
}

// Put uploads a small object in one request.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	key := w.key(path)
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", key, err)
	}
	return nil
}

// PutMultipart streams a large object through the upload manager. partSize
// is raised to the S3 minimum when smaller.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	if partSize < minPartSize {
		partSize = minPartSize
	}
	key := w.key(path)
	uploader := manager.NewUploader(w.client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
	}
	return nil
}
