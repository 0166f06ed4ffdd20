package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"nftstats/internal/domain"
)

// uploadPartSize is the part size for multipart uploads. Export objects are
// usually well under one part, in which case the uploader issues a plain
// PutObject.
const uploadPartSize int64 = 8 * 1024 * 1024

// Writer implements domain.BlobWriter on the package's S3 client. Uploads go
// through the SDK upload manager so oversized day files are split into parts
// without the exporter knowing about it.
type Writer struct {
	uploader *manager.Uploader
	bucket   string
}

var _ domain.BlobWriter = (*Writer)(nil)

func NewWriter(c *Client) *Writer {
	return &Writer{
		uploader: manager.NewUploader(c.api, func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
		}),
		bucket: c.bucket,
	}
}

// Put uploads data under path in the configured bucket.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return nil
}
