package transcode

import (
	"context"
	"io"
	"time"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
)

// ObjectStore is the durable blob store for original and transcoded artifacts.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	PutObject(ctx context.Context, input *models.UploadInput) (string, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	GetPresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	RemoveObject(ctx context.Context, key string) error
}
