package repository

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	"github.com/minio/minio-go/v7"
)

type minioRepository struct {
	client   *minio.Client
	endpoint string
	bucket   string
}

func NewMinioRepository(client *minio.Client, bucket string) transcode.ObjectStore {
	return &minioRepository{
		client:   client,
		endpoint: client.EndpointURL().String(),
		bucket:   bucket,
	}
}

func (m *minioRepository) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s : %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		// another instance may have won the race
		if resp := minio.ToErrorResponse(err); resp.Code == "BucketAlreadyOwnedByYou" || resp.Code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s : %w", m.bucket, err)
	}
	return nil
}

func (m *minioRepository) PutObject(ctx context.Context, input *models.UploadInput) (string, error) {
	size := input.Size
	if size <= 0 {
		size = -1
	}
	_, err := m.client.PutObject(ctx, m.bucket, input.Key, input.File, size, minio.PutObjectOptions{
		ContentType: input.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file : %w", err)
	}
	return objectLocation(m.endpoint, "", m.bucket, input.Key), nil
}

func (m *minioRepository) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download file : %w", err)
	}
	return obj, nil
}

func (m *minioRepository) GetPresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("failed to presign get object : %w", err)
	}
	return u.String(), nil
}

func (m *minioRepository) RemoveObject(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove file : %w", err)
	}
	return nil
}
