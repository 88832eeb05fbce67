package minio

import (
	"fmt"
	"strings"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func NewMinioClient(c *config.Config) (*minio.Client, error) {
	// minio-go wants a bare host:port.
	endpoint := strings.TrimPrefix(strings.TrimPrefix(c.S3.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.S3.AccessKey, c.S3.SecretKey, ""),
		Secure: c.S3.UseSSL,
		Region: c.S3.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init minio client: %w", err)
	}
	return client, nil
}
