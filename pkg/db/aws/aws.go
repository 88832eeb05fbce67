package aws

import (
	"context"
	"strings"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/config"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

func NewAWSClient(ctx context.Context, c *config.Config) (*s3.Client, *s3.PresignClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(c.S3.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				c.S3.AccessKey,
				c.S3.SecretKey,
				"",
			),
		),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load aws configuration")
	}
	endpoint := EndpointURL(c)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
	})
	presignClient := s3.NewPresignClient(client)
	return client, presignClient, nil
}

// EndpointURL returns the configured S3 endpoint with a scheme. A bare host
// gets https or http according to UseSSL; an empty endpoint stays empty.
func EndpointURL(c *config.Config) string {
	endpoint := strings.TrimRight(strings.TrimSpace(c.S3.Endpoint), "/")
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if c.S3.UseSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
