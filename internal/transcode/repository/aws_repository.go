package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type awsRepository struct {
	client        *s3.Client
	preSignClient *s3.PresignClient
	endpoint      string
	region        string
	bucket        string
}

// NewAwsRepository builds the S3 object store. An empty endpoint means plain
// AWS, addressed by region.
func NewAwsRepository(awsClient *s3.Client, preSignClient *s3.PresignClient, endpoint, region, bucket string) transcode.ObjectStore {
	return &awsRepository{
		client:        awsClient,
		preSignClient: preSignClient,
		endpoint:      strings.TrimRight(endpoint, "/"),
		region:        region,
		bucket:        bucket,
	}
}

func (a *awsRepository) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("failed to check bucket %s : %w", a.bucket, err)
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	}
	// us-east-1 rejects an explicit location constraint
	if a.region != "" && a.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(a.region),
		}
	}
	_, err = a.client.CreateBucket(ctx, input)
	if err == nil {
		return nil
	}
	var owned *types.BucketAlreadyOwnedByYou
	var exists *types.BucketAlreadyExists
	if errors.As(err, &owned) || errors.As(err, &exists) {
		return nil
	}
	return fmt.Errorf("failed to create bucket %s : %w", a.bucket, err)
}

func (a *awsRepository) PutObject(ctx context.Context, input *models.UploadInput) (string, error) {
	putInput := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(input.Key),
		Body:   input.File,
	}
	if input.MimeType != "" {
		putInput.ContentType = aws.String(input.MimeType)
	}
	if input.Size > 0 {
		putInput.ContentLength = aws.Int64(input.Size)
	}
	if _, err := a.client.PutObject(ctx, putInput); err != nil {
		return "", fmt.Errorf("failed to upload file : %w", err)
	}
	return objectLocation(a.endpoint, a.region, a.bucket, input.Key), nil
}

func (a *awsRepository) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	res, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download file : %w", err)
	}
	return res.Body, nil
}

func (a *awsRepository) GetPresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := a.preSignClient.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(expiry),
	)
	if err != nil {
		return "", fmt.Errorf("failed to presign get object : %w", err)
	}
	return req.URL, nil
}

func (a *awsRepository) RemoveObject(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to remove file : %w", err)
	}
	return nil
}

// objectLocation builds the path-style address of an object, or the
// virtual-hosted AWS address when no endpoint is set.
func objectLocation(endpoint, region, bucket, key string) string {
	if endpoint == "" {
		if region == "" {
			region = "us-east-1"
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(endpoint, "/"), bucket, key)
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
