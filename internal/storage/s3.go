package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MediaStore is the media-storage collaborator. Delete is best-effort for
// callers: a failed cleanup must never block a chat-history mutation.
type MediaStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (url string, storageID string, err error)
	Delete(ctx context.Context, storageID string) error
}

// S3Store stores voice clips in an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	region string
}

// NewS3Store builds an S3-backed media store.
func NewS3Store(ctx context.Context, region, bucket string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket, region: region}, nil
}

// Upload writes the object and returns its public URL and storage id.
func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", fmt.Errorf("put object: %w", err)
	}
	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	return url, key, nil
}

// Delete removes the object behind a storage id.
func (s *S3Store) Delete(ctx context.Context, storageID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storageID),
	})
	return err
}
