// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectAPI is the subset of the S3 client the store needs.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var loadAWSConfig = awsconfig.LoadDefaultConfig

// S3Store keeps images in an S3 bucket.
type S3Store struct {
	api      ObjectAPI
	bucket   string
	endpoint string
	maxSize  int64
}

// NewS3Store builds a client from cfg. Static credentials are used when an access key is set,
// otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg *config.StorageConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := loadAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StoreWithClient(client, cfg.S3Bucket, cfg.S3Endpoint, cfg.MaxImageSize), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(api ObjectAPI, bucket, endpoint string, maxSize int64) *S3Store {
	return &S3Store{
		api:      api,
		bucket:   bucket,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		maxSize:  maxSize,
	}
}

func (s *S3Store) Save(ctx context.Context, accountID int64, payload []byte) (string, error) {
	img, err := DetectImage(payload, s.maxSize)
	if err != nil {
		return "", err
	}

	key := objectKey(accountID, img.Extension)
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentType:   aws.String(img.ContentType),
		ContentLength: aws.Int64(int64(len(payload))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return key, nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	if !validRef(ref) {
		return ErrInvalidRef
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// URL returns a path-style URL on the custom endpoint, or the virtual-hosted AWS URL.
func (s *S3Store) URL(ref string) string {
	if ref == "" {
		return ""
	}
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, ref)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, ref)
}
