package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store writes documents to an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string // e.g. "invoices/"
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // MinIO, LocalStack
	Prefix   string
}

// NewS3Store creates a new S3-backed document store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Put uploads data under prefix+key and returns an "s3://bucket/key"
// reference. Keys are content-addressed so an existing object is kept.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectKey := s.prefix + key
	ref := fmt.Sprintf("s3://%s/%s", s.bucket, objectKey)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err == nil {
		return ref, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put failed: %w", err)
	}

	return ref, nil
}

// Owns reports whether ref is an "s3://bucket/prefix..." reference of this
// store for an object that exists under keyPrefix.
func (s *S3Store) Owns(ctx context.Context, ref, keyPrefix string) (bool, error) {
	key, ok := s.keyOf(ref)
	if !ok || !strings.HasPrefix(key, keyPrefix) {
		return false, nil
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head failed: %w", err)
	}
	return true, nil
}

// keyOf strips the bucket and store prefix from a reference.
func (s *S3Store) keyOf(ref string) (string, bool) {
	key, ok := strings.CutPrefix(ref, fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix))
	if !ok || key == "" || path.Clean("/" + key)[1:] != key {
		return "", false
	}
	return key, true
}
