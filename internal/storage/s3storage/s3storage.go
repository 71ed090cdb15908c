// Package s3storage provides an AWS S3 (or S3-compatible) backend for images
package s3storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type Options struct {
	Region          string
	Endpoint        string // пустой - родной AWS, иначе S3-совместимое хранилище
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PresignTTL      time.Duration
}

type S3ImageStorage struct {
	bucket        string
	ttl           time.Duration
	s3Client      *s3.Client
	presignClient *s3.PresignClient
}

func NewS3Client(ctx context.Context, opts Options) (*S3ImageStorage, error) {
	strg, err := newStorage(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := strg.ensureBucket(ctx, opts.Region); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %q: %w", strg.bucket, err)
	}

	return strg, nil
}

func newStorage(ctx context.Context, opts Options) (*S3ImageStorage, error) {
	if opts.Bucket == "" {
		opts.Bucket = "images"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3ImageStorage{
		bucket:        opts.Bucket,
		ttl:           opts.PresignTTL,
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
	}, nil
}

func (c *S3ImageStorage) Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error {
	if r == nil {
		return errors.New("nil reader passed to storage.Put")
	}

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &c.bucket,
		Key:           &key,
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   &contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (c *S3ImageStorage) PresignedURL(ctx context.Context, key string) (string, error) {
	req, err := c.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = c.ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign GET object: %w", err)
	}
	return req.URL, nil
}

func (c *S3ImageStorage) ensureBucket(ctx context.Context, region string) error {
	if _, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.bucket}); err == nil {
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: &c.bucket}
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	_, err := c.s3Client.CreateBucket(ctx, input)
	return err
}
