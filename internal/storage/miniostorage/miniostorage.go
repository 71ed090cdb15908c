// Package miniostorage provides structure to work with minio-storage
package miniostorage

import (
	"context"
	"errors"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Options struct {
	Endpoint   string
	User       string
	Pass       string
	Secure     bool
	Region     string
	Bucket     string
	PresignTTL time.Duration
}

type MinioImageStorage struct {
	bucket string
	ttl    time.Duration
	client *minio.Client
}

func NewMinioClient(ctx context.Context, opts Options) (*MinioImageStorage, error) {
	strg, err := newStorage(opts)
	if err != nil {
		return nil, err
	}

	// создаем бакет если его нет
	if err := ensureBucket(ctx, strg.client, strg.bucket); err != nil {
		log.Println("Failed to create bucket in MinIO:", err)
		return nil, err
	}

	return strg, nil
}

func newStorage(opts Options) (*MinioImageStorage, error) {
	if opts.Bucket == "" {
		opts.Bucket = "images"
		log.Printf("Bucket name is empty. Using default value %q...", opts.Bucket)
	}

	// подключаемся к минио - создаем клиента
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.User, opts.Pass, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}

	return &MinioImageStorage{bucket: opts.Bucket, ttl: opts.PresignTTL, client: client}, nil
}

func (s *MinioImageStorage) Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error {
	if r == nil {
		return errors.New("nil reader passed to storage.Put")
	}

	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return err
	}

	return nil
}

// PresignedURL returns a GET link to the object valid for the configured TTL
func (s *MinioImageStorage) PresignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.ttl, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}
