// Package storage picks and connects the object store backend for images
package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/UnendingLoop/ImagePipeline/internal/storage/miniostorage"
	"github.com/UnendingLoop/ImagePipeline/internal/storage/s3storage"
	"github.com/wb-go/wbf/config"
)

// Семь суток - максимум для presigned-ссылок SigV4
const defaultPresignTTL = 7 * 24 * time.Hour

type ImageStore interface {
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
	PresignedURL(ctx context.Context, key string) (string, error)
}

// NewImgStorage connects to the configured backend, retrying until it succeeds or ctx is done
func NewImgStorage(ctx context.Context, cfg *config.Config, delay time.Duration) (ImageStore, error) {
	for {
		log.Println("Connecting to IMG-storage...")
		client, err := connect(ctx, cfg)
		if err == nil {
			log.Println("Successfully connected IMG-storage!")
			return client, nil
		}

		log.Printf("Failed to init connection to IMG-storage: %v\nNext retry in %v...", err, delay)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("IMG-storage connection aborted: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}

func connect(ctx context.Context, cfg *config.Config) (ImageStore, error) {
	ttl := PresignTTL(cfg.GetString("PRESIGN_TTL"))
	bucket := cfg.GetString("BUCKET_NAME")

	switch backend := strings.ToLower(cfg.GetString("STORAGE_BACKEND")); backend {
	case "", "minio":
		return miniostorage.NewMinioClient(ctx, miniostorage.Options{
			Endpoint:   cfg.GetString("MINIO_ENDPOINT"),
			User:       cfg.GetString("MINIO_USER"),
			Pass:       cfg.GetString("MINIO_PASS"),
			Secure:     strings.EqualFold(cfg.GetString("MINIO_SECURE"), "true"),
			Region:     cfg.GetString("MINIO_REGION"),
			Bucket:     bucket,
			PresignTTL: ttl,
		})
	case "s3":
		return s3storage.NewS3Client(ctx, s3storage.Options{
			Region:          cfg.GetString("S3_REGION"),
			Endpoint:        cfg.GetString("S3_ENDPOINT"),
			AccessKeyID:     cfg.GetString("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: cfg.GetString("AWS_SECRET_ACCESS_KEY"),
			Bucket:          bucket,
			PresignTTL:      ttl,
		})
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", backend)
	}
}

// PresignTTL parses a duration like "24h"; empty, broken or out-of-range values fall back to 7 days
func PresignTTL(raw string) time.Duration {
	if raw == "" {
		return defaultPresignTTL
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil || ttl <= 0 || ttl > defaultPresignTTL {
		log.Printf("Incorrect PRESIGN_TTL %q. Using default value %v...", raw, defaultPresignTTL)
		return defaultPresignTTL
	}
	return ttl
}
