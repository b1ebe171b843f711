// Package storage is the blob-upload collaborator: files go in, opaque
// {id, url, name} references come out. Nothing else in the system reads the
// blobs back.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"milestone-escrow-backend/internal/models"
)

type BlobStore struct {
	client    *minio.Client
	bucket    string
	urlExpiry time.Duration
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

func NewBlobStore(cfg Config) (*BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	expiry := cfg.URLExpiry
	if expiry == 0 {
		expiry = 7 * 24 * time.Hour
	}
	return &BlobStore{
		client:    client,
		bucket:    cfg.Bucket,
		urlExpiry: expiry,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (b *BlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Upload stores one blob and returns its reference. The object name is
// namespaced by a fresh id so uploads never collide.
func (b *BlobStore) Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string) (*models.FileRef, error) {
	id := uuid.New().String()
	objectName := path.Join(id, name)

	_, err := b.client.PutObject(ctx, b.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	url, err := b.client.PresignedGetObject(ctx, b.bucket, objectName, b.urlExpiry, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return &models.FileRef{
		ID:   objectName,
		URL:  url.String(),
		Name: name,
	}, nil
}
