package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds the configuration for a MinIO server.
type MinIOConfig struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinIOStorage implements Storage and Signer on a self-hosted MinIO server.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	region string
	scheme string
	host   string
}

// NewMinIOStorage creates a new MinIOStorage instance. It does not contact
// the server; call EnsureBucket for that.
func NewMinIOStorage(cfg MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	return &MinIOStorage{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		scheme: scheme,
		host:   cfg.Endpoint,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinIOStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check MinIO bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create MinIO bucket: %w", err)
	}
	return nil
}

// Put uploads data to MinIO and returns the object URL.
func (s *MinIOStorage) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, data, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload to MinIO: %w", err)
	}

	return fmt.Sprintf("%s://%s/%s/%s", s.scheme, s.host, s.bucket, key), nil
}

// Get streams the object from MinIO. The object is stat'ed first because
// GetObject does not report missing keys until the first read.
func (s *MinIOStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, "", err
	}

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, "", fmt.Errorf("stat MinIO object: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get from MinIO: %w", err)
	}

	contentType := info.ContentType
	if strings.TrimSpace(contentType) == "" {
		contentType = DefaultContentType
	}
	return obj, contentType, nil
}

// Delete removes the object from MinIO.
func (s *MinIOStorage) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete from MinIO: %w", err)
	}
	return nil
}

// SignedURL returns a presigned GET URL valid for ttl.
func (s *MinIOStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign MinIO object: %w", err)
	}
	return u.String(), nil
}

// Verify interface implementation at compile time.
var (
	_ Storage = (*MinIOStorage)(nil)
	_ Signer  = (*MinIOStorage)(nil)
)
