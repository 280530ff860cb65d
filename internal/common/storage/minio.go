package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig points at MinIO or any S3-compatible endpoint.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
	Region    string `yaml:"region"`
}

// MinIOStorage implements ObjectStorage with minio-go.
type MinIOStorage struct {
	client *minio.Client
}

// NewMinIOStorage builds a client. minio-go signs nothing when the keys are
// empty, so a public runtime bucket needs no credentials.
func NewMinIOStorage(cfg MinIOConfig) (*MinIOStorage, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	creds := credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	client, err := minio.New(cfg.Endpoint, &minio.Options{Creds: creds, Secure: cfg.UseSSL, Region: cfg.Region})
	if err != nil {
		return nil, fmt.Errorf("create minio client for %s: %w", cfg.Endpoint, err)
	}
	return &MinIOStorage{client: client}, nil
}

func (s *MinIOStorage) StatObject(ctx context.Context, bucket, key string) (ObjectStat, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectStat{}, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	return ObjectStat{SizeBytes: info.Size, ETag: info.ETag, ContentType: info.ContentType}, nil
}

func (s *MinIOStorage) GetObject(ctx context.Context, bucket, key, etag string) (io.ReadCloser, error) {
	var opts minio.GetObjectOptions
	if etag != "" {
		if err := opts.SetMatchETag(etag); err != nil {
			return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
		}
	}
	obj, err := s.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}
