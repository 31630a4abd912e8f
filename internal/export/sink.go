// Package export stores Tekla export documents after the workflow hands them back.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tjfontaine/steelflow/internal/core/ports"
)

// DefaultBucket is used when a MinIO sink is configured without a bucket.
const DefaultBucket = "steelflow-exports"

// Config selects and configures an export sink.
type Config struct {
	Sink  string // dir, minio
	Dir   string
	Minio MinioConfig
}

// MinioConfig addresses an S3-compatible object store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New builds the configured sink.
func New(cfg Config) (ports.ExportSink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Sink)) {
	case "", "dir":
		dir := cfg.Dir
		if dir == "" {
			dir = "."
		}
		return NewDirSink(dir), nil
	case "minio", "s3":
		sink, err := NewMinioSink(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unsupported export sink: %s", cfg.Sink)
	}
}

// DirSink writes exports into a local directory.
type DirSink struct {
	dir string
}

var _ ports.ExportSink = (*DirSink)(nil)

// NewDirSink returns a sink rooted at dir. The directory is created on first write.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Put writes body to <dir>/<name> and returns the file path.
func (s *DirSink) Put(ctx context.Context, name string, body io.Reader, size int64) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

// MinioSink uploads exports to an S3-compatible bucket.
type MinioSink struct {
	client *minio.Client
	bucket string
}

var _ ports.ExportSink = (*MinioSink)(nil)

// NewMinioSink creates a MinIO client. The bucket is checked lazily on Put.
func NewMinioSink(cfg MinioConfig) (*MinioSink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required when export.sink=minio")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &MinioSink{client: client, bucket: bucket}, nil
}

// Bucket returns the target bucket name.
func (s *MinioSink) Bucket() string {
	return s.bucket
}

// Put uploads body as <bucket>/<name> and returns an s3:// location.
func (s *MinioSink) Put(ctx context.Context, name string, body io.Reader, size int64) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return "", fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	if _, err := s.client.PutObject(ctx, s.bucket, name, body, size, minio.PutObjectOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, name), nil
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid export name %q", name)
	}
	return nil
}
