package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	minioBackendName     = "minio"
	defaultMinioPartSize = 16 << 20 // 16 MiB
	minioNoSuchKeyCode   = "NoSuchKey"
)

// MinioOptions configures a MinioStore.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PartSize  uint64
}

// MinioStore stores blob bytes as objects in an S3-compatible bucket.
type MinioStore struct {
	client   *minio.Client
	bucket   string
	partSize uint64
}

// NewMinioStore connects to the endpoint and creates the bucket if needed.
func NewMinioStore(ctx context.Context, opts MinioOptions, logger *slog.Logger) (*MinioStore, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
		logger.Info("created bucket", "bucket", opts.Bucket)
	}

	partSize := opts.PartSize
	if partSize == 0 {
		partSize = defaultMinioPartSize
	}
	return &MinioStore{client: client, bucket: opts.Bucket, partSize: partSize}, nil
}

func (s *MinioStore) Name() string { return minioBackendName }

// Put uploads r with unknown length; the call returns once the object is committed.
func (s *MinioStore) Put(ctx context.Context, r io.Reader) (BlobPutResult, error) {
	var zero BlobPutResult
	if s == nil || s.client == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}

	key := newObjectKey()
	info, err := s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
		PartSize:    s.partSize,
	})
	if err != nil {
		return zero, err
	}
	return BlobPutResult{Key: key, SizeBytes: info.Size}, nil
}

// Open returns the object stream; a missing object maps to ErrNotFound.
func (s *MinioStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	clean, err := validateKey(key)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, clean, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioError(err, clean)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapMinioError(err, clean)
	}
	return obj, nil
}

// Delete removes the object. S3 treats a missing key as success.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("blob store is not configured")
	}
	clean, err := validateKey(key)
	if err != nil {
		return err
	}
	err = s.client.RemoveObject(ctx, s.bucket, clean, minio.RemoveObjectOptions{})
	if err != nil && !errors.Is(mapMinioError(err, clean), ErrNotFound) {
		return err
	}
	return nil
}

// CheckConnection verifies the bucket is reachable.
func (s *MinioStore) CheckConnection(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("blob store is not configured")
	}
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func mapMinioError(err error, key string) error {
	if minio.ToErrorResponse(err).Code == minioNoSuchKeyCode {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}
