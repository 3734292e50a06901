package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/facefind/internal/config"
	"github.com/your-org/facefind/internal/models"
)

// ObjectStore holds face images and file chunks by key.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	// GetObject returns models.ErrNotFound for a missing key.
	GetObject(ctx context.Context, key string) ([]byte, error)
	// DeleteObjects ignores keys that are already gone.
	DeleteObjects(ctx context.Context, keys []string) error
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	// ListPrefixes returns the immediate child prefixes under prefix, each
	// ending in "/". Objects directly under prefix are returned as-is.
	ListPrefixes(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}

// MinIOStore is an ObjectStore on one S3-compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client for %s: %w", cfg.Endpoint, err)
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket on first start.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if ok {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && !isCode(err, "BucketAlreadyOwnedByYou") {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinIOStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// GetObject reads a whole object. minio defers the request until the first
// read, so a missing key surfaces from ReadAll.
func (s *MinIOStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err == nil {
		defer obj.Close()
		var data []byte
		if data, err = io.ReadAll(obj); err == nil {
			return data, nil
		}
	}
	if isCode(err, "NoSuchKey") {
		return nil, fmt.Errorf("object %s: %w", key, models.ErrNotFound)
	}
	return nil, fmt.Errorf("get object %s: %w", key, err)
}

func (s *MinIOStore) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	return s.list(ctx, prefix, true)
}

func (s *MinIOStore) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	return s.list(ctx, prefix, false)
}

func (s *MinIOStore) list(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: recursive}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// DeleteObjects removes keys with multi-object delete requests and reports
// every key that failed.
func (s *MinIOStore) DeleteObjects(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ch := make(chan minio.ObjectInfo)
	go func() {
		defer close(ch)
		for _, k := range keys {
			select {
			case ch <- minio.ObjectInfo{Key: k}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for res := range s.client.RemoveObjects(ctx, s.bucket, ch, minio.RemoveObjectsOptions{}) {
		if res.Err != nil && !isCode(res.Err, "NoSuchKey") {
			errs = append(errs, fmt.Errorf("delete object %s: %w", res.ObjectName, res.Err))
		}
	}
	if len(errs) == 0 {
		return ctx.Err()
	}
	return errors.Join(errs...)
}

func (s *MinIOStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("minio %s: %w", s.bucket, err)
	}
	return nil
}

func isCode(err error, code string) bool {
	return minio.ToErrorResponse(err).Code == code
}
