package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"soundvault/logger"
)

var tracer = otel.Tracer("soundvault-storage")

// MinioStore stores blobs as objects in a single MinIO bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucket, region string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		logger.Info("Creating bucket", logger.String("bucket", bucket))
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// Put uploads data under key with the given content type.
func (m *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, span := tracer.Start(ctx, "minio.put",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	reader := bytes.NewReader(data)
	_, err := m.client.PutObject(ctx, m.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	return nil
}

// Get opens the full object for reading. The caller must close the reader.
// Returns ErrNotFound when the object does not exist.
func (m *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "minio.get",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	// GetObject defers errors until the first read, so probe with a stat
	// to report a missing object to the caller up front.
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		span.RecordError(err)
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	object, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}

	return object, nil
}

// GetRange reads length bytes starting at offset.
func (m *MinioStore) GetRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "minio.get_range",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int64("offset", offset),
			attribute.Int64("length", length),
		),
	)
	defer span.End()

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("invalid range for object %s: %w", key, err)
	}

	object, err := m.client.GetObject(ctx, m.bucket, key, opts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get object range %s: %w", key, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		span.RecordError(err)
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read object range %s: %w", key, err)
	}

	span.SetAttributes(attribute.Int("size_bytes", len(data)))
	return data, nil
}

// Delete removes the object. Removing a missing object is not an error.
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "minio.delete",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}

	return nil
}
