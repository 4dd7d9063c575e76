package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Logical buckets. Every byte artifact the service owns lives under one of
// these; records reference objects by generated filename only.
const (
	BucketPhotos     = "photos"
	BucketMusic      = "music"
	BucketThumbnails = "thumbnails"
	BucketPreviews   = "previews"
	BucketExports    = "exports"
)

var allBuckets = []string{
	BucketPhotos,
	BucketMusic,
	BucketThumbnails,
	BucketPreviews,
	BucketExports,
}

// ErrObjectNotFound is returned for reads of objects that do not exist.
var ErrObjectNotFound = errors.New("object not found")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

type Storage struct {
	client *minio.Client
	region string
}

// New connects to the object store and ensures every logical bucket exists.
func New(cfg Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	s := &Storage{client: client, region: cfg.Region}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, bucket := range allBuckets {
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
				return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
			log.Printf("[Storage] Created bucket %s", bucket)
		}
	}

	return s, nil
}

// Upload stores data under bucket/filename, overwriting any prior object.
func (s *Storage) Upload(ctx context.Context, bucket, filename string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, filename, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, filename, err)
	}
	return nil
}

// UploadFile streams a local file into the store.
func (s *Storage) UploadFile(ctx context.Context, bucket, filename, localPath, contentType string) error {
	_, err := s.client.FPutObject(ctx, bucket, filename, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file %s/%s: %w", bucket, filename, err)
	}
	return nil
}

// Download reads a whole object into memory.
func (s *Storage) Download(ctx context.Context, bucket, filename string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, filename, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", bucket, filename, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", bucket, filename, err)
	}
	return data, nil
}

// DownloadToFile copies an object to a local path, for handoff to subprocesses.
func (s *Storage) DownloadToFile(ctx context.Context, bucket, filename, localPath string) error {
	if err := s.client.FGetObject(ctx, bucket, filename, localPath, minio.GetObjectOptions{}); err != nil {
		if isNotFound(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to download %s/%s: %w", bucket, filename, err)
	}
	return nil
}

// Open returns a streaming reader for an object. The caller closes it.
func (s *Storage) Open(ctx context.Context, bucket, filename string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, filename, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s/%s: %w", bucket, filename, err)
	}

	// GetObject is lazy; stat to surface missing objects before handing the
	// reader to an HTTP response.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat %s/%s: %w", bucket, filename, err)
	}

	return obj, nil
}

// Exists reports whether bucket/filename is present. Reads are guarded with
// this before the pipeline commits to a photo or audio source.
func (s *Storage) Exists(ctx context.Context, bucket, filename string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, filename, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s/%s: %w", bucket, filename, err)
	}
	return true, nil
}

// Delete removes an object; deleting a missing object is not an error.
func (s *Storage) Delete(ctx context.Context, bucket, filename string) error {
	if err := s.client.RemoveObject(ctx, bucket, filename, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, filename, err)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}
