package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/avess/gallery-bed/apperr"
)

// MinioConfig holds the settings for an S3-compatible provider.
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
}

// MinioStorage persists artifacts as objects in a single bucket. Gallery
// directories are prefixes, so EnsureDir is a no-op and DeleteTree removes
// every object under the prefix.
type MinioStorage struct {
	client     *minio.Client
	bucketName string
}

// NewMinioStorage connects to the endpoint and creates the bucket if absent.
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       time.Minute,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 10 * time.Second,
		DisableCompression:    true,
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:    cfg.UseSSL,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket '%s' exists: %w", cfg.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket '%s': %w", cfg.BucketName, err)
		}
		log.Printf("Created bucket: %s", cfg.BucketName)
	}

	return &MinioStorage{client: client, bucketName: cfg.BucketName}, nil
}

// SaveWithContext uploads a new object, refusing to overwrite an existing key.
func (s *MinioStorage) SaveWithContext(ctx context.Context, identifier string, file io.Reader) error {
	if !validIdentifier(identifier) {
		return apperr.ErrInvalidName
	}

	exists, err := s.Exists(ctx, identifier)
	if err != nil {
		return err
	}
	if exists {
		return apperr.ErrNameCollision
	}

	_, err = s.client.PutObject(ctx, s.bucketName, identifier, file, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return apperr.Storage("save", identifier, err)
	}
	return nil
}

// GetWithContext opens an object for streaming. The object is stat'ed first
// because GetObject defers "NoSuchKey" until the first read.
func (s *MinioStorage) GetWithContext(ctx context.Context, identifier string) (io.ReadSeekCloser, error) {
	if !validIdentifier(identifier) {
		return nil, apperr.ErrInvalidName
	}

	if _, err := s.client.StatObject(ctx, s.bucketName, identifier, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, apperr.ErrArtifactNotFound
		}
		return nil, apperr.Storage("get", identifier, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, identifier, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.Storage("get", identifier, err)
	}
	return obj, nil
}

// MoveWithContext renames an object with server-side copy plus delete.
func (s *MinioStorage) MoveWithContext(ctx context.Context, oldIdentifier, newIdentifier string) error {
	if !validIdentifier(oldIdentifier) || !validIdentifier(newIdentifier) {
		return apperr.ErrInvalidName
	}
	if !ValidLeafName(path.Base(newIdentifier)) {
		return apperr.ErrInvalidName
	}

	exists, err := s.Exists(ctx, newIdentifier)
	if err != nil {
		return err
	}
	if exists {
		return apperr.ErrNameCollision
	}

	_, err = s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucketName, Object: newIdentifier},
		minio.CopySrcOptions{Bucket: s.bucketName, Object: oldIdentifier},
	)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return apperr.ErrArtifactNotFound
		}
		return apperr.Storage("move", oldIdentifier, err)
	}

	if err := s.client.RemoveObject(ctx, s.bucketName, oldIdentifier, minio.RemoveObjectOptions{}); err != nil {
		return apperr.Storage("move", oldIdentifier, err)
	}
	return nil
}

// DeleteWithContext removes an object; a missing key is reported distinctly.
func (s *MinioStorage) DeleteWithContext(ctx context.Context, identifier string) error {
	if !validIdentifier(identifier) {
		return apperr.ErrInvalidName
	}

	exists, err := s.Exists(ctx, identifier)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.ErrArtifactNotFound
	}

	if err := s.client.RemoveObject(ctx, s.bucketName, identifier, minio.RemoveObjectOptions{}); err != nil {
		return apperr.Storage("delete", identifier, err)
	}
	return nil
}

// EnsureDirWithContext is a no-op: object keys have no directories.
func (s *MinioStorage) EnsureDirWithContext(ctx context.Context, dir string) error {
	if !validIdentifier(dir) {
		return apperr.ErrInvalidName
	}
	return nil
}

// DeleteTreeWithContext removes every object under the gallery prefix.
func (s *MinioStorage) DeleteTreeWithContext(ctx context.Context, dir string) error {
	if !validIdentifier(dir) {
		return apperr.ErrInvalidName
	}

	prefix := dir + "/"
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return apperr.Storage("rmtree", dir, obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucketName, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return apperr.Storage("rmtree", obj.Key, err)
		}
	}
	return nil
}

// Exists checks for an object key.
func (s *MinioStorage) Exists(ctx context.Context, identifier string) (bool, error) {
	if !validIdentifier(identifier) {
		return false, apperr.ErrInvalidName
	}

	_, err := s.client.StatObject(ctx, s.bucketName, identifier, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, apperr.Storage("stat", identifier, err)
	}
	return true, nil
}

// Health verifies the bucket is reachable.
func (s *MinioStorage) Health(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}

// Name returns the provider name.
func (s *MinioStorage) Name() string {
	return "minio"
}
