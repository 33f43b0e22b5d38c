package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds connection settings for an S3-compatible endpoint.
type MinioConfig struct {
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Region          string `toml:"region"`
	UseSSL          bool   `toml:"use_ssl"`
}

// MinioStore implements Store for MinIO and S3-compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore creates a new MinIO blob store.
// bucket is the MinIO bucket name.
// rootPrefix is prepended to all keys (e.g. "models/").
func NewMinioStore(client *minio.Client, bucket, rootPrefix string) *MinioStore {
	return &MinioStore{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

// DialMinio builds a client from cfg and returns a store for bucket.
// No request is made until the first Put or Get.
func DialMinio(cfg MinioConfig, bucket, rootPrefix string) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio: endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	return NewMinioStore(client, bucket, rootPrefix), nil
}

func (s *MinioStore) key(name string) string {
	return path.Join(s.prefix, name)
}

// Put uploads data as a single object. S3 object writes are atomic.
func (s *MinioStore) Put(ctx context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("minio put %s: %w", name, err)
	}
	return nil
}

// Get downloads a whole object.
func (s *MinioStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.translate(name, err)
	}
	return data, nil
}

func (s *MinioStore) translate(name string, err error) error {
	errResp := minio.ToErrorResponse(err)
	if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
		return fmt.Errorf("minio get %s: %w", name, ErrNotFound)
	}
	return fmt.Errorf("minio get %s: %w", name, err)
}
