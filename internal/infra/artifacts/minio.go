package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioBackend stores artifacts as objects in one bucket; roots are key
// prefixes inside it.
type MinioBackend struct {
	client *minio.Client
	bucket string
}

func NewMinioBackend(cfg MinioConfig) (*MinioBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioBackend{client: client, bucket: cfg.Bucket}, nil
}

func (b *MinioBackend) Name() string { return "minio" }

func (b *MinioBackend) CheckWritable(ctx context.Context, root string) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	marker := objectName(root, ".writable")
	if _, err := b.client.PutObject(ctx, b.bucket, marker, bytes.NewReader(nil), 0, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return b.client.RemoveObject(ctx, b.bucket, marker, minio.RemoveObjectOptions{})
}

func (b *MinioBackend) Write(ctx context.Context, root, key string, data []byte) error {
	name := objectName(root, key)
	if _, err := b.client.StatObject(ctx, b.bucket, name, minio.StatObjectOptions{}); err == nil {
		return ErrObjectExists
	} else if !isMinioNotFound(err) {
		return err
	}
	_, err := b.client.PutObject(ctx, b.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	return err
}

func (b *MinioBackend) Read(ctx context.Context, root, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, objectName(root, key), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return data, nil
}

func (b *MinioBackend) Remove(ctx context.Context, root, key string) error {
	return b.client.RemoveObject(ctx, b.bucket, objectName(root, key), minio.RemoveObjectOptions{})
}

func (b *MinioBackend) List(ctx context.Context, root, prefix string) ([]string, error) {
	base := objectName(root, "")
	var keys []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: base + prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, strings.TrimPrefix(obj.Key, base))
	}
	return keys, nil
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}

func objectName(root, key string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return key
	}
	return root + "/" + key
}
