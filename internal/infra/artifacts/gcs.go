package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GCSConfig struct {
	Bucket string
	// Endpoint overrides the API host, e.g. for a local emulator.
	Endpoint string
}

// GCSBackend stores artifacts in a Cloud Storage bucket; roots are object
// name prefixes.
type GCSBackend struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

func NewGCSBackend(ctx context.Context, cfg GCSConfig) (*GCSBackend, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSBackend{client: client, bucket: client.Bucket(cfg.Bucket)}, nil
}

func (b *GCSBackend) Name() string { return "gcs" }

func (b *GCSBackend) Close() error {
	return b.client.Close()
}

func (b *GCSBackend) CheckWritable(ctx context.Context, root string) error {
	if _, err := b.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("bucket attrs: %w", err)
	}
	obj := b.bucket.Object(objectName(root, ".writable"))
	w := obj.NewWriter(ctx)
	if err := w.Close(); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return obj.Delete(ctx)
}

// Write only creates objects; an existing version is reported as
// ErrObjectExists.
func (b *GCSBackend) Write(ctx context.Context, root, key string, data []byte) error {
	w := b.bucket.Object(objectName(root, key)).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/pdf"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return mapPrecondition(err)
	}
	return mapPrecondition(w.Close())
}

func (b *GCSBackend) Read(ctx context.Context, root, key string) ([]byte, error) {
	r, err := b.bucket.Object(objectName(root, key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *GCSBackend) Remove(ctx context.Context, root, key string) error {
	err := b.bucket.Object(objectName(root, key)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrObjectNotFound
	}
	return err
}

func (b *GCSBackend) List(ctx context.Context, root, prefix string) ([]string, error) {
	base := objectName(root, "")
	it := b.bucket.Objects(ctx, &storage.Query{Prefix: base + prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, strings.TrimPrefix(attrs.Name, base))
	}
	return keys, nil
}

func mapPrecondition(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return ErrObjectExists
	}
	return err
}
