package artifacts

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSBackend stores artifacts as files below a root directory.
type FSBackend struct{}

func NewFSBackend() FSBackend {
	return FSBackend{}
}

func (FSBackend) Name() string { return "fs" }

func (FSBackend) CheckWritable(ctx context.Context, root string) error {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(root, ".writable-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Remove(name)
}

// Write goes through a temp file and a hard link so a reader never observes
// a partial file and an existing version is never replaced.
func (FSBackend) Write(ctx context.Context, root, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.Join(root, filepath.FromSlash(key))
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Link(tmpName, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrObjectExists
		}
		return err
	}
	return nil
}

func (FSBackend) Read(ctx context.Context, root, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return data, err
}

func (FSBackend) Remove(ctx context.Context, root, key string) error {
	err := os.Remove(filepath.Join(root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrObjectNotFound
	}
	return err
}

func (FSBackend) List(ctx context.Context, root, prefix string) ([]string, error) {
	dir := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(prefix, "/")))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		keys = append(keys, prefix+e.Name())
	}
	return keys, nil
}
