// Package filestore provides blob storage backends for uploaded files.
package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core/file"
)

type diskStore struct {
	root string
}

var _ file.Store = (*diskStore)(nil)

// NewDiskStore keeps blobs under root, one directory per namespace.
func NewDiskStore(root string) (file.Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating file store root")
	}
	return &diskStore{root: root}, nil
}

func (s *diskStore) path(namespace, key string) string {
	return filepath.Join(s.root, namespace, key)
}

func (s *diskStore) Save(ctx context.Context, namespace, key string, data io.Reader) error {
	dir := filepath.Join(s.root, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating namespace dir")
	}
	f, err := os.Create(s.path(namespace, key))
	if err != nil {
		return errors.Wrap(err, "creating blob")
	}
	defer f.Close()
	if _, err = io.Copy(f, data); err != nil {
		return errors.Wrap(err, "writing blob")
	}
	return nil
}

func (s *diskStore) Open(ctx context.Context, namespace, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(namespace, key))
	if err != nil {
		return nil, errors.Wrap(err, "opening blob")
	}
	return f, nil
}

func (s *diskStore) Delete(ctx context.Context, namespace, key string) error {
	if err := os.Remove(s.path(namespace, key)); err != nil {
		return errors.Wrap(err, "deleting blob")
	}
	return nil
}
