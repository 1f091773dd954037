package mediasvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
)

type LocalStorage struct {
	root    string
	baseURL string
	now     func() time.Time
}

var _ core.MediaStorage = (*LocalStorage)(nil) // interface compliance check

func NewLocalStorage(root, baseURL string) (*LocalStorage, error) {
	if root == "" {
		return nil, errors.New("media root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating media root")
	}
	return &LocalStorage{root: root, baseURL: baseURL, now: time.Now}, nil
}

func (s *LocalStorage) Save(ctx context.Context, folder, filename, _ string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := objectKey(folder, filename, s.now())
	fpath := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
		return "", errors.Wrap(err, "creating media folder")
	}

	f, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "creating media file")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(fpath)
		return "", errors.Wrap(err, "writing media file")
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(fpath)
		return "", errors.Wrap(err, "closing media file")
	}
	return key, nil
}

func (s *LocalStorage) Open(_ context.Context, path string) (io.ReadCloser, error) {
	key, err := cleanKey(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	return f, errors.Wrap(err, "opening media file")
}

// Delete removes the files at paths; empty and missing paths are ignored.
func (s *LocalStorage) Delete(_ context.Context, paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		key, err := cleanKey(p)
		if err != nil {
			return err
		}
		if err = os.Remove(filepath.Join(s.root, filepath.FromSlash(key))); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "deleting media file")
		}
	}
	return nil
}

func (s *LocalStorage) URL(path string) string {
	return joinURL(s.baseURL, path)
}

// Path returns the filesystem path of the object at key.
func (s *LocalStorage) Path(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}
