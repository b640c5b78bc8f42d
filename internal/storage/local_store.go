package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalURLPrefix is the path under which locally stored images are served.
const LocalURLPrefix = "/uploads"

// LocalStore keeps images in a directory on disk.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed and returns a store writing into it.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir is the directory served under LocalURLPrefix.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save copies the upload into the directory under a generated name.
func (s *LocalStore) Save(ctx context.Context, file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	name := newObjectName(file.Filename)
	dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return path.Join(LocalURLPrefix, name), nil
}

// Remove deletes the file behind ref. References outside LocalURLPrefix are ignored.
func (s *LocalStore) Remove(ctx context.Context, ref string) error {
	if !strings.HasPrefix(ref, LocalURLPrefix+"/") {
		return nil
	}
	name := path.Base(ref)
	if name == "." || name == ".." || name == "/" {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove image %s: %w", ref, err)
	}
	return nil
}
