// Package storage persists uploaded product images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ImageStore saves image artifacts and releases them again.
type ImageStore interface {
	// Save persists the uploaded file and returns the reference recorded on the product.
	Save(ctx context.Context, file *multipart.FileHeader) (string, error)
	// Remove deletes the artifact behind ref. A missing artifact is not an error.
	Remove(ctx context.Context, ref string) error
}

var (
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrImageTooLarge    = errors.New("image too large")
)

var allowedImageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// AllowedExtensions lists the accepted image file extensions.
func AllowedExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
}

// CheckImage rejects files that are not an accepted image type or exceed maxBytes.
func CheckImage(file *multipart.FileHeader, maxBytes int64) error {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := allowedImageTypes[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedImage, ext)
	}
	if ct := file.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" && !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("%w: %s", ErrUnsupportedImage, ct)
	}
	if maxBytes > 0 && file.Size > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrImageTooLarge, file.Size, maxBytes)
	}
	return nil
}

// newObjectName returns a collision-free name that keeps the original extension.
func newObjectName(original string) string {
	return uuid.New().String() + strings.ToLower(filepath.Ext(original))
}

func contentTypeFor(file *multipart.FileHeader) string {
	if ct, ok := allowedImageTypes[strings.ToLower(filepath.Ext(file.Filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}
