// Package imagestore persists downloaded product images under stable keys.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"path"
)

// ErrNotFound is returned when no object exists for a key.
var ErrNotFound = errors.New("image not found")

// Store is a content store for product images.
// Put returns a reference that is recorded in the embedding record's image paths.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (string, bool, error)
}

// ImageKey is the store key for image i of a product with n images.
// Single-image products use the bare product id.
func ImageKey(productID string, i, n int) string {
	if n == 1 {
		return productID
	}
	return fmt.Sprintf("%s_%d", productID, i)
}

// objectName appends the file extension for contentType.
func objectName(key, contentType string) string {
	return key + extensionFor(contentType)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".img"
	}
}

var knownExtensions = []string{".jpg", ".png", ".gif", ".webp", ".img"}

func hasKnownExtension(name string) bool {
	ext := path.Ext(name)
	for _, e := range knownExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
