package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrBlobNotFound is returned by Get, Delete and URL when no blob exists
// under the requested key.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is the object store holding binary image payloads, addressed by
// an opaque key. URLs are derived from the key on every call rather than
// stored, so the backing URL scheme can change without touching metadata.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error

	// URL returns an absolute, directly downloadable URL for the blob.
	URL(ctx context.Context, key string) (string, error)
}

func NewBlobStore(storeType, directory, baseURL string) (BlobStore, error) {
	switch storeType {
	case "filesystem":
		return NewFilesystemStore(directory, baseURL)
	case "memory":
		return NewMemoryStore(baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported blob store type: %s", storeType)
	}
}

// ObjectKey derives the store key for an upload. Prefixing with the image id
// keeps concurrent uploads of identical filenames from colliding; keeping
// the filename as the last segment makes the derived URL end in it, which is
// what clients download against.
func ObjectKey(imageID, filename string) string {
	sanitized := strings.NewReplacer("..", "__", "/", "_", "\\", "_").Replace(filename)
	return imageID + "/" + sanitized
}
