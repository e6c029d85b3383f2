// Package metacache caches extracted asset metadata between runs.
//
// Extraction is by far the slowest stage of a build: every file means a
// raster-header read. Listing metadata, listing items and building a
// collection over the same archive repeat that work, so extraction
// results are cached keyed by path plus file size and mtime. A changed
// file changes its key and naturally misses.
package metacache

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Interface is the cache seam. Implementations must treat values as
// opaque bytes.
type Interface interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Key builds the cache key for a raster file from its path and stat
// identity. The path text is hashed so arbitrary file names stay within
// key length and character limits.
func Key(path string, size int64, mtime time.Time) string {
	sum := xxhash.Sum64String(path)
	return fmt.Sprintf("meta:%016x:%d:%d", sum, size, mtime.UnixNano())
}

// FileKey stats path and returns its cache key.
func FileKey(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	return Key(path, fi.Size(), fi.ModTime()), nil
}
