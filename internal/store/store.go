// Package store persists and loads catalog documents through a
// gocloud.dev blob bucket, so output can target a local directory or
// bucket storage behind the same URL scheme.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"

	"github.com/example/stacforge/internal/core/model"
)

// LoadError reports a persisted document that could not be read back
// into the in-memory model.
type LoadError struct {
	Key string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %q: %v", e.Key, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Catalog reads and writes catalog documents under one bucket.
type Catalog struct {
	bucket *blob.Bucket
}

// Open opens the bucket URL (e.g. file:///data/out?create_dir=true).
// Drivers are registered by the importing binary.
func Open(ctx context.Context, urlstr string) (*Catalog, error) {
	bucket, err := blob.OpenBucket(ctx, urlstr)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", urlstr, err)
	}
	return &Catalog{bucket: bucket}, nil
}

// NewCatalog wraps an already-open bucket. The caller keeps ownership
// of the bucket's lifetime.
func NewCatalog(bucket *blob.Bucket) *Catalog {
	return &Catalog{bucket: bucket}
}

func (c *Catalog) Close() error { return c.bucket.Close() }

// WriteDocument stores raw document bytes under key.
func (c *Catalog) WriteDocument(ctx context.Context, key string, doc []byte) error {
	if err := c.bucket.WriteAll(ctx, key, doc, nil); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

// ReadDocument loads raw document bytes from key.
func (c *Catalog) ReadDocument(ctx context.Context, key string) ([]byte, error) {
	data, err := c.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, &LoadError{Key: key, Err: err}
	}
	return data, nil
}

// WriteCollection persists the collection document plus one document
// per member item under prefix, laid out by the item layout template.
// Grouped builds use one prefix per group.
func (c *Catalog) WriteCollection(ctx context.Context, prefix string, doc []byte, col *model.Collection, layout string) error {
	if err := c.WriteDocument(ctx, prefix+CollectionKey, doc); err != nil {
		return err
	}
	for _, item := range col.Items {
		itemData, err := EncodeItem(item)
		if err != nil {
			return fmt.Errorf("encode item %s: %w", item.ID, err)
		}
		if err := c.WriteDocument(ctx, prefix+ItemPath(layout, item), itemData); err != nil {
			return err
		}
	}
	return nil
}

// LoadCollection reads a persisted collection document back into the
// model, returning both the model and the raw bytes so postprocessing
// can patch the document without re-encoding it.
func (c *Catalog) LoadCollection(ctx context.Context, key string) (*model.Collection, []byte, error) {
	data, err := c.ReadDocument(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	col, err := DecodeCollection(data)
	if err != nil {
		return nil, nil, &LoadError{Key: key, Err: err}
	}
	return col, data, nil
}

// Clear removes every document under prefix. Used by builds run with
// the overwrite flag.
func (c *Catalog) Clear(ctx context.Context, prefix string) error {
	iter := c.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list %q: %w", prefix, err)
		}
		if err := c.bucket.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("delete %q: %w", obj.Key, err)
		}
	}
}

// ListCollections returns the keys of every collection document in the
// bucket: the root one plus one per group prefix.
func (c *Catalog) ListCollections(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.bucket.List(nil)
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			return keys, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
		if obj.Key == CollectionKey || strings.HasSuffix(obj.Key, "/"+CollectionKey) {
			keys = append(keys, obj.Key)
		}
	}
}

// Exists reports whether any document is stored under prefix.
func (c *Catalog) Exists(ctx context.Context, prefix string) (bool, error) {
	iter := c.bucket.List(&blob.ListOptions{Prefix: prefix})
	_, err := iter.Next(ctx)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("list %q: %w", prefix, err)
	}
	return true, nil
}
