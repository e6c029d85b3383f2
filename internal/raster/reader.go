// Package raster reads georeferencing metadata from raster files.
//
// Only headers are read; pixel data is never decoded. The Reader
// interface is the seam the extraction stage depends on, so tests and
// other products can substitute their own implementation.
package raster

import (
	"context"
	"fmt"
	"time"

	"github.com/example/stacforge/internal/core/model"
)

// Info is the georeferencing metadata of one raster file.
type Info struct {
	// BBox is the native bounding box, in the CRS identified by EPSG.
	BBox   model.BBox
	EPSG   int
	Width  int
	Height int
	Bands  []model.Band
	// Timestamp is the acquisition time embedded in the file, when present.
	Timestamp *time.Time
}

// Reader opens a raster file and returns its metadata. Implementations
// may fail per file; such failures are local to the file and must not
// carry cross-file state.
type Reader interface {
	Read(ctx context.Context, path string) (*Info, error)
}

// ReadError reports a file that could not be opened or lacks
// georeferencing information.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read raster %q: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
