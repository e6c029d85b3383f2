// Package collect enumerates candidate raster files for a build.
package collect

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/example/stacforge/internal/core/config"
)

// ErrNotFound is returned when the input root does not exist or is not
// a directory. An empty match set is not an error.
var ErrNotFound = errors.New("input directory not found")

// Collector yields matching file paths under a root in lexicographic
// order so downstream identifier assignment is reproducible.
type Collector struct {
	Root string
	Glob string
	// MaxFiles stops collection once reached. Negative means unbounded.
	MaxFiles int
}

func New(cfg config.FileConfig) *Collector {
	glob := cfg.Glob
	if glob == "" {
		glob = "*"
	}
	return &Collector{Root: cfg.InputDir, Glob: glob, MaxFiles: cfg.MaxFiles}
}

// Collect returns the matched paths, truncated to MaxFiles when it is
// non-negative. The cutoff is enforced here so downstream stages never
// see work that would be discarded.
func (c *Collector) Collect() ([]string, error) {
	info, err := os.Stat(c.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, c.Root)
		}
		return nil, fmt.Errorf("stat input dir %s: %w", c.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, c.Root)
	}

	// fs.Glob walks in lexical order, which gives us the stable
	// ordering downstream identifier assignment depends on.
	matches, err := fs.Glob(os.DirFS(c.Root), c.Glob)
	if err != nil {
		return nil, fmt.Errorf("glob %q under %s: %w", c.Glob, c.Root, err)
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		if c.MaxFiles >= 0 && len(paths) >= c.MaxFiles {
			break
		}
		full := filepath.Join(c.Root, filepath.FromSlash(m))
		fi, err := os.Stat(full)
		if err != nil || fi.IsDir() {
			continue
		}
		paths = append(paths, full)
	}
	return paths, nil
}
