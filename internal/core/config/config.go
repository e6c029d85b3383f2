// Package config holds the runtime and collection configuration models.
//
// Runtime settings (logging, serve address, cache driver) come from the
// environment. The collection configuration is a JSON file describing
// the catalog to build; it is validated once at load time and treated
// as read-only by the pipeline.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// MediaTypeGeoTIFF is the default media type for assets and collections.
const MediaTypeGeoTIFF = "image/tiff; application=geotiff"

// DefaultItemLayout is the template for item document paths relative to
// the collection document.
const DefaultItemLayout = "${collection}/${year}"

type Config struct {
	LogLevel   string
	LogConsole bool
	Addr       string
	Workers    int

	CacheDriver string // none | memory | redis
	CacheSize   int
	CacheTTL    time.Duration
	RedisAddr   string
}

func FromEnv() Config {
	workers := getint("STACFORGE_WORKERS", 4)
	if workers < 1 {
		workers = 1
	}
	return Config{
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogConsole:  getbool("LOG_CONSOLE", true),
		Addr:        getenv("ADDR", ":8085"),
		Workers:     workers,
		CacheDriver: getenv("STACFORGE_CACHE", "memory"),
		CacheSize:   getint("STACFORGE_CACHE_SIZE", 4096),
		CacheTTL:    getduration("STACFORGE_CACHE_TTL", 24*time.Hour),
		RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
	}
}

// FileConfig selects the input files for a build.
type FileConfig struct {
	InputDir string `json:"input_dir"`
	Glob     string `json:"glob"`
	// MaxFiles stops collection after this many files. Negative means
	// unbounded.
	MaxFiles int `json:"max_files"`
}

// PathParserConfig names the path parsing strategy and its parameters.
type PathParserConfig struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ProviderConfig mirrors the provider entry of the collection document.
type ProviderConfig struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
	URL   string   `json:"url,omitempty"`
}

// BandConfig holds the fixed per-band values that cannot be read from
// the raster itself.
type BandConfig struct {
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	DataType          string   `json:"data_type,omitempty"`
	NoData            *float64 `json:"nodata,omitempty"`
	Sampling          string   `json:"sampling,omitempty"`
	BitsPerSample     int      `json:"bits_per_sample,omitempty"`
	SpatialResolution float64  `json:"spatial_resolution,omitempty"`
	Unit              string   `json:"unit,omitempty"`
	Scale             *float64 `json:"scale,omitempty"`
	Offset            *float64 `json:"offset,omitempty"`
}

// AssetConfig holds the fixed fields of one asset role in an item.
type AssetConfig struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	MediaType   string       `json:"media_type,omitempty"`
	Roles       []string     `json:"roles,omitempty"`
	Bands       []BandConfig `json:"bands,omitempty"`
}

// GroupingConfig selects how items are partitioned into sub-collections.
type GroupingConfig struct {
	Strategy  string `json:"strategy"`            // by-year | by-attribute
	Attribute string `json:"attribute,omitempty"` // for by-attribute
}

// CollectionConfig is the on-disk collection description.
type CollectionConfig struct {
	ID          string           `json:"collection_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	License     string           `json:"license,omitempty"`
	Keywords    []string         `json:"keywords,omitempty"`
	Providers   []ProviderConfig `json:"providers,omitempty"`

	Platform    []string `json:"platform,omitempty"`
	Mission     []string `json:"mission,omitempty"`
	Instruments []string `json:"instruments,omitempty"`

	MediaType  string `json:"media_type,omitempty"`
	ItemLayout string `json:"layout_item_template,omitempty"`

	PathParser *PathParserConfig      `json:"input_path_parser,omitempty"`
	ItemAssets map[string]AssetConfig `json:"item_assets,omitempty"`
	Grouping   *GroupingConfig        `json:"grouping,omitempty"`

	// Overrides are applied to the assembled collection document last.
	// Keys are document paths; values replace whatever was computed.
	Overrides map[string]any `json:"overrides,omitempty"`
}

func FromJSON(data []byte) (*CollectionConfig, error) {
	var c CollectionConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode collection config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func LoadCollectionConfig(path string) (*CollectionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read collection config %s: %w", path, err)
	}
	return FromJSON(data)
}

func (c *CollectionConfig) Validate() error {
	if c.ID == "" {
		return errors.New("collection config: collection_id is required")
	}
	if c.Title == "" {
		return errors.New("collection config: title is required")
	}
	if c.Description == "" {
		return errors.New("collection config: description is required")
	}
	if c.Grouping != nil {
		switch c.Grouping.Strategy {
		case "by-year":
		case "by-attribute":
			if c.Grouping.Attribute == "" {
				return errors.New("collection config: grouping strategy by-attribute needs an attribute")
			}
		default:
			return fmt.Errorf("collection config: unknown grouping strategy %q", c.Grouping.Strategy)
		}
	}
	if c.MediaType == "" {
		c.MediaType = MediaTypeGeoTIFF
	}
	if c.ItemLayout == "" {
		c.ItemLayout = DefaultItemLayout
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
