// Package model defines core domain types shared across the pipeline.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// BBox is an axis-aligned bounding box in the CRS identified by EPSG.
// A zero EPSG means the CRS is unknown.
type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	EPSG   int
}

func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,EPSG:%d", b.X1, b.Y1, b.X2, b.Y2, b.EPSG)
}

// Valid reports whether all coordinates are finite and min <= max on both axes.
func (b BBox) Valid() bool {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X1 <= b.X2 && b.Y1 <= b.Y2
}

// Union returns the smallest bbox containing both b and o.
// The EPSG code of b is kept; callers must not union across CRSes.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		X1:   math.Min(b.X1, o.X1),
		Y1:   math.Min(b.Y1, o.Y1),
		X2:   math.Max(b.X2, o.X2),
		Y2:   math.Max(b.Y2, o.Y2),
		EPSG: b.EPSG,
	}
}

// Contains reports whether o lies entirely within b.
func (b BBox) Contains(o BBox) bool {
	return b.X1 <= o.X1 && b.Y1 <= o.Y1 && b.X2 >= o.X2 && b.Y2 >= o.Y2
}

// MarshalJSON encodes the bbox as the [minx, miny, maxx, maxy] array
// used by catalog documents. The EPSG code is not part of the array form.
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var arr [4]float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("bbox must be a [minx,miny,maxx,maxy] array: %w", err)
	}
	b.X1, b.Y1, b.X2, b.Y2 = arr[0], arr[1], arr[2], arr[3]
	return nil
}

// Geometry is a GeoJSON geometry. Only Polygon is produced by the
// pipeline but any type round-trips through load and save.
type Geometry struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// PolygonFromBBox returns the closed exterior ring of b as a GeoJSON Polygon.
func PolygonFromBBox(b BBox) Geometry {
	return Geometry{
		Type: "Polygon",
		Coordinates: [][][]float64{{
			{b.X1, b.Y1},
			{b.X2, b.Y1},
			{b.X2, b.Y2},
			{b.X1, b.Y2},
			{b.X1, b.Y1},
		}},
	}
}

// Band describes one raster band.
type Band struct {
	Name              string   `json:"name,omitempty"`
	DataType          string   `json:"data_type,omitempty"`
	NoData            *float64 `json:"nodata,omitempty"`
	Unit              string   `json:"unit,omitempty"`
	Scale             *float64 `json:"scale,omitempty"`
	Offset            *float64 `json:"offset,omitempty"`
	BitsPerSample     int      `json:"bits_per_sample,omitempty"`
	SpatialResolution float64  `json:"spatial_resolution,omitempty"`
	Sampling          string   `json:"sampling,omitempty"`
}

// AssetMetadata is the per-file extraction result: everything known
// about one raster file before item mapping. It is produced by the
// extraction stage and read, never mutated, downstream.
type AssetMetadata struct {
	Path string `json:"path"`

	// ItemKey identifies the logical item this file contributes to.
	// Files sharing an ItemKey (e.g. band files of one scene) are
	// merged into a single item.
	ItemKey string `json:"item_key"`

	// AssetRole is the band or product tag parsed from the path,
	// used as the asset name inside the item.
	AssetRole string `json:"asset_role"`

	// Fields holds all tags the path parser extracted.
	Fields map[string]string `json:"fields,omitempty"`

	Native BBox `json:"native_bbox"`
	WGS84  BBox `json:"bbox"`
	EPSG   int  `json:"epsg"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	Bands []Band `json:"bands,omitempty"`

	Datetime time.Time  `json:"datetime"`
	Start    *time.Time `json:"start_datetime,omitempty"`
	End      *time.Time `json:"end_datetime,omitempty"`
}

// Asset is one file entry inside an item.
type Asset struct {
	Href        string   `json:"href"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	MediaType   string   `json:"type,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Bands       []Band   `json:"raster:bands,omitempty"`
}

// Item is one spatiotemporal scene descriptor referencing one or more assets.
type Item struct {
	ID         string
	Collection string
	Geometry   Geometry
	BBox       BBox
	Datetime   time.Time
	Start      *time.Time
	End        *time.Time
	Properties map[string]any
	Assets     map[string]Asset
}

// Year returns the calendar year of the item's representative datetime,
// preferring the start of a range when one is present.
func (it Item) Year() int {
	if it.Start != nil {
		return it.Start.UTC().Year()
	}
	return it.Datetime.UTC().Year()
}

// Provider describes an organisation involved in producing the collection.
type Provider struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
	URL   string   `json:"url,omitempty"`
}

// TemporalInterval is a closed datetime interval. A single instant is
// represented as a degenerate interval with Start == End.
type TemporalInterval struct {
	Start time.Time
	End   time.Time
}

// Extent is the spatial and temporal coverage of a collection.
type Extent struct {
	Spatial  BBox
	Temporal TemporalInterval
}

// AssetDefinition is the schema-level description of one asset role in
// a collection, as opposed to the instance data inside items.
type AssetDefinition struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	MediaType   string   `json:"type,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Bands       []Band   `json:"raster:bands,omitempty"`
}

// Collection aggregates items: identity fields from configuration and
// extent computed as the tight union over member items.
type Collection struct {
	ID          string
	Title       string
	Description string
	License     string
	Keywords    []string
	Providers   []Provider
	Extent      Extent
	ItemAssets  map[string]AssetDefinition
	Summaries   map[string]any

	// Items is owned by the collection for the duration of assembly.
	Items []Item
}

// GroupKey is the value a grouping strategy derives from an item, e.g.
// a year string or an attribute value.
type GroupKey string

// UngroupedKey marks items whose group key could not be computed.
const UngroupedKey GroupKey = ""
