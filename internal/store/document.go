package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/stacforge/internal/core/model"
)

const stacVersion = "1.0.0"

// CollectionKey is the document name of a collection inside its output
// prefix.
const CollectionKey = "collection.json"

type linkDoc struct {
	Rel       string `json:"rel"`
	Href      string `json:"href"`
	MediaType string `json:"type,omitempty"`
}

type spatialDoc struct {
	BBox []model.BBox `json:"bbox"`
}

type temporalDoc struct {
	Interval [][2]*string `json:"interval"`
}

type extentDoc struct {
	Spatial  spatialDoc  `json:"spatial"`
	Temporal temporalDoc `json:"temporal"`
}

type collectionDoc struct {
	Type        string                           `json:"type"`
	StacVersion string                           `json:"stac_version"`
	ID          string                           `json:"id"`
	Title       string                           `json:"title,omitempty"`
	Description string                           `json:"description,omitempty"`
	License     string                           `json:"license,omitempty"`
	Keywords    []string                         `json:"keywords,omitempty"`
	Providers   []model.Provider                 `json:"providers,omitempty"`
	Extent      extentDoc                        `json:"extent"`
	ItemAssets  map[string]model.AssetDefinition `json:"item_assets,omitempty"`
	Summaries   map[string]any                   `json:"summaries,omitempty"`
	Links       []linkDoc                        `json:"links"`
}

type itemDoc struct {
	Type        string                 `json:"type"`
	StacVersion string                 `json:"stac_version"`
	ID          string                 `json:"id"`
	Collection  string                 `json:"collection,omitempty"`
	Geometry    model.Geometry         `json:"geometry"`
	BBox        model.BBox             `json:"bbox"`
	Properties  map[string]any         `json:"properties"`
	Assets      map[string]model.Asset `json:"assets"`
}

// ItemPath resolves the layout template to the document path of an
// item, relative to the collection document. Supported placeholders are
// ${collection} and ${year}.
func ItemPath(layout string, item model.Item) string {
	dir := strings.NewReplacer(
		"${collection}", item.Collection,
		"${year}", strconv.Itoa(item.Year()),
	).Replace(layout)
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return item.ID + ".json"
	}
	return dir + "/" + item.ID + ".json"
}

// EncodeCollection serializes a collection descriptor, including one
// item link per member item resolved through the layout template.
func EncodeCollection(col *model.Collection, layout string) ([]byte, error) {
	start := col.Extent.Temporal.Start.UTC().Format(time.RFC3339)
	end := col.Extent.Temporal.End.UTC().Format(time.RFC3339)

	doc := collectionDoc{
		Type:        "Collection",
		StacVersion: stacVersion,
		ID:          col.ID,
		Title:       col.Title,
		Description: col.Description,
		License:     col.License,
		Keywords:    col.Keywords,
		Providers:   col.Providers,
		Extent: extentDoc{
			Spatial:  spatialDoc{BBox: []model.BBox{col.Extent.Spatial}},
			Temporal: temporalDoc{Interval: [][2]*string{{&start, &end}}},
		},
		ItemAssets: col.ItemAssets,
		Summaries:  col.Summaries,
		Links:      []linkDoc{{Rel: "self", Href: "./" + CollectionKey, MediaType: "application/json"}},
	}
	for _, item := range col.Items {
		doc.Links = append(doc.Links, linkDoc{
			Rel:       "item",
			Href:      "./" + ItemPath(layout, item),
			MediaType: "application/geo+json",
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// EncodeItem serializes one item descriptor.
func EncodeItem(item model.Item) ([]byte, error) {
	props := make(map[string]any, len(item.Properties)+3)
	for k, v := range item.Properties {
		props[k] = v
	}
	props["datetime"] = item.Datetime.UTC().Format(time.RFC3339)
	if item.Start != nil {
		props["start_datetime"] = item.Start.UTC().Format(time.RFC3339)
	}
	if item.End != nil {
		props["end_datetime"] = item.End.UTC().Format(time.RFC3339)
	}

	doc := itemDoc{
		Type:        "Feature",
		StacVersion: stacVersion,
		ID:          item.ID,
		Collection:  item.Collection,
		Geometry:    item.Geometry,
		BBox:        item.BBox,
		Properties:  props,
		Assets:      item.Assets,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeCollection parses a collection document back into the in-memory
// model. Member items are not loaded; only the descriptor itself.
func DecodeCollection(data []byte) (*model.Collection, error) {
	var doc collectionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("not a valid collection document: %w", err)
	}
	if doc.Type != "Collection" {
		return nil, fmt.Errorf("document type is %q, want Collection", doc.Type)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("collection document has no id")
	}

	col := &model.Collection{
		ID:          doc.ID,
		Title:       doc.Title,
		Description: doc.Description,
		License:     doc.License,
		Keywords:    doc.Keywords,
		Providers:   doc.Providers,
		ItemAssets:  doc.ItemAssets,
		Summaries:   doc.Summaries,
	}
	if len(doc.Extent.Spatial.BBox) > 0 {
		col.Extent.Spatial = doc.Extent.Spatial.BBox[0]
		col.Extent.Spatial.EPSG = 4326
		if !col.Extent.Spatial.Valid() {
			return nil, fmt.Errorf("collection document has invalid spatial extent %s", col.Extent.Spatial)
		}
	}
	if len(doc.Extent.Temporal.Interval) > 0 {
		iv := doc.Extent.Temporal.Interval[0]
		if iv[0] != nil {
			ts, err := time.Parse(time.RFC3339, *iv[0])
			if err != nil {
				return nil, fmt.Errorf("bad temporal extent start: %w", err)
			}
			col.Extent.Temporal.Start = ts
		}
		if iv[1] != nil {
			ts, err := time.Parse(time.RFC3339, *iv[1])
			if err != nil {
				return nil, fmt.Errorf("bad temporal extent end: %w", err)
			}
			col.Extent.Temporal.End = ts
		}
	}
	return col, nil
}
