// Package export writes geometry-bearing tabular views of metadata and
// item sequences for visual inspection. Output is diagnostic only and
// is never read back by the pipeline.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/example/stacforge/internal/core/model"
)

type feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Geometry   model.Geometry `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

// MetadataGeoJSON renders one feature per asset metadata record, with
// the reprojected bbox as geometry.
func MetadataGeoJSON(metas []model.AssetMetadata) ([]byte, error) {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(metas))}
	for _, m := range metas {
		props := map[string]any{
			"path":     m.Path,
			"item_key": m.ItemKey,
			"role":     m.AssetRole,
			"epsg":     m.EPSG,
			"datetime": m.Datetime.UTC().Format(time.RFC3339),
			"bands":    len(m.Bands),
		}
		for k, v := range m.Fields {
			props["field:"+k] = v
		}
		fc.Features = append(fc.Features, feature{
			Type:       "Feature",
			Geometry:   model.PolygonFromBBox(m.WGS84),
			Properties: props,
		})
	}
	return json.MarshalIndent(fc, "", "  ")
}

// ItemsGeoJSON renders one feature per item with the item's bbox
// polygon as geometry.
func ItemsGeoJSON(items []model.Item) ([]byte, error) {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(items))}
	for _, it := range items {
		props := map[string]any{
			"collection": it.Collection,
			"datetime":   it.Datetime.UTC().Format(time.RFC3339),
			"assets":     len(it.Assets),
		}
		for k, v := range it.Properties {
			props[k] = v
		}
		fc.Features = append(fc.Features, feature{
			Type:       "Feature",
			ID:         it.ID,
			Geometry:   it.Geometry,
			Properties: props,
		})
	}
	return json.MarshalIndent(fc, "", "  ")
}

// MetadataCSV writes one row per asset metadata record.
func MetadataCSV(w io.Writer, metas []model.AssetMetadata) error {
	cw := csv.NewWriter(w)
	header := []string{"path", "item_key", "role", "epsg", "datetime", "minx", "miny", "maxx", "maxy", "bands"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, m := range metas {
		row := []string{
			m.Path,
			m.ItemKey,
			m.AssetRole,
			strconv.Itoa(m.EPSG),
			m.Datetime.UTC().Format(time.RFC3339),
			formatCoord(m.WGS84.X1),
			formatCoord(m.WGS84.Y1),
			formatCoord(m.WGS84.X2),
			formatCoord(m.WGS84.Y2),
			strconv.Itoa(len(m.Bands)),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for %s: %w", m.Path, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ItemsCSV writes one row per item.
func ItemsCSV(w io.Writer, items []model.Item) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "collection", "datetime", "minx", "miny", "maxx", "maxy", "assets"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, it := range items {
		row := []string{
			it.ID,
			it.Collection,
			it.Datetime.UTC().Format(time.RFC3339),
			formatCoord(it.BBox.X1),
			formatCoord(it.BBox.Y1),
			formatCoord(it.BBox.X2),
			formatCoord(it.BBox.Y2),
			strconv.Itoa(len(it.Assets)),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for %s: %w", it.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
