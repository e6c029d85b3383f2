// Package itemmap merges asset metadata records into item descriptors.
//
// Files sharing an item key (for example the band files of one scene)
// become one item with one asset entry per file. The stage is purely
// functional: it builds an explicit key -> contributors index and never
// mutates its inputs.
package itemmap

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/example/stacforge/internal/core/config"
	"github.com/example/stacforge/internal/core/model"
)

// MappingError reports a group of files that could not form an item.
type MappingError struct {
	Key    string
	Reason string
}

func (e *MappingError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("map item: %s", e.Reason)
	}
	return fmt.Sprintf("map item %q: %s", e.Key, e.Reason)
}

// Skip records contributors excluded from mapping and why.
type Skip struct {
	Key   string
	Paths []string
	Err   error
}

// Mapper builds items according to the collection configuration.
type Mapper struct {
	Collection string
	MediaType  string
	Assets     map[string]config.AssetConfig

	// RequireAgreement makes mapping fail when contributors to one
	// item disagree on the datetime, instead of recording a range.
	RequireAgreement bool
}

// MapItems merges records sharing an item key into items, preserving
// first-encounter order. Groups that cannot form a valid item are
// skipped, not fatal.
func (m *Mapper) MapItems(metas []model.AssetMetadata) ([]model.Item, []Skip) {
	// Explicit intermediate index: key -> contributing records.
	order := make([]string, 0, len(metas))
	index := make(map[string][]model.AssetMetadata, len(metas))
	var skipped []Skip

	for _, meta := range metas {
		if meta.ItemKey == "" {
			skipped = append(skipped, Skip{
				Paths: []string{meta.Path},
				Err:   &MappingError{Reason: fmt.Sprintf("no identifying key for %s", meta.Path)},
			})
			continue
		}
		if _, ok := index[meta.ItemKey]; !ok {
			order = append(order, meta.ItemKey)
		}
		index[meta.ItemKey] = append(index[meta.ItemKey], meta)
	}

	items := make([]model.Item, 0, len(order))
	seenIDs := make(map[string]struct{}, len(order))
	for _, key := range order {
		group := index[key]
		item, err := m.mapGroup(key, group)
		if err != nil {
			paths := make([]string, len(group))
			for i, g := range group {
				paths[i] = g.Path
			}
			skipped = append(skipped, Skip{Key: key, Paths: paths, Err: err})
			continue
		}

		if _, dup := seenIDs[item.ID]; dup {
			// Distinct keys can sanitize to the same identifier; a
			// short digest of the raw key keeps IDs unique without
			// breaking determinism.
			item.ID = fmt.Sprintf("%s-%08x", item.ID, xxhash.Sum64String(key)&0xffffffff)
		}
		seenIDs[item.ID] = struct{}{}
		items = append(items, item)
	}
	return items, skipped
}

func (m *Mapper) mapGroup(key string, group []model.AssetMetadata) (model.Item, error) {
	first := group[0]
	if first.Datetime.IsZero() {
		return model.Item{}, &MappingError{Key: key, Reason: "no datetime available after merging"}
	}
	if !first.WGS84.Valid() {
		return model.Item{}, &MappingError{Key: key, Reason: "no valid geometry available after merging"}
	}

	bbox := first.WGS84
	minT, maxT := first.Datetime, first.Datetime
	for _, meta := range group[1:] {
		if m.RequireAgreement && !meta.Datetime.Equal(first.Datetime) {
			return model.Item{}, &MappingError{
				Key: key,
				Reason: fmt.Sprintf("contributors disagree on datetime: %s vs %s",
					first.Datetime.Format(time.RFC3339), meta.Datetime.Format(time.RFC3339)),
			}
		}
		bbox = bbox.Union(meta.WGS84)
		if !meta.Datetime.IsZero() {
			if meta.Datetime.Before(minT) {
				minT = meta.Datetime
			}
			if meta.Datetime.After(maxT) {
				maxT = meta.Datetime
			}
		}
	}

	item := model.Item{
		ID:         sanitizeID(key),
		Collection: m.Collection,
		Geometry:   model.PolygonFromBBox(bbox),
		BBox:       bbox,
		Datetime:   first.Datetime,
		Properties: map[string]any{},
		Assets:     make(map[string]model.Asset, len(group)),
	}
	if !minT.Equal(maxT) {
		start, end := minT, maxT
		item.Start, item.End = &start, &end
	}
	for k, v := range first.Fields {
		item.Properties[k] = v
	}
	item.Properties["epsg"] = first.EPSG

	for _, meta := range group {
		role := meta.AssetRole
		if role == "" {
			role = "data"
		}
		// Same role twice in one item means ambiguous path parsing;
		// keep both entries, deterministically numbered.
		base := role
		for n := 2; ; n++ {
			if _, taken := item.Assets[role]; !taken {
				break
			}
			role = fmt.Sprintf("%s-%d", base, n)
		}
		item.Assets[role] = m.buildAsset(base, meta)
	}
	return item, nil
}

func (m *Mapper) buildAsset(role string, meta model.AssetMetadata) model.Asset {
	asset := model.Asset{
		Href:      meta.Path,
		MediaType: m.MediaType,
		Roles:     []string{"data"},
		Bands:     meta.Bands,
	}
	cfg, ok := m.Assets[role]
	if !ok {
		return asset
	}
	asset.Title = cfg.Title
	asset.Description = cfg.Description
	if cfg.MediaType != "" {
		asset.MediaType = cfg.MediaType
	}
	if len(cfg.Roles) > 0 {
		asset.Roles = cfg.Roles
	}
	asset.Bands = mergeBands(meta.Bands, cfg.Bands)
	return asset
}

// mergeBands overlays configured fixed band values on the extracted
// ones, by position. Values read from the raster win only where the
// configuration is silent.
func mergeBands(extracted []model.Band, cfg []config.BandConfig) []model.Band {
	if len(cfg) == 0 {
		return extracted
	}
	out := make([]model.Band, len(cfg))
	for i, bc := range cfg {
		var b model.Band
		if i < len(extracted) {
			b = extracted[i]
		}
		if bc.Name != "" {
			b.Name = bc.Name
		}
		if bc.DataType != "" {
			b.DataType = bc.DataType
		}
		if bc.NoData != nil {
			b.NoData = bc.NoData
		}
		if bc.Unit != "" {
			b.Unit = bc.Unit
		}
		if bc.Scale != nil {
			b.Scale = bc.Scale
		}
		if bc.Offset != nil {
			b.Offset = bc.Offset
		}
		if bc.BitsPerSample != 0 {
			b.BitsPerSample = bc.BitsPerSample
		}
		if bc.SpatialResolution != 0 {
			b.SpatialResolution = bc.SpatialResolution
		}
		if bc.Sampling != "" {
			b.Sampling = bc.Sampling
		}
		out[i] = b
	}
	return out
}

// sanitizeID maps an item key to an identifier safe for document paths:
// alphanumerics, '_', '-' and '.' pass through, runs of anything else
// collapse to a single '-'.
func sanitizeID(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	var prev rune
	for _, r := range key {
		out := r
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			out = '-'
		}
		if out == '-' && prev == '-' {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return strings.Trim(b.String(), "-")
}
