// Package assemble aggregates items into collection descriptors and
// applies configuration overrides.
package assemble

import (
	"errors"
	"fmt"

	"github.com/example/stacforge/internal/core/config"
	"github.com/example/stacforge/internal/core/model"
)

// ErrEmptyExtent is returned when assembly is attempted with zero
// items: no extent can be derived, so the collection must not be built.
var ErrEmptyExtent = errors.New("no items to derive a collection extent from")

// Build assembles a collection from configuration and a group's items.
// The extent is always recomputed from scratch as the tight union over
// the given items.
func Build(cfg *config.CollectionConfig, id string, items []model.Item) (*model.Collection, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("collection %s: %w", id, ErrEmptyExtent)
	}

	spatial := items[0].BBox
	temporal := intervalOf(items[0])
	for _, item := range items[1:] {
		spatial = spatial.Union(item.BBox)
		iv := intervalOf(item)
		if iv.Start.Before(temporal.Start) {
			temporal.Start = iv.Start
		}
		if iv.End.After(temporal.End) {
			temporal.End = iv.End
		}
	}

	col := &model.Collection{
		ID:          id,
		Title:       cfg.Title,
		Description: cfg.Description,
		License:     cfg.License,
		Keywords:    cfg.Keywords,
		Extent: model.Extent{
			Spatial:  spatial,
			Temporal: temporal,
		},
		Items: make([]model.Item, len(items)),
	}
	copy(col.Items, items)
	for i := range col.Items {
		col.Items[i].Collection = id
	}

	for _, p := range cfg.Providers {
		col.Providers = append(col.Providers, model.Provider{
			Name:  p.Name,
			Roles: p.Roles,
			URL:   p.URL,
		})
	}

	if len(cfg.ItemAssets) > 0 {
		col.ItemAssets = make(map[string]model.AssetDefinition, len(cfg.ItemAssets))
		for role, ac := range cfg.ItemAssets {
			mediaType := ac.MediaType
			if mediaType == "" {
				mediaType = cfg.MediaType
			}
			col.ItemAssets[role] = model.AssetDefinition{
				Title:       ac.Title,
				Description: ac.Description,
				MediaType:   mediaType,
				Roles:       ac.Roles,
				Bands:       configBands(ac.Bands),
			}
		}
	}

	summaries := map[string]any{}
	if len(cfg.Platform) > 0 {
		summaries["platform"] = cfg.Platform
	}
	if len(cfg.Mission) > 0 {
		summaries["mission"] = cfg.Mission
	}
	if len(cfg.Instruments) > 0 {
		summaries["instruments"] = cfg.Instruments
	}
	if len(summaries) > 0 {
		col.Summaries = summaries
	}
	return col, nil
}

func intervalOf(item model.Item) model.TemporalInterval {
	if item.Start != nil && item.End != nil {
		return model.TemporalInterval{Start: *item.Start, End: *item.End}
	}
	// A single instant is a degenerate range.
	return model.TemporalInterval{Start: item.Datetime, End: item.Datetime}
}

func configBands(bands []config.BandConfig) []model.Band {
	if len(bands) == 0 {
		return nil
	}
	out := make([]model.Band, len(bands))
	for i, bc := range bands {
		out[i] = model.Band{
			Name:              bc.Name,
			DataType:          bc.DataType,
			NoData:            bc.NoData,
			Unit:              bc.Unit,
			Scale:             bc.Scale,
			Offset:            bc.Offset,
			BitsPerSample:     bc.BitsPerSample,
			SpatialResolution: bc.SpatialResolution,
			Sampling:          bc.Sampling,
		}
	}
	return out
}
