// Package pipeline wires the build stages together: collect files,
// extract metadata, map items, group, assemble and persist collections.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/example/stacforge/internal/assemble"
	"github.com/example/stacforge/internal/collect"
	"github.com/example/stacforge/internal/core/config"
	"github.com/example/stacforge/internal/core/model"
	"github.com/example/stacforge/internal/extract"
	"github.com/example/stacforge/internal/group"
	"github.com/example/stacforge/internal/itemmap"
	"github.com/example/stacforge/internal/metacache"
	"github.com/example/stacforge/internal/observability"
	"github.com/example/stacforge/internal/pathparse"
	"github.com/example/stacforge/internal/raster"
	"github.com/example/stacforge/internal/store"
)

// Options configures one pipeline instance.
type Options struct {
	Config *config.CollectionConfig
	Files  config.FileConfig

	Reader   raster.Reader
	Cache    metacache.Interface
	CacheTTL time.Duration
	Workers  int

	// RequireDatetimeAgreement makes item mapping fail when band files
	// of one item carry different datetimes.
	RequireDatetimeAgreement bool

	Log *slog.Logger
}

// SkipRecord is one excluded path (or path group) in a build summary.
type SkipRecord struct {
	Path   string `json:"path"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Summary reports what a run did, for operators and tests.
type Summary struct {
	Collection string        `json:"collection"`
	Collected  int           `json:"collected"`
	Extracted  int           `json:"extracted"`
	Mapped     int           `json:"mapped"`
	Skipped    []SkipRecord  `json:"skipped,omitempty"`
	Groups     []GroupResult `json:"groups,omitempty"`
	Ungrouped  int           `json:"ungrouped,omitempty"`
}

// GroupResult reports one sub-collection of a grouped build. A failed
// group carries its error without having blocked the others.
type GroupResult struct {
	Key   model.GroupKey `json:"key"`
	ID    string         `json:"id"`
	Items int            `json:"items"`
	Err   string         `json:"error,omitempty"`
}

type Pipeline struct {
	cfg       *config.CollectionConfig
	collector *collect.Collector
	extractor *extract.Extractor
	mapper    *itemmap.Mapper
	log       *slog.Logger
}

func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("pipeline needs a collection config")
	}
	if opts.Reader == nil {
		opts.Reader = raster.NewGeoTIFF()
	}
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var parserName string
	var parserParams map[string]any
	if opts.Config.PathParser != nil {
		parserName = opts.Config.PathParser.Name
		parserParams = opts.Config.PathParser.Parameters
	}
	parser, err := pathparse.New(parserName, parserParams)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       opts.Config,
		collector: collect.New(opts.Files),
		extractor: &extract.Extractor{
			Reader:     opts.Reader,
			Parser:     parser,
			Cache:      opts.Cache,
			CacheTTL:   opts.CacheTTL,
			CacheSalt:  parserSalt(opts.Config.PathParser),
			Workers:    opts.Workers,
			Collection: opts.Config.ID,
			Log:        log,
		},
		mapper: &itemmap.Mapper{
			Collection:       opts.Config.ID,
			MediaType:        opts.Config.MediaType,
			Assets:           opts.Config.ItemAssets,
			RequireAgreement: opts.RequireDatetimeAgreement,
		},
		log: log,
	}
	return p, nil
}

// parserSalt changes whenever the parser configuration changes, so
// cached extraction results from an older configuration never get
// served.
func parserSalt(cfg *config.PathParserConfig) string {
	if cfg == nil {
		return "default"
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "default"
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(raw))
}

// CollectFiles lists the files a build would process.
func (p *Pipeline) CollectFiles() ([]string, error) {
	paths, err := p.collector.Collect()
	if err != nil {
		return nil, err
	}
	observability.ObserveCollected(p.cfg.ID, len(paths))
	return paths, nil
}

// ExtractMetadata runs collection and extraction, returning records in
// input order plus a summary of skips so far.
func (p *Pipeline) ExtractMetadata(ctx context.Context) ([]model.AssetMetadata, *Summary, error) {
	paths, err := p.CollectFiles()
	if err != nil {
		return nil, nil, err
	}

	metas, skipped, err := p.extractor.ExtractAll(ctx, paths)
	if err != nil {
		return nil, nil, err
	}

	summary := &Summary{
		Collection: p.cfg.ID,
		Collected:  len(paths),
		Extracted:  len(metas),
	}
	for _, s := range skipped {
		summary.Skipped = append(summary.Skipped, SkipRecord{
			Path:   s.Path,
			Stage:  "extract",
			Reason: fmt.Sprintf("%s: %v", s.Reason, s.Err),
		})
	}
	return metas, summary, nil
}

// MapItems runs the pipeline through item mapping.
func (p *Pipeline) MapItems(ctx context.Context) ([]model.Item, *Summary, error) {
	metas, summary, err := p.ExtractMetadata(ctx)
	if err != nil {
		return nil, nil, err
	}

	items, skipped := p.mapper.MapItems(metas)
	summary.Mapped = len(items)
	observability.ObserveMapped(p.cfg.ID, len(items))
	for _, s := range skipped {
		for _, path := range s.Paths {
			summary.Skipped = append(summary.Skipped, SkipRecord{
				Path:   path,
				Stage:  "map",
				Reason: s.Err.Error(),
			})
			observability.ObserveSkipped(p.cfg.ID, "mapping")
		}
	}
	return items, summary, nil
}

// Build assembles a single collection from all mapped items and
// persists it through the catalog store.
func (p *Pipeline) Build(ctx context.Context, cat *store.Catalog, overwrite bool) (*Summary, error) {
	items, summary, err := p.MapItems(ctx)
	if err != nil {
		return nil, err
	}

	if overwrite {
		if err := cat.Clear(ctx, ""); err != nil {
			return summary, err
		}
	}

	err = p.writeCollection(ctx, cat, "", p.cfg.ID, items)
	observability.ObserveCollectionBuilt(p.cfg.ID, err)
	if err != nil {
		return summary, err
	}
	p.log.Info("collection built",
		"collection", p.cfg.ID,
		"collected", summary.Collected,
		"extracted", summary.Extracted,
		"mapped", summary.Mapped,
		"skipped", len(summary.Skipped))
	return summary, nil
}

// BuildGrouped partitions mapped items and builds one sub-collection
// per group. Each group is assembled independently: a failure in one is
// recorded in its GroupResult and does not block the siblings.
func (p *Pipeline) BuildGrouped(ctx context.Context, cat *store.Catalog, overwrite bool) (*Summary, error) {
	items, summary, err := p.MapItems(ctx)
	if err != nil {
		return nil, err
	}

	strategyName, attribute := "by-year", ""
	if p.cfg.Grouping != nil {
		strategyName = p.cfg.Grouping.Strategy
		attribute = p.cfg.Grouping.Attribute
	}
	strategy, err := group.New(strategyName, attribute)
	if err != nil {
		return summary, err
	}

	part := group.Split(items, strategy)
	summary.Ungrouped = len(part.Ungrouped)
	for _, item := range part.Ungrouped {
		p.log.Warn("item has no group key", "item", item.ID, "strategy", strategyName)
	}

	if overwrite {
		if err := cat.Clear(ctx, ""); err != nil {
			return summary, err
		}
	}

	for _, key := range part.Keys {
		members := part.Groups[key]
		id := fmt.Sprintf("%s-%s", p.cfg.ID, key)
		result := GroupResult{Key: key, ID: id, Items: len(members)}

		err := p.writeCollection(ctx, cat, id+"/", id, members)
		observability.ObserveCollectionBuilt(id, err)
		if err != nil {
			result.Err = err.Error()
			p.log.Error("group build failed", "group", string(key), "err", err.Error())
		}
		summary.Groups = append(summary.Groups, result)
	}
	return summary, nil
}

func (p *Pipeline) writeCollection(ctx context.Context, cat *store.Catalog, prefix, id string, items []model.Item) error {
	col, err := assemble.Build(p.cfg, id, items)
	if err != nil {
		return err
	}
	doc, err := store.EncodeCollection(col, p.cfg.ItemLayout)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", id, err)
	}
	doc, err = assemble.ApplyOverrides(doc, p.cfg.Overrides)
	if err != nil {
		return err
	}
	return cat.WriteCollection(ctx, prefix, doc, col, p.cfg.ItemLayout)
}

// PostProcess re-applies the configured overrides to an already-built
// collection document without re-running extraction. The patched
// document is written to dst (which may equal src).
func PostProcess(ctx context.Context, src, dst *store.Catalog, key string, cfg *config.CollectionConfig) error {
	_, doc, err := src.LoadCollection(ctx, key)
	if err != nil {
		return err
	}
	doc, err = assemble.ApplyOverrides(doc, cfg.Overrides)
	if err != nil {
		return err
	}
	return dst.WriteDocument(ctx, key, doc)
}
