// Package extract turns raster files into asset metadata records.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/stacforge/internal/core/model"
	"github.com/example/stacforge/internal/metacache"
	"github.com/example/stacforge/internal/observability"
	"github.com/example/stacforge/internal/pathparse"
	"github.com/example/stacforge/internal/proj"
	"github.com/example/stacforge/internal/raster"
)

// Skip reasons reported in build summaries and metrics.
const (
	ReasonParse     = "parse"
	ReasonRead      = "raster-read"
	ReasonReproject = "reproject"
)

// Skip records one file excluded from the batch and why.
type Skip struct {
	Path   string
	Reason string
	Err    error
}

// Extractor reads raster headers, combines them with path-parsed fields
// and produces one AssetMetadata per file.
type Extractor struct {
	Reader raster.Reader
	Parser pathparse.Parser

	// Cache is optional. CacheSalt must change whenever the parser
	// configuration changes, so stale field sets are never served.
	Cache     metacache.Interface
	CacheTTL  time.Duration
	CacheSalt string

	// Workers bounds extraction concurrency. Values below 1 mean serial.
	Workers int

	Collection string
	Log        *slog.Logger
}

// ExtractAll processes every path, in bounded parallel, and returns the
// successful records in input order together with the skipped files.
// Per-file failures never abort the batch; only context cancellation is
// returned as an error.
func (e *Extractor) ExtractAll(ctx context.Context, paths []string) ([]model.AssetMetadata, []Skip, error) {
	log := e.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	workers := e.Workers
	if workers < 1 {
		workers = 1
	}

	type slot struct {
		meta *model.AssetMetadata
		skip *Skip
	}
	// Results are keyed by input index so identifier assignment stays
	// deterministic regardless of completion order.
	slots := make([]slot, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			meta, skip := e.extractOne(gctx, path)
			slots[i] = slot{meta: meta, skip: skip}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	metas := make([]model.AssetMetadata, 0, len(paths))
	var skipped []Skip
	for _, s := range slots {
		switch {
		case s.meta != nil:
			metas = append(metas, *s.meta)
			observability.ObserveExtracted(e.Collection)
		case s.skip != nil:
			skipped = append(skipped, *s.skip)
			observability.ObserveSkipped(e.Collection, s.skip.Reason)
			log.Warn("file skipped",
				"path", s.skip.Path,
				"reason", s.skip.Reason,
				"err", s.skip.Err.Error())
		}
	}
	return metas, skipped, nil
}

func (e *Extractor) extractOne(ctx context.Context, path string) (*model.AssetMetadata, *Skip) {
	fields, err := e.Parser.Parse(path)
	if err != nil {
		return nil, &Skip{Path: path, Reason: ReasonParse, Err: err}
	}

	if meta, ok := e.cachedMeta(ctx, path); ok {
		meta.Fields = fields
		applyFields(meta, fields)
		return meta, nil
	}

	info, err := e.Reader.Read(ctx, path)
	if err != nil {
		return nil, &Skip{Path: path, Reason: ReasonRead, Err: err}
	}

	wgs84, err := proj.ToWGS84(info.BBox)
	if err != nil {
		return nil, &Skip{Path: path, Reason: ReasonReproject, Err: err}
	}

	meta := &model.AssetMetadata{
		Path:   path,
		Fields: fields,
		Native: info.BBox,
		WGS84:  wgs84,
		EPSG:   info.EPSG,
		Width:  info.Width,
		Height: info.Height,
		Bands:  info.Bands,
	}
	if info.Timestamp != nil {
		meta.Datetime = *info.Timestamp
	}
	applyFields(meta, fields)

	e.storeMeta(ctx, path, meta)
	return meta, nil
}

// applyFields derives the item key, asset role and datetime from the
// parsed path fields. A date parsed from the path wins over a timestamp
// embedded in the file, matching how raster archives are usually named.
func applyFields(meta *model.AssetMetadata, fields pathparse.Fields) {
	if raw, ok := fields[pathparse.FieldDate]; ok {
		if ts, err := time.Parse(pathparse.NormalizedDateLayout, raw); err == nil {
			meta.Datetime = ts.UTC()
		}
	}

	meta.AssetRole = fields[pathparse.FieldBand]
	if meta.AssetRole == "" {
		meta.AssetRole = "data"
	}

	if tile := fields[pathparse.FieldTile]; tile != "" {
		meta.ItemKey = tile
		if !meta.Datetime.IsZero() {
			meta.ItemKey = tile + "_" + meta.Datetime.UTC().Format("20060102")
		}
	}
}

func (e *Extractor) cachedMeta(ctx context.Context, path string) (*model.AssetMetadata, bool) {
	if e.Cache == nil {
		return nil, false
	}
	key, err := e.cacheKey(path)
	if err != nil {
		return nil, false
	}
	raw, ok, err := e.Cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var meta model.AssetMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, false
	}
	return &meta, true
}

func (e *Extractor) storeMeta(ctx context.Context, path string, meta *model.AssetMetadata) {
	if e.Cache == nil {
		return
	}
	key, err := e.cacheKey(path)
	if err != nil {
		return
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := e.Cache.Put(ctx, key, raw, e.CacheTTL); err != nil && e.Log != nil {
		e.Log.Debug("metadata cache put failed", "path", path, "err", err.Error())
	}
}

func (e *Extractor) cacheKey(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return metacache.Key(e.CacheSalt+"|"+path, fi.Size(), fi.ModTime()), nil
}

// IsReadError reports whether a skip was caused by an unreadable or
// ungeoreferenced raster, as opposed to an unparseable path.
func IsReadError(err error) bool {
	var re *raster.ReadError
	return errors.As(err, &re)
}
