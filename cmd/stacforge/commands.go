package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/stacforge/internal/core/config"
	"github.com/example/stacforge/internal/export"
	"github.com/example/stacforge/internal/metacache"
	"github.com/example/stacforge/internal/pipeline"
	"github.com/example/stacforge/internal/store"
)

// pipelineFlags are the flags shared by every command that runs the
// extraction pipeline.
type pipelineFlags struct {
	inputDir   string
	glob       string
	maxFiles   int
	configPath string
	tablePath  string
}

func (pf *pipelineFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&pf.inputDir, "in", "", "input directory with raster files")
	fs.StringVar(&pf.glob, "glob", "*", "glob pattern for selecting files, e.g. */*.tif")
	fs.IntVar(&pf.maxFiles, "max-files", -1, "stop after this many files (negative = unbounded)")
	fs.StringVar(&pf.configPath, "config", "", "collection configuration file")
	fs.StringVar(&pf.tablePath, "table", "", "also save a .geojson or .csv table for inspection")
}

func (pf *pipelineFlags) newPipeline(cfg config.Config, log *slog.Logger) (*pipeline.Pipeline, error) {
	if pf.inputDir == "" {
		return nil, fmt.Errorf("-in is required")
	}
	if pf.configPath == "" {
		return nil, fmt.Errorf("-config is required")
	}
	collectionCfg, err := config.LoadCollectionConfig(pf.configPath)
	if err != nil {
		return nil, err
	}

	cache, err := openCache(cfg, log)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Options{
		Config: collectionCfg,
		Files: config.FileConfig{
			InputDir: pf.inputDir,
			Glob:     pf.glob,
			MaxFiles: pf.maxFiles,
		},
		Cache:    cache,
		CacheTTL: cfg.CacheTTL,
		Workers:  cfg.Workers,
		Log:      log,
	})
}

func openCache(cfg config.Config, log *slog.Logger) (metacache.Interface, error) {
	switch cfg.CacheDriver {
	case "", "none":
		return nil, nil
	case "memory":
		return metacache.NewMemory(cfg.CacheSize)
	case "redis":
		cache, err := metacache.NewRedis(context.Background(), cfg.RedisAddr)
		if err != nil {
			// A down cache should not block a build.
			log.Warn("redis cache unavailable, continuing without", "addr", cfg.RedisAddr, "err", err.Error())
			return nil, nil
		}
		return cache, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.CacheDriver)
	}
}

func runListFiles(_ context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("list-files", flag.ExitOnError)
	var pf pipelineFlags
	pf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if pf.inputDir == "" {
		return fmt.Errorf("-in is required")
	}

	collector, err := pipelineForListing(pf, cfg, log)
	if err != nil {
		return err
	}
	paths, err := collector.CollectFiles()
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	log.Info("files listed", "count", len(paths))
	return nil
}

// pipelineForListing builds a pipeline even without a configuration
// file, so list-files works before any collection config exists.
func pipelineForListing(pf pipelineFlags, cfg config.Config, log *slog.Logger) (*pipeline.Pipeline, error) {
	if pf.configPath != "" {
		return pf.newPipeline(cfg, log)
	}
	return pipeline.New(pipeline.Options{
		Config: &config.CollectionConfig{
			ID:          "listing",
			Title:       "listing",
			Description: "listing",
		},
		Files: config.FileConfig{
			InputDir: pf.inputDir,
			Glob:     pf.glob,
			MaxFiles: pf.maxFiles,
		},
		Workers: cfg.Workers,
		Log:     log,
	})
}

func runListMetadata(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("list-metadata", flag.ExitOnError)
	var pf pipelineFlags
	pf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := pf.newPipeline(cfg, log)
	if err != nil {
		return err
	}

	metas, summary, err := p.ExtractMetadata(ctx)
	if err != nil {
		return err
	}
	printJSON(metas)
	printSummary(summary)

	if pf.tablePath != "" {
		data, err := export.MetadataGeoJSON(metas)
		if err != nil {
			return err
		}
		if err := writeTable(pf.tablePath, data, func(f *os.File) error {
			return export.MetadataCSV(f, metas)
		}); err != nil {
			return err
		}
		log.Info("table saved", "path", pf.tablePath)
	}
	return nil
}

func runListItems(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("list-items", flag.ExitOnError)
	var pf pipelineFlags
	pf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := pf.newPipeline(cfg, log)
	if err != nil {
		return err
	}

	items, summary, err := p.MapItems(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		doc, err := store.EncodeItem(item)
		if err != nil {
			return err
		}
		fmt.Println(string(doc))
	}
	printSummary(summary)

	if pf.tablePath != "" {
		data, err := export.ItemsGeoJSON(items)
		if err != nil {
			return err
		}
		if err := writeTable(pf.tablePath, data, func(f *os.File) error {
			return export.ItemsCSV(f, items)
		}); err != nil {
			return err
		}
		log.Info("table saved", "path", pf.tablePath)
	}
	return nil
}

func runBuild(ctx context.Context, cfg config.Config, log *slog.Logger, args []string, grouped bool) error {
	name := "build"
	if grouped {
		name = "build-grouped"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	var pf pipelineFlags
	pf.register(fs)
	outDir := fs.String("out", "", "output directory or bucket URL")
	overwrite := fs.Bool("overwrite", false, "replace existing output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outDir == "" {
		return fmt.Errorf("-out is required")
	}

	p, err := pf.newPipeline(cfg, log)
	if err != nil {
		return err
	}

	cat, err := store.Open(ctx, bucketURL(*outDir))
	if err != nil {
		return err
	}
	defer cat.Close()

	var summary *pipeline.Summary
	if grouped {
		summary, err = p.BuildGrouped(ctx, cat, *overwrite)
	} else {
		summary, err = p.Build(ctx, cat, *overwrite)
	}
	if summary != nil {
		printSummary(summary)
	}
	return err
}

func runPostProcess(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("postprocess", flag.ExitOnError)
	configPath := fs.String("config", "", "collection configuration file")
	key := fs.String("key", store.CollectionKey, "collection document key inside the catalog")
	outDir := fs.String("out", "", "optional separate output directory or bucket URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("postprocess needs exactly one catalog directory or bucket URL")
	}
	if *configPath == "" {
		return fmt.Errorf("-config is required")
	}
	collectionCfg, err := config.LoadCollectionConfig(*configPath)
	if err != nil {
		return err
	}

	src, err := store.Open(ctx, bucketURL(fs.Arg(0)))
	if err != nil {
		return err
	}
	defer src.Close()

	dst := src
	if *outDir != "" {
		dst, err = store.Open(ctx, bucketURL(*outDir))
		if err != nil {
			return err
		}
		defer dst.Close()
	}

	if err := pipeline.PostProcess(ctx, src, dst, *key, collectionCfg); err != nil {
		return err
	}
	log.Info("overrides applied", "key", *key, "overrides", len(collectionCfg.Overrides))
	return nil
}

func runShow(ctx context.Context, _ config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	key := fs.String("key", store.CollectionKey, "collection document key inside the catalog")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("show needs exactly one catalog directory or bucket URL")
	}

	cat, err := store.Open(ctx, bucketURL(fs.Arg(0)))
	if err != nil {
		return err
	}
	defer cat.Close()

	col, doc, err := cat.LoadCollection(ctx, *key)
	if err != nil {
		return err
	}
	fmt.Println(string(doc))
	log.Info("collection loaded",
		"id", col.ID,
		"spatial_extent", col.Extent.Spatial.String(),
		"temporal_start", col.Extent.Temporal.Start,
		"temporal_end", col.Extent.Temporal.End)
	return nil
}

// bucketURL turns a plain directory path into a fileblob URL; anything
// already carrying a scheme passes through.
func bucketURL(target string) string {
	if strings.Contains(target, "://") {
		return target
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}
	return "file://" + filepath.ToSlash(abs) + "?create_dir=true"
}

func writeTable(path string, geojson []byte, csvWrite func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create table %s: %w", path, err)
	}
	defer f.Close()

	if strings.HasSuffix(path, ".csv") {
		return csvWrite(f)
	}
	_, err = f.Write(geojson)
	return err
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printSummary(s *pipeline.Summary) {
	fmt.Fprintf(os.Stderr, "collected=%d extracted=%d mapped=%d skipped=%d\n",
		s.Collected, s.Extracted, s.Mapped, len(s.Skipped))
	for _, skip := range s.Skipped {
		fmt.Fprintf(os.Stderr, "  skipped %s (%s): %s\n", skip.Path, skip.Stage, skip.Reason)
	}
	for _, g := range s.Groups {
		status := fmt.Sprintf("%d items", g.Items)
		if g.Err != "" {
			status = "failed: " + g.Err
		}
		fmt.Fprintf(os.Stderr, "  group %s -> %s (%s)\n", g.Key, g.ID, status)
	}
	if s.Ungrouped > 0 {
		fmt.Fprintf(os.Stderr, "  ungrouped items: %d\n", s.Ungrouped)
	}
}
