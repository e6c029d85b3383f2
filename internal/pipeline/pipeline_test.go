package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"github.com/example/stacforge/internal/core/config"
	"github.com/example/stacforge/internal/core/model"
	"github.com/example/stacforge/internal/raster"
	"github.com/example/stacforge/internal/store"
)

// fakeReader serves canned raster info by base name. Paths absent from
// the map read as corrupt files.
type fakeReader struct {
	infos map[string]raster.Info
}

func (r *fakeReader) Read(_ context.Context, path string) (*raster.Info, error) {
	in, ok := r.infos[filepath.Base(path)]
	if !ok {
		return nil, &raster.ReadError{Path: path, Err: errors.New("unreadable header")}
	}
	return &in, nil
}

func tifInfo(x1, y1 float64) raster.Info {
	return raster.Info{
		BBox:   model.BBox{X1: x1, Y1: y1, X2: x1 + 1, Y2: y1 + 1, EPSG: 4326},
		EPSG:   4326,
		Width:  100,
		Height: 100,
		Bands:  []model.Band{{Name: "b1", DataType: "uint16"}},
	}
}

func archiveDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func testConfig() *config.CollectionConfig {
	cfg := &config.CollectionConfig{
		ID:          "scenes",
		Title:       "Test Scenes",
		Description: "Synthetic archive",
		License:     "proprietary",
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func memCatalog(t *testing.T) *store.Catalog {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { _ = bucket.Close() })
	return store.NewCatalog(bucket)
}

func TestBuild_SingleCollection(t *testing.T) {
	dir := archiveDir(t, "tileA_2020.tif", "tileB_2021.tif")
	reader := &fakeReader{infos: map[string]raster.Info{
		"tileA_2020.tif": tifInfo(4, 50),
		"tileB_2021.tif": tifInfo(5, 51),
	}}

	p, err := New(Options{
		Config: testConfig(),
		Files:  config.FileConfig{InputDir: dir, Glob: "*.tif", MaxFiles: -1},
		Reader: reader,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cat := memCatalog(t)
	summary, err := p.Build(context.Background(), cat, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if summary.Collected != 2 || summary.Extracted != 2 || summary.Mapped != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Skipped) != 0 {
		t.Fatalf("skipped = %+v", summary.Skipped)
	}

	doc, err := cat.ReadDocument(context.Background(), store.CollectionKey)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if got := gjson.GetBytes(doc, "id").String(); got != "scenes" {
		t.Fatalf("id = %q", got)
	}
	// Tight extent over both tiles.
	bbox := gjson.GetBytes(doc, "extent.spatial.bbox.0").Array()
	want := []float64{4, 50, 6, 52}
	for i, v := range bbox {
		if v.Float() != want[i] {
			t.Fatalf("extent bbox = %v, want %v", bbox, want)
		}
	}
	if got := gjson.GetBytes(doc, "extent.temporal.interval.0.0").String(); !strings.HasPrefix(got, "2020-01-01") {
		t.Fatalf("temporal start = %q", got)
	}
	if got := gjson.GetBytes(doc, "extent.temporal.interval.0.1").String(); !strings.HasPrefix(got, "2021-01-01") {
		t.Fatalf("temporal end = %q", got)
	}

	// Items land under the default layout and link back from the
	// collection document.
	itemKey := "scenes/2020/tileA_20200101.json"
	itemDoc, err := cat.ReadDocument(context.Background(), itemKey)
	if err != nil {
		t.Fatalf("item document: %v", err)
	}
	if got := gjson.GetBytes(itemDoc, "collection").String(); got != "scenes" {
		t.Fatalf("item collection = %q", got)
	}
	links := gjson.GetBytes(doc, `links.#(rel=="item")#.href`).Array()
	if len(links) != 2 {
		t.Fatalf("item links = %v", links)
	}
}

func TestBuild_CorruptFileIsReportedNotFatal(t *testing.T) {
	dir := archiveDir(t, "corrupt_2020.tif", "tileA_2020.tif")
	reader := &fakeReader{infos: map[string]raster.Info{
		"tileA_2020.tif": tifInfo(4, 50),
	}}

	p, err := New(Options{
		Config: testConfig(),
		Files:  config.FileConfig{InputDir: dir, Glob: "*.tif", MaxFiles: -1},
		Reader: reader,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	summary, err := p.Build(context.Background(), memCatalog(t), false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if summary.Collected != 2 || summary.Extracted != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Skipped) != 1 {
		t.Fatalf("skipped = %+v", summary.Skipped)
	}
	s := summary.Skipped[0]
	if filepath.Base(s.Path) != "corrupt_2020.tif" || s.Stage != "extract" {
		t.Fatalf("skip record = %+v", s)
	}
}

func TestBuild_Overwrite(t *testing.T) {
	dir := archiveDir(t, "tileA_2020.tif")
	reader := &fakeReader{infos: map[string]raster.Info{"tileA_2020.tif": tifInfo(4, 50)}}

	p, err := New(Options{
		Config: testConfig(),
		Files:  config.FileConfig{InputDir: dir, Glob: "*.tif", MaxFiles: -1},
		Reader: reader,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	cat := memCatalog(t)
	if err := cat.WriteDocument(ctx, "stale/collection.json", []byte("{}")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := p.Build(ctx, cat, true); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ok, _ := cat.Exists(ctx, "stale/"); ok {
		t.Fatalf("overwrite did not clear the previous output")
	}
	if ok, _ := cat.Exists(ctx, store.CollectionKey); !ok {
		t.Fatalf("rebuilt collection missing")
	}
}

func TestBuildGrouped_ByYear(t *testing.T) {
	dir := archiveDir(t, "tileA_2020.tif", "tileB_2021.tif", "tileC_2020.tif")
	reader := &fakeReader{infos: map[string]raster.Info{
		"tileA_2020.tif": tifInfo(4, 50),
		"tileB_2021.tif": tifInfo(5, 51),
		"tileC_2020.tif": tifInfo(6, 52),
	}}

	cfg := testConfig()
	cfg.Grouping = &config.GroupingConfig{Strategy: "by-year"}
	p, err := New(Options{
		Config: cfg,
		Files:  config.FileConfig{InputDir: dir, Glob: "*.tif", MaxFiles: -1},
		Reader: reader,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	cat := memCatalog(t)
	summary, err := p.BuildGrouped(ctx, cat, false)
	if err != nil {
		t.Fatalf("BuildGrouped: %v", err)
	}

	if len(summary.Groups) != 2 {
		t.Fatalf("groups = %+v", summary.Groups)
	}
	byKey := map[model.GroupKey]GroupResult{}
	for _, g := range summary.Groups {
		if g.Err != "" {
			t.Fatalf("group %s failed: %s", g.Key, g.Err)
		}
		byKey[g.Key] = g
	}
	if byKey["2020"].Items != 2 || byKey["2021"].Items != 1 {
		t.Fatalf("group sizes = %+v", byKey)
	}

	// Each group gets its own collection document with a tight extent
	// over only its members.
	doc2021, err := cat.ReadDocument(ctx, "scenes-2021/collection.json")
	if err != nil {
		t.Fatalf("2021 collection: %v", err)
	}
	if got := gjson.GetBytes(doc2021, "id").String(); got != "scenes-2021" {
		t.Fatalf("id = %q", got)
	}
	bbox := gjson.GetBytes(doc2021, "extent.spatial.bbox.0").Array()
	want := []float64{5, 51, 6, 52}
	for i, v := range bbox {
		if v.Float() != want[i] {
			t.Fatalf("2021 extent = %v, want %v", bbox, want)
		}
	}

	keys, err := cat.ListCollections(ctx)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("collections = %v", keys)
	}
}

func TestBuild_OverridesWin(t *testing.T) {
	dir := archiveDir(t, "tileA_2020.tif")
	reader := &fakeReader{infos: map[string]raster.Info{"tileA_2020.tif": tifInfo(4, 50)}}

	cfg := testConfig()
	cfg.Overrides = map[string]any{
		"title":        "Patched Title",
		"sci:citation": "Doe et al. 2020",
	}
	p, err := New(Options{
		Config: cfg,
		Files:  config.FileConfig{InputDir: dir, Glob: "*.tif", MaxFiles: -1},
		Reader: reader,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	cat := memCatalog(t)
	if _, err := p.Build(ctx, cat, false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	doc, err := cat.ReadDocument(ctx, store.CollectionKey)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if got := gjson.GetBytes(doc, "title").String(); got != "Patched Title" {
		t.Fatalf("title = %q", got)
	}
	if got := gjson.GetBytes(doc, "sci:citation").String(); got != "Doe et al. 2020" {
		t.Fatalf("sci:citation = %q", got)
	}
}

func TestPostProcess_Idempotent(t *testing.T) {
	dir := archiveDir(t, "tileA_2020.tif")
	reader := &fakeReader{infos: map[string]raster.Info{"tileA_2020.tif": tifInfo(4, 50)}}

	cfg := testConfig()
	p, err := New(Options{
		Config: cfg,
		Files:  config.FileConfig{InputDir: dir, Glob: "*.tif", MaxFiles: -1},
		Reader: reader,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	cat := memCatalog(t)
	if _, err := p.Build(ctx, cat, false); err != nil {
		t.Fatalf("Build: %v", err)
	}

	cfg.Overrides = map[string]any{"license": "CC-BY-4.0"}
	if err := PostProcess(ctx, cat, cat, store.CollectionKey, cfg); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	once, err := cat.ReadDocument(ctx, store.CollectionKey)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if got := gjson.GetBytes(once, "license").String(); got != "CC-BY-4.0" {
		t.Fatalf("license = %q", got)
	}

	if err := PostProcess(ctx, cat, cat, store.CollectionKey, cfg); err != nil {
		t.Fatalf("second PostProcess: %v", err)
	}
	twice, err := cat.ReadDocument(ctx, store.CollectionKey)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if !bytes.Equal(once, twice) {
		t.Fatalf("postprocess is not idempotent")
	}
}

func TestParserSalt(t *testing.T) {
	if parserSalt(nil) != "default" {
		t.Fatalf("nil config salt = %q", parserSalt(nil))
	}
	a := parserSalt(&config.PathParserConfig{Name: "delimited"})
	b := parserSalt(&config.PathParserConfig{Name: "regex", Parameters: map[string]any{"pattern": "x"}})
	if a == b {
		t.Fatalf("different parser configs share a salt")
	}
	if a != parserSalt(&config.PathParserConfig{Name: "delimited"}) {
		t.Fatalf("salt is not deterministic")
	}
}

func TestMapItems_MergesBandFiles(t *testing.T) {
	dir := archiveDir(t, "tileA_2020_B04.tif", "tileA_2020_B08.tif")
	reader := &fakeReader{infos: map[string]raster.Info{
		"tileA_2020_B04.tif": tifInfo(4, 50),
		"tileA_2020_B08.tif": tifInfo(4, 50),
	}}

	p, err := New(Options{
		Config: testConfig(),
		Files:  config.FileConfig{InputDir: dir, Glob: "*.tif", MaxFiles: -1},
		Reader: reader,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	items, summary, err := p.MapItems(context.Background())
	if err != nil {
		t.Fatalf("MapItems: %v", err)
	}
	if summary.Collected != 2 || summary.Mapped != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(items) != 1 || len(items[0].Assets) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if !items[0].Datetime.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("datetime = %v", items[0].Datetime)
	}
}
