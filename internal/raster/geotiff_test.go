package raster

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// tiffEntry is one IFD record with its full value bytes. The builder
// decides whether the value is stored inline or through an offset.
type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shorts(bo binary.ByteOrder, vals ...uint16) []byte {
	buf := make([]byte, 2*len(vals))
	for i, v := range vals {
		bo.PutUint16(buf[i*2:], v)
	}
	return buf
}

func doubles(bo binary.ByteOrder, vals ...float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		bo.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func ascii(s string) []byte {
	return append([]byte(s), 0)
}

func buildTIFF(t *testing.T, bo binary.ByteOrder, entries []tiffEntry) []byte {
	t.Helper()
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	n := len(entries)
	const ifdStart = 8
	dataStart := ifdStart + 2 + n*12 + 4

	var out bytes.Buffer
	if bo == binary.LittleEndian {
		out.WriteString("II")
	} else {
		out.WriteString("MM")
	}
	hdr := make([]byte, 6)
	bo.PutUint16(hdr[0:2], 42)
	bo.PutUint32(hdr[2:6], ifdStart)
	out.Write(hdr)

	cnt := make([]byte, 2)
	bo.PutUint16(cnt, uint16(n))
	out.Write(cnt)

	var overflow []byte
	for _, e := range entries {
		rec := make([]byte, 12)
		bo.PutUint16(rec[0:2], e.tag)
		bo.PutUint16(rec[2:4], e.typ)
		bo.PutUint32(rec[4:8], e.count)
		if len(e.data) <= 4 {
			copy(rec[8:12], e.data)
		} else {
			bo.PutUint32(rec[8:12], uint32(dataStart+len(overflow)))
			overflow = append(overflow, e.data...)
		}
		out.Write(rec)
	}
	out.Write([]byte{0, 0, 0, 0}) // no next IFD
	out.Write(overflow)
	return out.Bytes()
}

func writeTIFF(t *testing.T, bo binary.ByteOrder, entries []tiffEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.tif")
	if err := os.WriteFile(path, buildTIFF(t, bo, entries), 0o644); err != nil {
		t.Fatalf("write tiff: %v", err)
	}
	return path
}

const (
	typeShort  = 3
	typeASCII  = 2
	typeDouble = 12
)

func utmScene(bo binary.ByteOrder) []tiffEntry {
	datetime := ascii("2020:06:15 10:30:00")
	nodata := ascii("-9999")
	geokeys := shorts(bo,
		1, 1, 0, 1, // directory header, one key follows
		3072, 0, 1, 32735, // ProjectedCSType = UTM 35S
	)
	return []tiffEntry{
		{tag: tagImageWidth, typ: typeShort, count: 1, data: shorts(bo, 100)},
		{tag: tagImageLength, typ: typeShort, count: 1, data: shorts(bo, 200)},
		{tag: tagBitsPerSample, typ: typeShort, count: 2, data: shorts(bo, 16, 16)},
		{tag: tagSamplesPerPixel, typ: typeShort, count: 1, data: shorts(bo, 2)},
		{tag: tagSampleFormat, typ: typeShort, count: 2, data: shorts(bo, 2, 2)},
		{tag: tagDateTime, typ: typeASCII, count: uint32(len(datetime)), data: datetime},
		{tag: tagGDALNoData, typ: typeASCII, count: uint32(len(nodata)), data: nodata},
		{tag: tagModelPixelScale, typ: typeDouble, count: 3, data: doubles(bo, 10, 10, 0)},
		{tag: tagModelTiepoint, typ: typeDouble, count: 6, data: doubles(bo, 0, 0, 0, 500000, 6400000, 0)},
		{tag: tagGeoKeyDirectory, typ: typeShort, count: 8, data: geokeys},
	}
}

func TestGeoTIFF_Read(t *testing.T) {
	for _, tc := range []struct {
		name string
		bo   binary.ByteOrder
	}{
		{"little-endian", binary.LittleEndian},
		{"big-endian", binary.BigEndian},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTIFF(t, tc.bo, utmScene(tc.bo))

			info, err := NewGeoTIFF().Read(context.Background(), path)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if info.Width != 100 || info.Height != 200 {
				t.Fatalf("dimensions = %dx%d, want 100x200", info.Width, info.Height)
			}
			if info.EPSG != 32735 {
				t.Fatalf("EPSG = %d, want 32735", info.EPSG)
			}
			bb := info.BBox
			if bb.X1 != 500000 || bb.X2 != 501000 || bb.Y1 != 6398000 || bb.Y2 != 6400000 {
				t.Fatalf("bbox = %v", bb)
			}
			if bb.EPSG != 32735 {
				t.Fatalf("bbox EPSG = %d", bb.EPSG)
			}

			if len(info.Bands) != 2 {
				t.Fatalf("bands = %d, want 2", len(info.Bands))
			}
			for i, b := range info.Bands {
				if b.DataType != "int16" {
					t.Fatalf("band %d data type = %q, want int16", i, b.DataType)
				}
				if b.NoData == nil || *b.NoData != -9999 {
					t.Fatalf("band %d nodata = %v, want -9999", i, b.NoData)
				}
			}

			if info.Timestamp == nil {
				t.Fatalf("missing embedded timestamp")
			}
			if got := info.Timestamp.Format("2006-01-02T15:04:05Z"); got != "2020-06-15T10:30:00Z" {
				t.Fatalf("timestamp = %s", got)
			}
		})
	}
}

func TestGeoTIFF_GeographicKey(t *testing.T) {
	bo := binary.LittleEndian
	entries := utmScene(bo)
	for i := range entries {
		if entries[i].tag == tagGeoKeyDirectory {
			entries[i].data = shorts(bo, 1, 1, 0, 1, 2048, 0, 1, 4326)
		}
	}
	path := writeTIFF(t, bo, entries)

	info, err := NewGeoTIFF().Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if info.EPSG != 4326 {
		t.Fatalf("EPSG = %d, want 4326", info.EPSG)
	}
}

func TestGeoTIFF_NotATIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.tif")
	if err := os.WriteFile(path, []byte("definitely not a tiff"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := NewGeoTIFF().Read(context.Background(), path)
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *ReadError", err)
	}
	if re.Path != path {
		t.Fatalf("Path = %q, want %q", re.Path, path)
	}
}

func TestGeoTIFF_MissingFile(t *testing.T) {
	_, err := NewGeoTIFF().Read(context.Background(), filepath.Join(t.TempDir(), "nope.tif"))
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *ReadError", err)
	}
}

func TestGeoTIFF_OversizedValueCount(t *testing.T) {
	bo := binary.LittleEndian
	entries := utmScene(bo)
	for i := range entries {
		if entries[i].tag == tagModelPixelScale {
			// Count claims gigabytes of doubles that the file cannot hold.
			entries[i].count = math.MaxUint32 / 2
		}
	}
	path := writeTIFF(t, bo, entries)

	_, err := NewGeoTIFF().Read(context.Background(), path)
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *ReadError", err)
	}
}

func TestGeoTIFF_NoGeotransform(t *testing.T) {
	bo := binary.LittleEndian
	entries := []tiffEntry{
		{tag: tagImageWidth, typ: typeShort, count: 1, data: shorts(bo, 10)},
		{tag: tagImageLength, typ: typeShort, count: 1, data: shorts(bo, 10)},
	}
	path := writeTIFF(t, bo, entries)

	_, err := NewGeoTIFF().Read(context.Background(), path)
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *ReadError", err)
	}
}
