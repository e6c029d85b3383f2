package raster

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/stacforge/internal/core/model"
)

// TIFF tags used for georeferencing. See the GeoTIFF 1.1 spec and the
// TIFF 6.0 baseline.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagSamplesPerPixel = 277
	tagDateTime        = 306
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113
)

// GeoKey IDs inside the GeoKeyDirectory.
const (
	geoKeyGeographicType = 2048
	geoKeyProjectedCS    = 3072
)

const tiffDateTimeLayout = "2006:01:02 15:04:05"

// GeoTIFF reads georeferencing metadata from GeoTIFF headers.
type GeoTIFF struct{}

func NewGeoTIFF() *GeoTIFF { return &GeoTIFF{} }

func (g *GeoTIFF) Read(ctx context.Context, path string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := readHeader(f)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	return info, nil
}

type ifdEntry struct {
	tag      uint16
	typ      uint16
	count    uint32
	rawValue [4]byte
}

type tiffFile struct {
	f    *os.File
	bo   binary.ByteOrder
	size int64
}

func readHeader(f *os.File) (*Info, error) {
	var hdr [8]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("short header: %w", err)
	}

	var bo binary.ByteOrder
	switch {
	case hdr[0] == 'I' && hdr[1] == 'I':
		bo = binary.LittleEndian
	case hdr[0] == 'M' && hdr[1] == 'M':
		bo = binary.BigEndian
	default:
		return nil, errors.New("not a TIFF file")
	}
	if bo.Uint16(hdr[2:4]) != 42 {
		return nil, errors.New("bad TIFF magic number")
	}

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}

	tf := &tiffFile{f: f, bo: bo, size: st.Size()}
	entries, err := tf.readIFD(int64(bo.Uint32(hdr[4:8])))
	if err != nil {
		return nil, err
	}

	info := &Info{Width: 0, Height: 0}
	samples := 1
	var bits []uint64
	var formats []uint64
	var nodata *float64
	var pixelScale, tiepoint []float64

	for _, e := range entries {
		switch e.tag {
		case tagImageWidth:
			v, err := tf.uintValues(e)
			if err != nil {
				return nil, err
			}
			info.Width = int(v[0])
		case tagImageLength:
			v, err := tf.uintValues(e)
			if err != nil {
				return nil, err
			}
			info.Height = int(v[0])
		case tagSamplesPerPixel:
			v, err := tf.uintValues(e)
			if err != nil {
				return nil, err
			}
			samples = int(v[0])
		case tagBitsPerSample:
			if bits, err = tf.uintValues(e); err != nil {
				return nil, err
			}
		case tagSampleFormat:
			if formats, err = tf.uintValues(e); err != nil {
				return nil, err
			}
		case tagDateTime:
			s, err := tf.asciiValue(e)
			if err != nil {
				return nil, err
			}
			if ts, err := time.Parse(tiffDateTimeLayout, s); err == nil {
				utc := ts.UTC()
				info.Timestamp = &utc
			}
		case tagGDALNoData:
			s, err := tf.asciiValue(e)
			if err != nil {
				return nil, err
			}
			if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				nodata = &v
			}
		case tagModelPixelScale:
			if pixelScale, err = tf.doubleValues(e); err != nil {
				return nil, err
			}
		case tagModelTiepoint:
			if tiepoint, err = tf.doubleValues(e); err != nil {
				return nil, err
			}
		case tagGeoKeyDirectory:
			keys, err := tf.uintValues(e)
			if err != nil {
				return nil, err
			}
			info.EPSG = epsgFromGeoKeys(keys)
		}
	}

	if info.Width <= 0 || info.Height <= 0 {
		return nil, errors.New("missing image dimensions")
	}
	if len(pixelScale) < 2 || len(tiepoint) < 6 {
		return nil, errors.New("no geotransform (ModelPixelScale/ModelTiepoint missing)")
	}

	sx, sy := pixelScale[0], pixelScale[1]
	// Tiepoint maps raster position (i,j) to model position (x,y);
	// almost always the upper-left corner (0,0).
	originX := tiepoint[3] - tiepoint[0]*sx
	originY := tiepoint[4] + tiepoint[1]*sy

	info.BBox = model.BBox{
		X1:   originX,
		Y1:   originY - float64(info.Height)*sy,
		X2:   originX + float64(info.Width)*sx,
		Y2:   originY,
		EPSG: info.EPSG,
	}
	if !info.BBox.Valid() {
		return nil, fmt.Errorf("degenerate geotransform: %s", info.BBox)
	}

	info.Bands = make([]model.Band, samples)
	for i := range info.Bands {
		info.Bands[i] = model.Band{
			Name:     "b" + strconv.Itoa(i+1),
			DataType: sampleDataType(at(bits, i, 8), at(formats, i, 1)),
			NoData:   nodata,
		}
		info.Bands[i].BitsPerSample = int(at(bits, i, 8))
	}
	return info, nil
}

func (tf *tiffFile) readIFD(offset int64) ([]ifdEntry, error) {
	var cntBuf [2]byte
	if _, err := tf.f.ReadAt(cntBuf[:], offset); err != nil {
		return nil, fmt.Errorf("read IFD at %d: %w", offset, err)
	}
	count := int(tf.bo.Uint16(cntBuf[:]))
	if count == 0 {
		return nil, errors.New("empty IFD")
	}

	buf := make([]byte, count*12)
	if _, err := tf.f.ReadAt(buf, offset+2); err != nil {
		return nil, fmt.Errorf("read %d IFD entries: %w", count, err)
	}

	entries := make([]ifdEntry, count)
	for i := range entries {
		rec := buf[i*12 : i*12+12]
		entries[i].tag = tf.bo.Uint16(rec[0:2])
		entries[i].typ = tf.bo.Uint16(rec[2:4])
		entries[i].count = tf.bo.Uint32(rec[4:8])
		copy(entries[i].rawValue[:], rec[8:12])
	}
	return entries, nil
}

func typeSize(typ uint16) int {
	switch typ {
	case 1, 2, 6, 7: // BYTE, ASCII, SBYTE, UNDEFINED
		return 1
	case 3, 8: // SHORT, SSHORT
		return 2
	case 4, 9, 11: // LONG, SLONG, FLOAT
		return 4
	case 5, 10, 12: // RATIONAL, SRATIONAL, DOUBLE
		return 8
	default:
		return 0
	}
}

// valueBytes returns the raw value bytes, following the offset
// indirection when the value does not fit in the entry.
func (tf *tiffFile) valueBytes(e ifdEntry) ([]byte, error) {
	size := typeSize(e.typ)
	if size == 0 {
		return nil, fmt.Errorf("tag %d: unsupported field type %d", e.tag, e.typ)
	}
	total := int64(size) * int64(e.count)
	if total <= 4 {
		return e.rawValue[:total], nil
	}
	off := int64(tf.bo.Uint32(e.rawValue[:]))
	// Cap against the file size before allocating: a corrupt count
	// would otherwise drive an allocation of up to 32 GB.
	if total > tf.size || off > tf.size-total {
		return nil, fmt.Errorf("tag %d: value of %d bytes at %d exceeds file size %d", e.tag, total, off, tf.size)
	}
	buf := make([]byte, total)
	if _, err := tf.f.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("tag %d: read %d bytes at %d: %w", e.tag, total, off, err)
	}
	return buf, nil
}

func (tf *tiffFile) uintValues(e ifdEntry) ([]uint64, error) {
	raw, err := tf.valueBytes(e)
	if err != nil {
		return nil, err
	}
	size := typeSize(e.typ)
	out := make([]uint64, e.count)
	for i := range out {
		switch size {
		case 1:
			out[i] = uint64(raw[i])
		case 2:
			out[i] = uint64(tf.bo.Uint16(raw[i*2:]))
		case 4:
			out[i] = uint64(tf.bo.Uint32(raw[i*4:]))
		default:
			return nil, fmt.Errorf("tag %d: type %d is not integral", e.tag, e.typ)
		}
	}
	return out, nil
}

func (tf *tiffFile) doubleValues(e ifdEntry) ([]float64, error) {
	if e.typ != 12 {
		return nil, fmt.Errorf("tag %d: expected DOUBLE, got type %d", e.tag, e.typ)
	}
	raw, err := tf.valueBytes(e)
	if err != nil {
		return nil, err
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(tf.bo.Uint64(raw[i*8:]))
	}
	return out, nil
}

func (tf *tiffFile) asciiValue(e ifdEntry) (string, error) {
	raw, err := tf.valueBytes(e)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(raw), "\x00"), nil
}

// epsgFromGeoKeys scans a GeoKeyDirectory for the geographic or
// projected CRS key. The directory is a flat SHORT array: a 4-value
// header followed by 4-value key records (id, location, count, value).
func epsgFromGeoKeys(dir []uint64) int {
	if len(dir) < 4 {
		return 0
	}
	numKeys := int(dir[3])
	geographic := 0
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(dir) {
			break
		}
		id, loc, val := dir[base], dir[base+1], dir[base+3]
		if loc != 0 {
			continue // value stored in another tag, not a plain code
		}
		switch id {
		case geoKeyProjectedCS:
			return int(val)
		case geoKeyGeographicType:
			geographic = int(val)
		}
	}
	return geographic
}

func at(vals []uint64, i int, def uint64) uint64 {
	if i < len(vals) {
		return vals[i]
	}
	if len(vals) > 0 {
		return vals[0]
	}
	return def
}

func sampleDataType(bits, format uint64) string {
	switch format {
	case 2:
		return "int" + strconv.FormatUint(bits, 10)
	case 3:
		return "float" + strconv.FormatUint(bits, 10)
	default:
		return "uint" + strconv.FormatUint(bits, 10)
	}
}
