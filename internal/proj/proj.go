// Package proj reprojects bounding boxes into WGS84 longitude/latitude.
//
// Point conversion is delegated to the wgs84 library; this package
// restricts it to the CRSes the supported raster products actually ship
// in: EPSG:4326 (passthrough), EPSG:3857 (Web Mercator) and the WGS84
// UTM zones (EPSG:326xx north, EPSG:327xx south). Anything else is
// rejected so a wrong code surfaces as an extraction failure instead of
// a silent garbage extent.
package proj

import (
	"fmt"
	"math"

	"github.com/wroge/wgs84"

	"github.com/example/stacforge/internal/core/model"
)

// Points sampled along each bbox edge. Projected edges curve in
// lon/lat, so corners alone under-estimate the extent.
const edgeSamples = 16

// ToWGS84 reprojects b into EPSG:4326. The result is the tight bbox of
// the reprojected outline, sampled along all four edges.
func ToWGS84(b model.BBox) (model.BBox, error) {
	if !b.Valid() {
		return model.BBox{}, fmt.Errorf("invalid bbox %s", b)
	}

	convert, err := inverseFor(b.EPSG)
	if err != nil {
		return model.BBox{}, err
	}
	if convert == nil {
		out := b
		out.EPSG = 4326
		return out, nil
	}

	out := model.BBox{
		X1: math.Inf(1), Y1: math.Inf(1),
		X2: math.Inf(-1), Y2: math.Inf(-1),
		EPSG: 4326,
	}
	visit := func(x, y float64) {
		lon, lat := convert(x, y)
		out.X1 = math.Min(out.X1, lon)
		out.Y1 = math.Min(out.Y1, lat)
		out.X2 = math.Max(out.X2, lon)
		out.Y2 = math.Max(out.Y2, lat)
	}
	for i := 0; i <= edgeSamples; i++ {
		t := float64(i) / edgeSamples
		x := b.X1 + t*(b.X2-b.X1)
		y := b.Y1 + t*(b.Y2-b.Y1)
		visit(x, b.Y1)
		visit(x, b.Y2)
		visit(b.X1, y)
		visit(b.X2, y)
	}
	if !out.Valid() {
		return model.BBox{}, fmt.Errorf("reprojection of %s produced a non-finite bbox", b)
	}
	return out, nil
}

// inverseFor returns the (x,y) -> (lon,lat) conversion for an EPSG
// code, nil for 4326, or an error for unsupported codes.
func inverseFor(epsg int) (func(x, y float64) (lon, lat float64), error) {
	var crs wgs84.CoordinateReferenceSystem
	switch {
	case epsg == 4326:
		return nil, nil
	case epsg == 3857:
		crs = wgs84.WebMercator()
	case epsg >= 32601 && epsg <= 32660:
		crs = wgs84.UTM(float64(epsg-32600), true)
	case epsg >= 32701 && epsg <= 32760:
		crs = wgs84.UTM(float64(epsg-32700), false)
	default:
		return nil, fmt.Errorf("unsupported CRS EPSG:%d", epsg)
	}

	f := wgs84.Transform(crs, wgs84.LonLat())
	return func(x, y float64) (lon, lat float64) {
		lon, lat, _ = f(x, y, 0)
		return lon, lat
	}, nil
}
