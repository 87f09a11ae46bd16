// Package geo holds the planar predicates used to match dataset coverage
// polygons against query rectangles. Coordinates are (lon, lat) pairs.
package geo

import (
	"fmt"
	"strings"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/go-spatial/geom/planar"
	"github.com/muesli/reflow/truncate"

	"github.com/kproj6/featureserver/internal/core/model"
)

// CoveragePolygon converts a four corner coverage into a single ring polygon.
func CoveragePolygon(c [4]model.LatLon) geom.Polygon {
	ring := make([][2]float64, 0, len(c))
	for _, p := range c {
		ring = append(ring, [2]float64{p.Lon, p.Lat})
	}
	return geom.Polygon{ring}
}

func RectExtent(r model.Rect) *geom.Extent {
	return &geom.Extent{r.MinLon(), r.MinLat(), r.MaxLon(), r.MaxLat()}
}

// WKT renders the coverage polygon.
func WKT(c [4]model.LatLon) (string, error) {
	var b strings.Builder
	if err := wkt.Encode(&b, CoveragePolygon(c)); err != nil {
		return "", fmt.Errorf("encode coverage: %w", err)
	}
	return b.String(), nil
}

// ContainsPoint reports whether pt lies inside or on the boundary of the ring.
func ContainsPoint(ring [][2]float64, pt [2]float64) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[j], ring[i]
		if onSegment(a, b, pt) {
			return true
		}
		if (a[1] > pt[1]) != (b[1] > pt[1]) {
			x := a[0] + (pt[1]-a[1])*(b[0]-a[0])/(b[1]-a[1])
			if pt[0] < x {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(a, b, p [2]float64) bool {
	cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
	if cross > 1e-12 || cross < -1e-12 {
		return false
	}
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}

// IntersectsRect reports whether the polygon and the rectangle share any point.
func IntersectsRect(poly geom.Polygon, r model.Rect) bool {
	if len(poly) == 0 || len(poly[0]) < 3 {
		return false
	}
	ext, err := geom.NewExtentFromGeometry(poly)
	if err != nil {
		return false
	}
	re := RectExtent(r)
	if ext.MaxX() < re.MinX() || re.MaxX() < ext.MinX() ||
		ext.MaxY() < re.MinY() || re.MaxY() < ext.MinY() {
		return false
	}

	ring := poly[0]
	for _, v := range ring {
		if v[0] >= re.MinX() && v[0] <= re.MaxX() && v[1] >= re.MinY() && v[1] <= re.MaxY() {
			return true
		}
	}
	corners := rectRing(re)
	for _, c := range corners {
		if ContainsPoint(ring, c) {
			return true
		}
	}
	for i := range ring {
		edge := geom.Line{ring[i], ring[(i+1)%len(ring)]}
		for j := range corners {
			side := geom.Line{corners[j], corners[(j+1)%len(corners)]}
			if _, ok := planar.SegmentIntersect(edge, side); ok {
				return true
			}
		}
	}
	return false
}

func rectRing(e *geom.Extent) [][2]float64 {
	return [][2]float64{
		{e.MinX(), e.MaxY()},
		{e.MaxX(), e.MaxY()},
		{e.MaxX(), e.MinY()},
		{e.MinX(), e.MinY()},
	}
}

// ShortWKT renders the coverage for log lines, cut to width runes.
func ShortWKT(c [4]model.LatLon, width uint) string {
	s, err := WKT(c)
	if err != nil {
		return "<invalid coverage>"
	}
	if uint(len(s)) <= width {
		return s
	}
	return truncate.StringWithTail(s, width, "...")
}
