package grid

import (
	"fmt"
	"math"

	"github.com/kproj6/featureserver/internal/core/fault"
	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/geo"
)

// Curvilinear is a coordinate system over 2-D latitude and longitude arrays
// laid out row-major with ny rows and nx columns.
type Curvilinear struct {
	Lats, Lons []float64
	NY, NX     int
	Time       TimeAxis
	Vertical   VerticalAxis
}

func NewCurvilinear(lats, lons []float64, ny, nx int, t TimeAxis, z VerticalAxis) (*Curvilinear, error) {
	if ny <= 0 || nx <= 0 {
		return nil, fmt.Errorf("empty grid %dx%d", ny, nx)
	}
	if len(lats) != ny*nx || len(lons) != ny*nx {
		return nil, fmt.Errorf("coordinate arrays have %d/%d values, want %d", len(lats), len(lons), ny*nx)
	}
	return &Curvilinear{Lats: lats, Lons: lons, NY: ny, NX: nx, Time: t, Vertical: z}, nil
}

func (c *Curvilinear) HasTimeAxis() bool          { return c.Time != nil && c.Time.Len() > 0 }
func (c *Curvilinear) TimeAxis() TimeAxis         { return c.Time }
func (c *Curvilinear) HasVerticalAxis() bool      { return c.Vertical != nil && c.Vertical.Len() > 0 }
func (c *Curvilinear) VerticalAxis() VerticalAxis { return c.Vertical }
func (c *Curvilinear) Shape() (int, int)          { return c.NY, c.NX }

func (c *Curvilinear) at(y, x int) model.LatLon {
	i := y*c.NX + x
	return model.LatLon{Lat: c.Lats[i], Lon: c.Lons[i]}
}

// Corners returns the grid corners as upper-left, upper-right, lower-right, lower-left.
func (c *Curvilinear) Corners() [4]model.LatLon {
	return [4]model.LatLon{
		c.at(0, 0),
		c.at(0, c.NX-1),
		c.at(c.NY-1, c.NX-1),
		c.at(c.NY-1, 0),
	}
}

func (c *Curvilinear) Subset(r model.Rect, strideY, strideX int) (Crop, error) {
	if strideY < 1 || strideX < 1 {
		return Crop{}, fmt.Errorf("stride must be >= 1, got %dx%d", strideY, strideX)
	}
	y0, y1, x0, x1 := c.NY, -1, c.NX, -1
	for y := range c.NY {
		for x := range c.NX {
			if !r.Contains(c.at(y, x)) {
				continue
			}
			y0, y1 = min(y0, y), max(y1, y)
			x0, x1 = min(x0, x), max(x1, x)
		}
	}
	if y1 < 0 {
		return Crop{}, fault.Rangef("no grid cells inside %s", r)
	}
	return Crop{Y0: y0, Y1: y1, X0: x0, X1: x1, StrideY: strideY, StrideX: strideX}, nil
}

func (c *Curvilinear) FindXY(p model.LatLon) (int, int, bool) {
	corners := c.Corners()
	ring := geo.CoveragePolygon(corners)[0]
	if !geo.ContainsPoint(ring, [2]float64{p.Lon, p.Lat}) {
		return 0, 0, false
	}
	k := math.Cos(p.Lat * math.Pi / 180)
	bestX, bestY, best := -1, -1, math.Inf(1)
	for y := range c.NY {
		for x := range c.NX {
			q := c.at(y, x)
			if math.IsNaN(q.Lat) || math.IsNaN(q.Lon) {
				continue
			}
			dLat, dLon := q.Lat-p.Lat, (q.Lon-p.Lon)*k
			if d := dLat*dLat + dLon*dLon; d < best {
				bestX, bestY, best = x, y, d
			}
		}
	}
	if bestX < 0 {
		return 0, 0, false
	}
	return bestX, bestY, true
}
