// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"math"
	"time"
)

type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p LatLon) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", p.Lat, p.Lon)
}

// Rect is an axis-aligned geographic rectangle given by its upper-left and
// lower-right corners.
type Rect struct {
	UpperLeft  LatLon `json:"upperLeft"`
	LowerRight LatLon `json:"lowerRight"`
}

func RectFromCorners(a, b LatLon) Rect {
	return Rect{UpperLeft: a, LowerRight: b}
}

func (r Rect) MinLat() float64 { return math.Min(r.UpperLeft.Lat, r.LowerRight.Lat) }
func (r Rect) MaxLat() float64 { return math.Max(r.UpperLeft.Lat, r.LowerRight.Lat) }
func (r Rect) MinLon() float64 { return math.Min(r.UpperLeft.Lon, r.LowerRight.Lon) }
func (r Rect) MaxLon() float64 { return math.Max(r.UpperLeft.Lon, r.LowerRight.Lon) }

// Inverted reports whether the corners break ul.lat >= lr.lat or ul.lon <= lr.lon.
func (r Rect) Inverted() bool {
	return r.UpperLeft.Lat < r.LowerRight.Lat || r.UpperLeft.Lon > r.LowerRight.Lon
}

// Normalized returns the same area with corners in upper-left/lower-right order.
func (r Rect) Normalized() Rect {
	return Rect{
		UpperLeft:  LatLon{Lat: r.MaxLat(), Lon: r.MinLon()},
		LowerRight: LatLon{Lat: r.MinLat(), Lon: r.MaxLon()},
	}
}

func (r Rect) Contains(p LatLon) bool {
	return p.Lat >= r.MinLat() && p.Lat <= r.MaxLat() &&
		p.Lon >= r.MinLon() && p.Lon <= r.MaxLon()
}

func (r Rect) Intersects(o Rect) bool {
	return r.MinLon() <= o.MaxLon() && o.MinLon() <= r.MaxLon() &&
		r.MinLat() <= o.MaxLat() && o.MinLat() <= r.MaxLat()
}

// Union returns the smallest rectangle covering both.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		UpperLeft:  LatLon{Lat: math.Max(r.MaxLat(), o.MaxLat()), Lon: math.Min(r.MinLon(), o.MinLon())},
		LowerRight: LatLon{Lat: math.Min(r.MinLat(), o.MinLat()), Lon: math.Max(r.MaxLon(), o.MaxLon())},
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("[%s-%s]", r.UpperLeft, r.LowerRight)
}

// AreaBounds is a rectangular query envelope with optional depth and time.
type AreaBounds struct {
	Rect  Rect
	Depth *float64
	Time  *time.Time
}

func (a AreaBounds) String() string {
	s := a.Rect.String()
	if a.Depth != nil {
		s += fmt.Sprintf(" depth=%g", *a.Depth)
	}
	if a.Time != nil {
		s += " time=" + a.Time.UTC().Format(time.RFC3339)
	}
	return s
}

type PointQuery struct {
	Point LatLon
	Time  time.Time
}

// Interval is a closed time range.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.End)
}

// DatasetDescriptor is one catalog row.
type DatasetDescriptor struct {
	Path string `json:"path"`
	// Coverage corners in ring order: upper-left, upper-right, lower-right, lower-left.
	Coverage   [4]LatLon      `json:"coverage"`
	Interval   Interval       `json:"interval"`
	Resolution float64        `json:"resolution"`
	Dims       map[string]int `json:"dims,omitempty"`
}

// Envelope is the bounding rectangle of the coverage polygon.
func (d DatasetDescriptor) Envelope() Rect {
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for _, c := range d.Coverage {
		minLat = math.Min(minLat, c.Lat)
		maxLat = math.Max(maxLat, c.Lat)
		minLon = math.Min(minLon, c.Lon)
		maxLon = math.Max(maxLon, c.Lon)
	}
	return Rect{
		UpperLeft:  LatLon{Lat: maxLat, Lon: minLon},
		LowerRight: LatLon{Lat: minLat, Lon: maxLon},
	}
}
