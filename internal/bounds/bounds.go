// Package bounds turns raw query parameters into validated query envelopes.
// Every problem with a request is collected and reported in one fault.
package bounds

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kproj6/featureserver/internal/core/fault"
	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/feature"
)

const (
	StartLat = "startLat"
	StartLon = "startLon"
	EndLat   = "endLat"
	EndLon   = "endLon"
	Depth    = "depth"
	Time     = "time"
	Lat      = "lat"
	Lon      = "lon"
)

const (
	msgNumber   = "invalid number format"
	msgDateTime = "invalid date-time format"
	msgLat      = "latitude must be in [-90,90]"
	msgLon      = "longitude must be in [-180,180]"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 and its zone-less or truncated forms. Times
// without a zone are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

// batch accumulates field problems in request order.
type batch struct {
	v       url.Values
	missing []string
	invalid map[string]string
}

func newBatch(v url.Values) *batch { return &batch{v: v, invalid: map[string]string{}} }

func (b *batch) raw(field string) (string, bool) {
	s := strings.TrimSpace(b.v.Get(field))
	if s == "" {
		b.missing = append(b.missing, field)
		return "", false
	}
	return s, true
}

func (b *batch) number(field string) float64 {
	s, ok := b.raw(field)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		b.invalid[field] = msgNumber
		return 0
	}
	return f
}

func (b *batch) lat(field string) float64 {
	f := b.number(field)
	if _, bad := b.invalid[field]; !bad && (f < -90 || f > 90) {
		b.invalid[field] = msgLat
	}
	return f
}

func (b *batch) lon(field string) float64 {
	f := b.number(field)
	if _, bad := b.invalid[field]; !bad && (f < -180 || f > 180) {
		b.invalid[field] = msgLon
	}
	return f
}

func (b *batch) time(field string) time.Time {
	s, ok := b.raw(field)
	if !ok {
		return time.Time{}
	}
	t, err := ParseTime(s)
	if err != nil {
		b.invalid[field] = msgDateTime
	}
	return t
}

func (b *batch) rect() model.Rect {
	ul := model.LatLon{Lat: b.lat(StartLat), Lon: b.lon(StartLon)}
	lr := model.LatLon{Lat: b.lat(EndLat), Lon: b.lon(EndLon)}
	return model.RectFromCorners(ul, lr).Normalized()
}

func (b *batch) err() error {
	if len(b.missing) == 0 && len(b.invalid) == 0 {
		return nil
	}
	var invalid map[string]string
	if len(b.invalid) > 0 {
		invalid = b.invalid
	}
	return fault.Validationf(b.missing, invalid)
}

// ResolveRect reads startLat, startLon, endLat and endLon. Inverted corners
// are swapped into upper-left/lower-right order.
func ResolveRect(v url.Values) (model.Rect, error) {
	b := newBatch(v)
	r := b.rect()
	if err := b.err(); err != nil {
		return model.Rect{}, err
	}
	return r, nil
}

// ResolveRectAt reads the rectangle and a required time.
func ResolveRectAt(v url.Values) (model.Rect, time.Time, error) {
	b := newBatch(v)
	r := b.rect()
	at := b.time(Time)
	if err := b.err(); err != nil {
		return model.Rect{}, time.Time{}, err
	}
	return r, at, nil
}

// ResolveArea reads the rectangle plus the required depth and time.
func ResolveArea(v url.Values) (model.AreaBounds, error) {
	b := newBatch(v)
	r := b.rect()
	depth := b.number(Depth)
	at := b.time(Time)
	if err := b.err(); err != nil {
		return model.AreaBounds{}, err
	}
	return model.AreaBounds{Rect: r, Depth: &depth, Time: &at}, nil
}

// ResolvePoint reads lat, lon and time.
func ResolvePoint(v url.Values) (model.PointQuery, error) {
	b := newBatch(v)
	p := model.LatLon{Lat: b.lat(Lat), Lon: b.lon(Lon)}
	at := b.time(Time)
	if err := b.err(); err != nil {
		return model.PointQuery{}, err
	}
	return model.PointQuery{Point: p, Time: at}, nil
}

// ResolveFor reads the parameters f needs. Static features such as depth
// take a rectangle only; everything else is an area in depth and time.
func ResolveFor(f feature.Feature, v url.Values) (model.AreaBounds, error) {
	if !f.Valid() {
		return model.AreaBounds{}, fault.Validationf(nil, map[string]string{"feature": "unknown feature"})
	}
	if f == feature.Depth {
		r, err := ResolveRect(v)
		if err != nil {
			return model.AreaBounds{}, err
		}
		return model.AreaBounds{Rect: r}, nil
	}
	return ResolveArea(v)
}
