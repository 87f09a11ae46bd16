package geo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kproj6/featureserver/internal/core/model"
)

func square(minLat, minLon, maxLat, maxLon float64) [4]model.LatLon {
	return [4]model.LatLon{
		{Lat: maxLat, Lon: minLon},
		{Lat: maxLat, Lon: maxLon},
		{Lat: minLat, Lon: maxLon},
		{Lat: minLat, Lon: minLon},
	}
}

func rect(ulLat, ulLon, lrLat, lrLon float64) model.Rect {
	return model.Rect{UpperLeft: model.LatLon{Lat: ulLat, Lon: ulLon}, LowerRight: model.LatLon{Lat: lrLat, Lon: lrLon}}
}

func TestIntersectsRect(t *testing.T) {
	poly := CoveragePolygon(square(0, 0, 10, 10))
	cases := []struct {
		name string
		r    model.Rect
		want bool
	}{
		{"overlap corner", rect(15, 5, 5, 15), true},
		{"rect inside polygon", rect(6, 4, 4, 6), true},
		{"polygon inside rect", rect(20, -5, -5, 20), true},
		{"touching edge", rect(5, 10, 0, 12), true},
		{"disjoint", rect(30, 20, 20, 30), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IntersectsRect(poly, c.r), c.name)
	}
}

func TestIntersectsRect_RotatedCoverageEnvelopeOnlyOverlap(t *testing.T) {
	// diamond whose envelope covers the rect but whose area does not
	poly := CoveragePolygon([4]model.LatLon{
		{Lat: 10, Lon: 5}, {Lat: 5, Lon: 10}, {Lat: 0, Lon: 5}, {Lat: 5, Lon: 0},
	})
	assert.False(t, IntersectsRect(poly, rect(10, 0, 9, 1)))
	assert.True(t, IntersectsRect(poly, rect(6, 4, 4, 6)))
	// rect crossing the diamond without containing a vertex or being contained
	assert.True(t, IntersectsRect(poly, rect(5.5, -1, 4.5, 11)))
}

func TestContainsPoint(t *testing.T) {
	ring := CoveragePolygon(square(0, 0, 10, 10))[0]
	assert.True(t, ContainsPoint(ring, [2]float64{5, 5}))
	assert.True(t, ContainsPoint(ring, [2]float64{0, 5}))
	assert.False(t, ContainsPoint(ring, [2]float64{11, 5}))
}

func TestWKT(t *testing.T) {
	s, err := WKT(square(0, 0, 1, 1))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "POLYGON"), s)
}

func TestShortWKT(t *testing.T) {
	c := square(62.123456, 8.123456, 64.123456, 12.123456)
	full, err := WKT(c)
	require.NoError(t, err)

	short := ShortWKT(c, 24)
	assert.True(t, strings.HasSuffix(short, "..."))
	assert.LessOrEqual(t, len(short), 24)
	assert.True(t, strings.HasPrefix(full, strings.TrimSuffix(short, "...")))
	assert.Equal(t, full, ShortWKT(c, uint(len(full))))
	assert.Equal(t, full, ShortWKT(c, uint(len(full))+10))

	cut := ShortWKT(c, uint(len(full))-1)
	assert.LessOrEqual(t, len(cut), len(full)-1)
	assert.True(t, strings.HasSuffix(cut, "..."))
}
