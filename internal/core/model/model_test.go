package model

import (
	"testing"
	"time"
)

func TestRect_NormalizedSwapsInvertedCorners(t *testing.T) {
	r := Rect{UpperLeft: LatLon{Lat: 0, Lon: 10}, LowerRight: LatLon{Lat: 10, Lon: 0}}
	if !r.Inverted() {
		t.Fatalf("expected inverted rect")
	}
	got := r.Normalized()
	want := Rect{UpperLeft: LatLon{Lat: 10, Lon: 0}, LowerRight: LatLon{Lat: 0, Lon: 10}}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if got.Inverted() {
		t.Fatalf("normalized rect still inverted")
	}
}

func TestRect_IntersectsAndUnion(t *testing.T) {
	a := Rect{UpperLeft: LatLon{Lat: 10, Lon: 0}, LowerRight: LatLon{Lat: 0, Lon: 10}}
	b := Rect{UpperLeft: LatLon{Lat: 15, Lon: 5}, LowerRight: LatLon{Lat: 5, Lon: 15}}
	c := Rect{UpperLeft: LatLon{Lat: 30, Lon: 20}, LowerRight: LatLon{Lat: 20, Lon: 30}}
	if !a.Intersects(b) || a.Intersects(c) {
		t.Fatalf("intersection predicate wrong")
	}
	u := a.Union(c)
	if u.MinLat() != 0 || u.MaxLat() != 30 || u.MinLon() != 0 || u.MaxLon() != 30 {
		t.Fatalf("union=%v", u)
	}
}

func TestInterval_ContainsIsClosed(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	iv := Interval{Start: start, End: start.Add(24 * time.Hour)}
	for _, tc := range []struct {
		at   time.Time
		want bool
	}{
		{start, true},
		{start.Add(12 * time.Hour), true},
		{start.Add(24 * time.Hour), true},
		{start.Add(-time.Second), false},
		{start.Add(25 * time.Hour), false},
	} {
		if got := iv.Contains(tc.at); got != tc.want {
			t.Fatalf("Contains(%v)=%v want %v", tc.at, got, tc.want)
		}
	}
}

func TestDescriptor_EnvelopeOfSkewedCoverage(t *testing.T) {
	d := DatasetDescriptor{Coverage: [4]LatLon{
		{Lat: 10, Lon: 1}, {Lat: 11, Lon: 9}, {Lat: 0, Lon: 10}, {Lat: -1, Lon: 0},
	}}
	env := d.Envelope()
	if env.MaxLat() != 11 || env.MinLat() != -1 || env.MinLon() != 0 || env.MaxLon() != 10 {
		t.Fatalf("envelope=%v", env)
	}
}
