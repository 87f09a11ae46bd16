package keys

import (
	"regexp"
	"testing"
	"time"
	"unicode"

	"github.com/kproj6/featureserver/internal/core/model"
)

func area(ulLat, ulLon, lrLat, lrLon, depth float64, at time.Time) model.AreaBounds {
	return model.AreaBounds{
		Rect:  model.Rect{UpperLeft: model.LatLon{Lat: ulLat, Lon: ulLon}, LowerRight: model.LatLon{Lat: lrLat, Lon: lrLon}},
		Depth: &depth,
		Time:  &at,
	}
}

var t0 = time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)

func TestArea_DeterministicAndNormalized(t *testing.T) {
	k1 := Area("temperature", "/data/2020/model.nc", area(64, 8, 62, 10, 5, t0), 1)
	k2 := Area("temperature", "/data/2020/model.nc", area(64, 8, 62, 10, 5, t0), 1)
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
	inv := Area("temperature", "/data/2020/model.nc", area(62, 10, 64, 8, 5, t0), 1)
	if inv != k1 {
		t.Fatalf("inverted rect keyed differently:\n k1=%s\n inv=%s", k1, inv)
	}
	zoned := t0.In(time.FixedZone("CET", 3600))
	if k := Area("temperature", "/data/2020/model.nc", area(64, 8, 62, 10, 5, zoned), 1); k != k1 {
		t.Fatalf("same instant in another zone keyed differently: %s", k)
	}
}

func TestArea_EveryInputMatters(t *testing.T) {
	base := Area("temperature", "/data/a.nc", area(64, 8, 62, 10, 5, t0), 1)
	variants := map[string]string{
		"feature": Area("salinity", "/data/a.nc", area(64, 8, 62, 10, 5, t0), 1),
		"file":    Area("temperature", "/other/a.nc", area(64, 8, 62, 10, 5, t0), 1),
		"rect":    Area("temperature", "/data/a.nc", area(64, 8, 62, 10.5, 5, t0), 1),
		"depth":   Area("temperature", "/data/a.nc", area(64, 8, 62, 10, 6, t0), 1),
		"time":    Area("temperature", "/data/a.nc", area(64, 8, 62, 10, 5, t0.Add(time.Hour)), 1),
		"stride":  Area("temperature", "/data/a.nc", area(64, 8, 62, 10, 5, t0), 2),
	}
	for name, k := range variants {
		if k == base {
			t.Fatalf("%s change did not change the key: %s", name, k)
		}
	}
	noTime := Area("depth", "/data/a.nc", model.AreaBounds{Rect: area(64, 8, 62, 10, 0, t0).Rect}, 1)
	if noTime == base {
		t.Fatalf("rect-only key collided")
	}
}

func TestKeys_AreASCIIWithHashSuffix(t *testing.T) {
	ks := []string{
		Area("water-velocity", "/data/Göteborg 雪.nc", area(64, 8, 62, 10, 5, t0), 1),
		Profile("temperature", "/data/a.nc", model.PointQuery{Point: model.LatLon{Lat: 63, Lon: 9}, Time: t0}),
	}
	for _, k := range ks {
		for _, r := range k {
			if r > unicode.MaxASCII {
				t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
			}
		}
		if !regexp.MustCompile(`^resp:(area|profile):[A-Za-z0-9._-]+:[A-Za-z0-9._-]+:h=[0-9a-f]{16}$`).MatchString(k) {
			t.Fatalf("unexpected key shape: %s", k)
		}
	}
}
