package catalog

import (
	"context"
	"math"
	"time"

	"github.com/kproj6/featureserver/internal/core/model"
)

// Store persists dataset descriptors and answers coarse envelope and time
// lookups. Exact coverage matching happens in Catalog.Query.
type Store interface {
	Name() string
	Has(ctx context.Context, path string) (bool, error)
	// Insert adds d unless its path is already present, in which case it
	// reports false and leaves the stored row untouched.
	Insert(ctx context.Context, d model.DatasetDescriptor) (bool, error)
	// Candidates returns every row whose envelope intersects r and whose
	// interval contains t. It may return extra rows but never misses one.
	Candidates(ctx context.Context, t time.Time, r model.Rect) ([]model.DatasetDescriptor, error)
	All(ctx context.Context) ([]model.DatasetDescriptor, error)
	Ping(ctx context.Context) error
	Close() error
}

// box is the prefilter key of a descriptor: its envelope and its interval in
// unix seconds.
type box struct {
	minLon, maxLon float64
	minLat, maxLat float64
	tStart, tEnd   float64
}

func boxOf(d model.DatasetDescriptor) box {
	env := d.Envelope()
	return box{
		minLon: env.MinLon(), maxLon: env.MaxLon(),
		minLat: env.MinLat(), maxLat: env.MaxLat(),
		tStart: unixSeconds(d.Interval.Start), tEnd: unixSeconds(d.Interval.End),
	}
}

func queryBox(t time.Time, r model.Rect) box {
	s := unixSeconds(t)
	return box{
		minLon: r.MinLon(), maxLon: r.MaxLon(),
		minLat: r.MinLat(), maxLat: r.MaxLat(),
		tStart: s, tEnd: s,
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// pad widens every side of b. Index trees treat touching boxes as disjoint,
// while catalog matching is closed on every bound.
func (b box) pad(deg, secs float64) box {
	b.minLon -= deg
	b.maxLon += deg
	b.minLat -= deg
	b.maxLat += deg
	b.tStart -= secs
	b.tEnd += secs
	return b
}

func (b box) finite() bool {
	for _, v := range []float64{b.minLon, b.maxLon, b.minLat, b.maxLat, b.tStart, b.tEnd} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
