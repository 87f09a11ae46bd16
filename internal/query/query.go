// Package query answers feature requests: it picks the dataset that covers a
// request, extracts from it and caches the encoded result.
package query

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/kproj6/featureserver/internal/cache/keys"
	"github.com/kproj6/featureserver/internal/cache/respcache"
	"github.com/kproj6/featureserver/internal/catalog"
	"github.com/kproj6/featureserver/internal/core/fault"
	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/extract"
	"github.com/kproj6/featureserver/internal/feature"
	"github.com/kproj6/featureserver/internal/grid"
	"github.com/kproj6/featureserver/internal/pyramid"
)

type Catalog interface {
	Query(ctx context.Context, t time.Time, r model.Rect) ([]model.DatasetDescriptor, error)
	Latest(ctx context.Context, t time.Time, r model.Rect) (model.DatasetDescriptor, error)
	Covering(ctx context.Context, r model.Rect) (model.DatasetDescriptor, error)
	Bounds(ctx context.Context) (model.Rect, float64, error)
}

type Extractor interface {
	Scalar(ctx context.Context, path string, b model.AreaBounds, f feature.Feature) (grid.Array, error)
	Vector(ctx context.Context, path string, b model.AreaBounds, f feature.Feature) (extract.VectorArray, error)
	Derived(ctx context.Context, path string, b model.AreaBounds, f feature.Feature) (grid.Array, error)
	Profile(ctx context.Context, path string, q model.PointQuery, f feature.Feature) ([]float64, error)
}

type AreaResult struct {
	Feature string     `json:"feature"`
	File    string     `json:"file"`
	Shape   []int      `json:"shape"`
	Values  Grid       `json:"values,omitempty"`
	Vectors VectorGrid `json:"vectors,omitempty"`
}

type ProfileResult struct {
	Feature string    `json:"feature"`
	File    string    `json:"file"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	Time    time.Time `json:"time"`
	Values  Series    `json:"values"`
}

type Options struct {
	// Cache may be nil.
	Cache *respcache.Cache
	// StrideKey identifies the stride policy in cache keys.
	StrideKey int
	Pyramid   pyramid.Options
	Logger    *slog.Logger
}

type Service struct {
	cat       Catalog
	ex        Extractor
	cache     *respcache.Cache
	strideKey int
	pyr       pyramid.Options
	log       *slog.Logger
}

func New(cat Catalog, ex Extractor, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Pyramid == (pyramid.Options{}) {
		opts.Pyramid = pyramid.DefaultOptions()
	}
	return &Service{
		cat:       cat,
		ex:        ex,
		cache:     opts.Cache,
		strideKey: opts.StrideKey,
		pyr:       opts.Pyramid,
		log:       opts.Logger,
	}
}

// pick finds the dataset for an area. Requests without a time are served by
// the newest dataset covering the rectangle.
func (s *Service) pick(ctx context.Context, b model.AreaBounds) (model.DatasetDescriptor, error) {
	if b.Time == nil {
		return s.cat.Covering(ctx, b.Rect)
	}
	return s.cat.Latest(ctx, *b.Time, b.Rect)
}

// Area extracts f over b from the dataset that covers it.
func (s *Service) Area(ctx context.Context, f feature.Feature, b model.AreaBounds) (AreaResult, error) {
	if !f.Valid() {
		return AreaResult{}, fault.Validationf(nil, map[string]string{"feature": "unknown feature"})
	}
	d, err := s.pick(ctx, b)
	if err != nil {
		return AreaResult{}, err
	}

	key := keys.Area(f.String(), d.Path, b, s.strideKey)
	var res AreaResult
	if s.cache.Load(ctx, key, &res) {
		s.log.DebugContext(ctx, "area served from cache", "key", key)
		return res, nil
	}

	res = AreaResult{Feature: f.String(), File: d.Path}
	switch f.Arity() {
	case feature.Vector:
		v, err := s.ex.Vector(ctx, d.Path, b, f)
		if err != nil {
			return AreaResult{}, err
		}
		rows, cols := v.Shape()
		res.Shape = []int{rows, cols}
		res.Vectors = VectorGrid(v)
	default:
		var a grid.Array
		if f.Arity() == feature.Derived {
			a, err = s.ex.Derived(ctx, d.Path, b, f)
		} else {
			a, err = s.ex.Scalar(ctx, d.Path, b, f)
		}
		if err != nil {
			return AreaResult{}, err
		}
		rows, err := a.Rows2D()
		if err != nil {
			return AreaResult{}, fault.DataSourceErr("unexpected array layout", err)
		}
		res.Shape = a.Shape
		res.Values = Grid(rows)
	}

	s.cache.Save(ctx, key, res)
	return res, nil
}

// Profile reads the depth profile of f at the point.
func (s *Service) Profile(ctx context.Context, f feature.Feature, q model.PointQuery) (ProfileResult, error) {
	if !f.Valid() {
		return ProfileResult{}, fault.Validationf(nil, map[string]string{"feature": "unknown feature"})
	}
	d, err := s.cat.Latest(ctx, q.Time, model.RectFromCorners(q.Point, q.Point))
	if err != nil {
		return ProfileResult{}, err
	}

	key := keys.Profile(f.String(), d.Path, q)
	var res ProfileResult
	if s.cache.Load(ctx, key, &res) {
		return res, nil
	}

	vals, err := s.ex.Profile(ctx, d.Path, q, f)
	if err != nil {
		return ProfileResult{}, err
	}
	res = ProfileResult{
		Feature: f.String(),
		File:    d.Path,
		Lat:     q.Point.Lat,
		Lon:     q.Point.Lon,
		Time:    q.Time.UTC(),
		Values:  Series(vals),
	}
	s.cache.Save(ctx, key, res)
	return res, nil
}

// Datasets lists the datasets answering (t, r), newest first.
func (s *Service) Datasets(ctx context.Context, t time.Time, r model.Rect) ([]model.DatasetDescriptor, error) {
	ds, err := s.cat.Query(ctx, t, r)
	if err != nil {
		return nil, err
	}
	catalog.SortNewest(ds)
	return ds, nil
}

// TileMatrixSet derives the tile pyramid from the catalog's extent and its
// finest resolution.
func (s *Service) TileMatrixSet(ctx context.Context) (pyramid.TileMatrixSet, error) {
	bbox, res, err := s.cat.Bounds(ctx)
	if err != nil {
		return pyramid.TileMatrixSet{}, err
	}
	return pyramid.Generate(res, bbox, s.pyr)
}

// Tile returns the geographic bounds of one tile of the pyramid.
func (s *Service) Tile(ctx context.Context, level, row, col int) (model.Rect, error) {
	set, err := s.TileMatrixSet(ctx)
	if err != nil {
		return model.Rect{}, err
	}
	return set.TileBounds(level, row, col)
}
