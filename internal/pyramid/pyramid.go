// Package pyramid derives the GoogleMapsCompatible tile matrix set that
// serves a dataset down to its native resolution.
package pyramid

import (
	"fmt"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/perimeterx/marshmallow"

	"github.com/kproj6/featureserver/internal/core/fault"
	"github.com/kproj6/featureserver/internal/core/model"
)

const (
	SetID             = "GoogleMapsCompatible"
	Title             = "the wellknown 'GoogleMapsCompatible' tile matrix set defined by OGC WMTS specification"
	CRS               = "urn:ogc:def:crs:EPSG:6.18:3:3857"
	WellKnownScaleSet = "urn:ogc:def:wkss:OGC:1.0:GoogleMapsCompatible"
)

// Options tune the generator. The zero value is not usable; start from
// DefaultOptions or ParseOptions.
type Options struct {
	// Scale denominator of level 0, a single tile covering the world.
	MaxScaleDenominator float64 `default:"559082264.0287178" validate:"gt=0" json:"maxScaleDenominator"`
	// Standardized rendering pixel size in metres (0.28 mm).
	PixelSize float64 `default:"0.00028" validate:"gt=0" json:"standardizedPixelSize"`
	TileSize  uint    `default:"256" validate:"min=1,max=4096" json:"tileSize"`
	MaxLevels int     `default:"30" validate:"min=1,max=48" json:"maxLevels"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func DefaultOptions() Options {
	var o Options
	_ = defaults.Set(&o)
	return o
}

// ParseOptions decodes a JSON options document over the defaults. Unknown
// keys are rejected.
func ParseOptions(data []byte) (Options, error) {
	o := DefaultOptions()
	extra, err := marshmallow.Unmarshal(data, &o, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return Options{}, fmt.Errorf("decode pyramid options: %w", err)
	}
	if len(extra) > 0 {
		keys := make([]string, 0, len(extra))
		for k := range extra {
			keys = append(keys, k)
		}
		return Options{}, fmt.Errorf("decode pyramid options: unknown keys %v", keys)
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("pyramid options: %w", err)
	}
	return nil
}

// TileMatrix is one zoom level.
type TileMatrix struct {
	ID               string     `json:"id"`
	ScaleDenominator float64    `json:"scaleDenominator"`
	CellSize         float64    `json:"cellSize"`
	CornerOfOrigin   string     `json:"cornerOfOrigin"`
	PointOfOrigin    [2]float64 `json:"pointOfOrigin"`
	TileWidth        uint       `json:"tileWidth"`
	TileHeight       uint       `json:"tileHeight"`
	MatrixWidth      uint       `json:"matrixWidth"`
	MatrixHeight     uint       `json:"matrixHeight"`
}

type BoundingBox struct {
	LowerLeft  [2]float64 `json:"lowerLeft"`
	UpperRight [2]float64 `json:"upperRight"`
}

// TileMatrixSet lists its matrices coarsest first. Coordinates are ordered
// (lon, lat).
type TileMatrixSet struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	CRS               string       `json:"crs"`
	WellKnownScaleSet string       `json:"wellKnownScaleSet"`
	OrderedAxes       []string     `json:"orderedAxes"`
	BoundingBox       BoundingBox  `json:"boundingBox"`
	TileMatrices      []TileMatrix `json:"tileMatrices"`
}

// Generate emits levels from the top scale denominator while it is still
// greater than the target nativePixelSize/PixelSize, halving the
// denominator and doubling the matrix size each step. Every level shares
// the top-left corner of bbox.
func Generate(nativePixelSize float64, bbox model.Rect, opts Options) (TileMatrixSet, error) {
	if err := opts.Validate(); err != nil {
		return TileMatrixSet{}, err
	}
	if !(nativePixelSize > 0) {
		return TileMatrixSet{}, fault.Validationf(nil, map[string]string{"resolution": "must be a positive number of metres"})
	}
	bbox = bbox.Normalized()
	origin := [2]float64{bbox.UpperLeft.Lon, bbox.UpperLeft.Lat}
	target := nativePixelSize / opts.PixelSize

	var levels []TileMatrix
	tiles := uint(1)
	for denom := opts.MaxScaleDenominator; denom > target && len(levels) < opts.MaxLevels; denom /= 2 {
		levels = append(levels, TileMatrix{
			ID:               strconv.Itoa(len(levels)),
			ScaleDenominator: denom,
			CellSize:         denom * opts.PixelSize,
			CornerOfOrigin:   "topLeft",
			PointOfOrigin:    origin,
			TileWidth:        opts.TileSize,
			TileHeight:       opts.TileSize,
			MatrixWidth:      tiles,
			MatrixHeight:     tiles,
		})
		tiles *= 2
	}
	if len(levels) == 0 {
		return TileMatrixSet{}, fault.Rangef("pixel size %g m is coarser than the top level", nativePixelSize)
	}
	return TileMatrixSet{
		ID:                SetID,
		Title:             Title,
		CRS:               CRS,
		WellKnownScaleSet: WellKnownScaleSet,
		OrderedAxes:       []string{"Lon", "Lat"},
		BoundingBox: BoundingBox{
			LowerLeft:  [2]float64{bbox.MinLon(), bbox.MinLat()},
			UpperRight: [2]float64{bbox.MaxLon(), bbox.MaxLat()},
		},
		TileMatrices: levels,
	}, nil
}

// Matrix returns the level with the given id.
func (s TileMatrixSet) Matrix(id int) (TileMatrix, error) {
	if id < 0 || id >= len(s.TileMatrices) {
		return TileMatrix{}, fault.Rangef("tile matrix %d not in [0,%d]", id, len(s.TileMatrices)-1)
	}
	return s.TileMatrices[id], nil
}

// TileBounds divides the set's bounding box evenly by the matrix size of
// level id. Row 0 is the northernmost row, column 0 the westernmost.
func (s TileMatrixSet) TileBounds(id, row, col int) (model.Rect, error) {
	m, err := s.Matrix(id)
	if err != nil {
		return model.Rect{}, err
	}
	if row < 0 || col < 0 || uint(row) >= m.MatrixHeight || uint(col) >= m.MatrixWidth {
		return model.Rect{}, fault.Rangef("tile %d/%d/%d outside %dx%d matrix", id, row, col, m.MatrixHeight, m.MatrixWidth)
	}
	ll, ur := s.BoundingBox.LowerLeft, s.BoundingBox.UpperRight
	dLon := (ur[0] - ll[0]) / float64(m.MatrixWidth)
	dLat := (ur[1] - ll[1]) / float64(m.MatrixHeight)
	west := ll[0] + float64(col)*dLon
	north := ur[1] - float64(row)*dLat
	return model.Rect{
		UpperLeft:  model.LatLon{Lat: north, Lon: west},
		LowerRight: model.LatLon{Lat: north - dLat, Lon: west + dLon},
	}, nil
}
