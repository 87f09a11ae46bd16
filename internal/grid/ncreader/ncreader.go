// Package ncreader reads curvilinear ocean model output stored as NetCDF
// files through the grid dataset interfaces.
package ncreader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/kproj6/featureserver/internal/grid"
)

type Config struct {
	Axes     grid.AxisNames
	LatVar   string
	LonVar   string
	TimeVar  string
	DepthVar string
}

func DefaultConfig() Config {
	return Config{
		Axes:     grid.DefaultAxisNames(),
		LatVar:   "gridLats",
		LonVar:   "gridLons",
		TimeVar:  "time",
		DepthVar: "zc",
	}
}

type Reader struct {
	cfg Config
}

func New(cfg Config) *Reader {
	return &Reader{cfg: cfg}
}

func (r *Reader) Open(ctx context.Context, path string) (grid.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &dataset{path: path, g: g, cfg: r.cfg}, nil
}

type dataset struct {
	path string
	g    api.Group
	cfg  Config

	mu     sync.Mutex
	base   *grid.Curvilinear
	closed bool
}

func (d *dataset) Path() string { return d.path }

func (d *dataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		d.g.Close()
	}
	return nil
}

func (d *dataset) Dims() map[string]int {
	out := map[string]int{}
	for _, name := range d.g.ListDimensions() {
		if n, ok := d.g.GetDimension(name); ok {
			out[name] = int(n)
		}
	}
	return out
}

func (d *dataset) Attribute(variable, name string) (any, bool) {
	var attrs api.AttributeMap
	if variable == "" {
		attrs = d.g.Attributes()
	} else {
		vg, err := d.g.GetVarGetter(variable)
		if err != nil {
			return nil, false
		}
		attrs = vg.Attributes()
	}
	if attrs == nil {
		return nil, false
	}
	return attrs.Get(name)
}

func (d *dataset) VarShape(variable string) ([]int, error) {
	vg, err := d.g.GetVarGetter(variable)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", variable, err)
	}
	dims := vg.Dimensions()
	shape := make([]int, len(dims))
	for i, name := range dims {
		if i == 0 {
			// the first dimension may be unlimited; the getter knows the record count
			shape[i] = int(vg.Len())
			continue
		}
		n, ok := d.g.GetDimension(name)
		if !ok {
			return nil, fmt.Errorf("variable %q: dimension %q not found", variable, name)
		}
		shape[i] = int(n)
	}
	return shape, nil
}

// coords loads the horizontal coordinates and axes once per handle.
func (d *dataset) coords() (*grid.Curvilinear, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.base != nil {
		return d.base, nil
	}
	lats, latShape, err := d.readAll(d.cfg.LatVar)
	if err != nil {
		return nil, err
	}
	lons, lonShape, err := d.readAll(d.cfg.LonVar)
	if err != nil {
		return nil, err
	}
	if len(latShape) != 2 || !slices.Equal(latShape, lonShape) {
		return nil, fmt.Errorf("%s: coordinate shapes %v and %v are not matching 2-D grids", d.path, latShape, lonShape)
	}
	cs, err := grid.NewCurvilinear(lats, lons, latShape[0], latShape[1], nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}

	if vals, _, err := d.readAll(d.cfg.TimeVar); err == nil {
		times, err := d.timeValues(vals)
		if err != nil {
			return nil, err
		}
		cs.Time = grid.NewTimeAxis(times)
	}
	if vals, _, err := d.readAll(d.cfg.DepthVar); err == nil {
		cs.Vertical = grid.NewVerticalAxis(vals)
	}
	d.base = cs
	return cs, nil
}

func (d *dataset) timeValues(vals []float64) ([]time.Time, error) {
	raw, ok := d.Attribute(d.cfg.TimeVar, "units")
	if !ok {
		return nil, fmt.Errorf("%s: %s has no units", d.path, d.cfg.TimeVar)
	}
	units, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%s: %s units are %T, want string", d.path, d.cfg.TimeVar, raw)
	}
	step, ref, err := grid.ParseTimeUnits(units)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	return grid.Offsets(step, ref, vals)
}

func (d *dataset) CoordSystem(variable string) (grid.CoordSystem, error) {
	vg, err := d.g.GetVarGetter(variable)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", variable, err)
	}
	dims := vg.Dimensions()
	if !slices.Contains(dims, d.cfg.Axes.Y) || !slices.Contains(dims, d.cfg.Axes.X) {
		return nil, fmt.Errorf("variable %q has dimensions %v, want %s and %s", variable, dims, d.cfg.Axes.Y, d.cfg.Axes.X)
	}
	base, err := d.coords()
	if err != nil {
		return nil, err
	}
	cs := *base
	if !slices.Contains(dims, d.cfg.Axes.Time) {
		cs.Time = nil
	}
	if !slices.Contains(dims, d.cfg.Axes.Vertical) {
		cs.Vertical = nil
	}
	return &cs, nil
}

func (d *dataset) ReadSlice(ctx context.Context, variable string, c grid.Crop, t, z grid.Index) (grid.Array, error) {
	if err := ctx.Err(); err != nil {
		return grid.Array{}, err
	}
	vg, err := d.g.GetVarGetter(variable)
	if err != nil {
		return grid.Array{}, fmt.Errorf("variable %q: %w", variable, err)
	}
	sel, sq := d.cfg.Axes.SliceSelection(vg.Dimensions(), c, t, z)
	a, err := d.read(vg, sel)
	if err != nil {
		return grid.Array{}, fmt.Errorf("read %s: %w", variable, err)
	}
	return grid.Squeeze(a, sq...)
}

func (d *dataset) ReadProfile(ctx context.Context, variable string, t grid.Index, x, y int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vg, err := d.g.GetVarGetter(variable)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", variable, err)
	}
	sel, _ := d.cfg.Axes.ProfileSelection(vg.Dimensions(), t, x, y)
	a, err := d.read(vg, sel)
	if err != nil {
		return nil, fmt.Errorf("read %s profile: %w", variable, err)
	}
	return a.Data, nil
}

func (d *dataset) ReadStrided(ctx context.Context, variable string, begin, count, stride []int) (grid.Array, error) {
	if err := ctx.Err(); err != nil {
		return grid.Array{}, err
	}
	if len(begin) != len(count) || len(begin) != len(stride) {
		return grid.Array{}, errors.New("strided read: begin, count and stride differ in length")
	}
	vg, err := d.g.GetVarGetter(variable)
	if err != nil {
		return grid.Array{}, fmt.Errorf("variable %q: %w", variable, err)
	}
	a, err := d.read(vg, grid.StridedSelection(begin, count, stride))
	if err != nil {
		return grid.Array{}, fmt.Errorf("read %s: %w", variable, err)
	}
	return a, nil
}

func (d *dataset) readAll(variable string) ([]float64, []int, error) {
	v, err := d.g.GetVariable(variable)
	if err != nil {
		return nil, nil, fmt.Errorf("variable %q: %w", variable, err)
	}
	data, shape, err := flatten(v.Values)
	if err != nil {
		return nil, nil, fmt.Errorf("variable %q: %w", variable, err)
	}
	packingOf(v.Attributes).apply(data)
	return data, shape, nil
}

// read fetches only the outer-dimension range covered by sel and gathers the
// selection from it.
func (d *dataset) read(vg api.VarGetter, sel [][]int) (grid.Array, error) {
	if len(sel) != len(vg.Dimensions()) {
		return grid.Array{}, fmt.Errorf("selection has %d dimensions, variable has %d", len(sel), len(vg.Dimensions()))
	}
	var raw any
	var err error
	lo := 0
	if len(sel) == 0 {
		raw, err = vg.Values()
	} else {
		n := int(vg.Len())
		hi := n - 1
		if sel[0] != nil {
			lo, hi = slices.Min(sel[0]), slices.Max(sel[0])
			if lo < 0 || hi >= n {
				return grid.Array{}, fmt.Errorf("index range [%d,%d] outside [0,%d)", lo, hi, n)
			}
		}
		raw, err = vg.GetSlice(int64(lo), int64(hi+1))
	}
	if err != nil {
		return grid.Array{}, err
	}
	data, shape, err := flatten(raw)
	if err != nil {
		return grid.Array{}, err
	}
	if len(shape) != len(sel) {
		return grid.Array{}, fmt.Errorf("decoded %d dimensions, want %d", len(shape), len(sel))
	}
	if len(sel) > 0 && sel[0] != nil {
		shifted := make([]int, len(sel[0]))
		for i, v := range sel[0] {
			shifted[i] = v - lo
		}
		sel = append([][]int{shifted}, sel[1:]...)
	}
	out, err := grid.Select(grid.Array{Shape: shape, Data: data}, sel)
	if err != nil {
		return grid.Array{}, err
	}
	packingOf(vg.Attributes()).apply(out.Data)
	return out, nil
}

func packingOf(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if attrs == nil {
		return p
	}
	if v, ok := attrs.Get("scale_factor"); ok {
		if f, ok := grid.Number(v); ok {
			p.scale = f
		}
	}
	if v, ok := attrs.Get("add_offset"); ok {
		if f, ok := grid.Number(v); ok {
			p.offset = f
		}
	}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrs.Get(key); ok {
			if f, ok := grid.Number(v); ok {
				p.fill = append(p.fill, f)
			}
		}
	}
	return p
}
