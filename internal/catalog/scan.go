package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/kproj6/featureserver/internal/core/fault"
	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/core/observability"
	"github.com/kproj6/featureserver/internal/geo"
	"github.com/kproj6/featureserver/internal/grid"
)

// Layout names the variables and attributes a dataset file must carry to be
// indexed.
type Layout struct {
	Ext            string
	LatVar         string
	LonVar         string
	TimeVar        string
	ResolutionVar  string
	ResolutionAttr string
	// RecordStep is the spacing of time records; the interval of a file is
	// [ref, ref + n*RecordStep].
	RecordStep time.Duration
}

func DefaultLayout() Layout {
	return Layout{
		Ext:            ".nc",
		LatVar:         "gridLats",
		LonVar:         "gridLons",
		TimeVar:        "time",
		ResolutionVar:  "grid_mapping",
		ResolutionAttr: "horizontal_resolution",
		RecordStep:     time.Hour,
	}
}

type ScanOptions struct {
	// Strict aborts the scan on the first file that opens but cannot be
	// described. By default such files are reported and skipped.
	Strict bool
}

type ScanFailure struct {
	Path  string `json:"path"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

type ScanReport struct {
	Indexed []string      `json:"indexed"`
	Skipped int           `json:"skipped"`
	Failed  []ScanFailure `json:"failed"`
}

// Scan walks root for dataset files and indexes every one not yet present.
func (c *Catalog) Scan(ctx context.Context, root string, opts ScanOptions) (ScanReport, error) {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	rep := ScanReport{Indexed: []string{}, Failed: []ScanFailure{}}
	start := time.Now()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			c.log.Warn("scan: unreadable entry", "path", path, "err", walkErr)
			rep.Failed = append(rep.Failed, ScanFailure{Path: path, Stage: "walk", Error: walkErr.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), c.layout.Ext) {
			return nil
		}
		return c.scanFile(ctx, path, opts, &rep)
	})
	c.log.Info("scan finished",
		"root", root,
		"indexed", len(rep.Indexed),
		"skipped", rep.Skipped,
		"failed", len(rep.Failed),
		"took", time.Since(start),
	)
	if err != nil {
		return rep, fmt.Errorf("scan %s: %w", root, err)
	}
	return rep, nil
}

func (c *Catalog) scanFile(ctx context.Context, path string, opts ScanOptions, rep *ScanReport) error {
	has, err := c.store.Has(ctx, path)
	if err != nil {
		return fault.Unavailable("catalog lookup", err)
	}
	if has {
		rep.Skipped++
		observability.ObserveScanFile("skipped")
		return nil
	}

	ds, err := c.open.Open(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("scan: cannot open dataset", "path", path, "err", err)
		rep.Failed = append(rep.Failed, ScanFailure{Path: path, Stage: "open", Error: err.Error()})
		observability.ObserveScanFile("failed")
		return nil
	}
	desc, err := Describe(ctx, ds, c.layout)
	if cerr := ds.Close(); cerr != nil {
		c.log.Warn("scan: close dataset", "path", path, "err", cerr)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rep.Failed = append(rep.Failed, ScanFailure{Path: path, Stage: "describe", Error: err.Error()})
		observability.ObserveScanFile("failed")
		if opts.Strict {
			return fault.DataSourceErr("describe "+path, err)
		}
		c.log.Warn("scan: skipping dataset", "path", path, "err", err)
		return nil
	}

	inserted, err := c.store.Insert(ctx, desc)
	if err != nil {
		return fault.Unavailable("catalog insert", err)
	}
	if !inserted {
		rep.Skipped++
		observability.ObserveScanFile("skipped")
		return nil
	}
	rep.Indexed = append(rep.Indexed, path)
	observability.ObserveScanFile("indexed")
	c.log.Debug("indexed dataset", "path", path, "coverage", geo.ShortWKT(desc.Coverage, 80), "interval_start", desc.Interval.Start, "resolution", desc.Resolution)
	if c.notify != nil {
		c.notify.Indexed(ctx, desc)
	}
	return nil
}

// Describe extracts the catalog row of an open dataset: the four corners of
// its coordinate grid, its time interval, resolution and dimension sizes.
func Describe(ctx context.Context, ds grid.Dataset, l Layout) (model.DatasetDescriptor, error) {
	d := model.DatasetDescriptor{Path: ds.Path(), Dims: ds.Dims()}

	corners, err := readCorners(ctx, ds, l)
	if err != nil {
		return d, err
	}
	d.Coverage = corners

	iv, err := readInterval(ds, l)
	if err != nil {
		return d, err
	}
	d.Interval = iv

	raw, ok := ds.Attribute(l.ResolutionVar, l.ResolutionAttr)
	if !ok {
		return d, fmt.Errorf("missing %s:%s", l.ResolutionVar, l.ResolutionAttr)
	}
	res, ok := grid.Number(raw)
	if !ok || res <= 0 {
		return d, fmt.Errorf("invalid %s:%s %v", l.ResolutionVar, l.ResolutionAttr, raw)
	}
	d.Resolution = res
	return d, nil
}

// readCorners samples the 2x2 extreme cells of the latitude and longitude
// grids in one strided read each.
func readCorners(ctx context.Context, ds grid.Dataset, l Layout) ([4]model.LatLon, error) {
	var out [4]model.LatLon
	shape, err := ds.VarShape(l.LatVar)
	if err != nil {
		return out, fmt.Errorf("latitude grid: %w", err)
	}
	if len(shape) != 2 || shape[0] < 1 || shape[1] < 1 {
		return out, fmt.Errorf("latitude grid %s has shape %v, want 2-D", l.LatVar, shape)
	}
	ny, nx := shape[0], shape[1]
	begin := []int{0, 0}
	count := []int{min(ny, 2), min(nx, 2)}
	stride := []int{max(ny-1, 1), max(nx-1, 1)}

	lats, err := ds.ReadStrided(ctx, l.LatVar, begin, count, stride)
	if err != nil {
		return out, fmt.Errorf("read %s corners: %w", l.LatVar, err)
	}
	lons, err := ds.ReadStrided(ctx, l.LonVar, begin, count, stride)
	if err != nil {
		return out, fmt.Errorf("read %s corners: %w", l.LonVar, err)
	}
	cols := count[1]
	if len(lats.Data) != count[0]*cols || len(lons.Data) != len(lats.Data) {
		return out, errors.New("corner sample has unexpected size")
	}
	at := func(y, x int) model.LatLon {
		return model.LatLon{Lat: lats.Data[y*cols+x], Lon: lons.Data[y*cols+x]}
	}
	last, right := count[0]-1, cols-1
	out = [4]model.LatLon{at(0, 0), at(0, right), at(last, right), at(last, 0)}
	return out, nil
}

func readInterval(ds grid.Dataset, l Layout) (model.Interval, error) {
	raw, ok := ds.Attribute(l.TimeVar, "units")
	if !ok {
		return model.Interval{}, fmt.Errorf("missing %s:units", l.TimeVar)
	}
	units, ok := raw.(string)
	if !ok {
		return model.Interval{}, fmt.Errorf("%s:units is %T, want string", l.TimeVar, raw)
	}
	_, ref, err := grid.ParseTimeUnits(units)
	if err != nil {
		return model.Interval{}, err
	}
	shape, err := ds.VarShape(l.TimeVar)
	if err != nil {
		return model.Interval{}, fmt.Errorf("time axis: %w", err)
	}
	if len(shape) != 1 {
		return model.Interval{}, fmt.Errorf("time axis %s has shape %v, want 1-D", l.TimeVar, shape)
	}
	step := l.RecordStep
	if step <= 0 {
		step = time.Hour
	}
	return model.Interval{Start: ref, End: ref.Add(time.Duration(shape[0]) * step)}, nil
}
