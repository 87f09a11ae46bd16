package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kproj6/featureserver/internal/core/fault"
	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/grid"
	"github.com/kproj6/featureserver/internal/grid/gridtest"
	"github.com/kproj6/featureserver/internal/grid/ncreader"
	"github.com/kproj6/featureserver/internal/grid/ncreader/ncfixture"
)

// touch creates an empty file so the walk sees it; contents come from the
// gridtest opener.
func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func memDataset(path string, withResolution bool) *gridtest.Dataset {
	const ny, nx = 3, 4
	lats, lons := gridtest.Regular(10, 0, 1, ny, nx)
	gm := map[string]any{}
	if withResolution {
		gm["horizontal_resolution"] = float32(800)
	}
	return &gridtest.Dataset{
		Name: path,
		Axes: grid.DefaultAxisNames(),
		Vars: map[string]gridtest.Var{
			"gridLats": {Dims: []string{"yc", "xc"}, Shape: []int{ny, nx}, Data: lats},
			"gridLons": {Dims: []string{"yc", "xc"}, Shape: []int{ny, nx}, Data: lons},
			"time": {
				Dims: []string{"time"}, Shape: []int{24}, Data: make([]float64, 24),
				Attrs: map[string]any{"units": "days since 2020-01-01 00:00:00"},
			},
			"grid_mapping": {Dims: []string{"one"}, Shape: []int{1}, Data: []float64{0}, Attrs: gm},
		},
	}
}

type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) Indexed(_ context.Context, d model.DatasetDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, d.Path)
}

func TestDescribe_CornersIntervalResolution(t *testing.T) {
	ds := memDataset("a.nc", true)
	d, err := Describe(context.Background(), ds, DefaultLayout())
	require.NoError(t, err)

	want := [4]model.LatLon{
		{Lat: 10, Lon: 0}, {Lat: 10, Lon: 3}, {Lat: 8, Lon: 3}, {Lat: 8, Lon: 0},
	}
	assert.Equal(t, want, d.Coverage)
	assert.Equal(t, jan1, d.Interval.Start)
	assert.Equal(t, jan1.Add(24*time.Hour), d.Interval.End)
	assert.Equal(t, 800.0, d.Resolution)
	assert.Equal(t, 24, d.Dims["time"])
	assert.Equal(t, 4, d.Dims["xc"])
}

func TestDescribe_SingleRowGrid(t *testing.T) {
	ds := memDataset("row.nc", true)
	lats, lons := gridtest.Regular(5, 5, 1, 1, 3)
	ds.Vars["gridLats"] = gridtest.Var{Dims: []string{"yc", "xc"}, Shape: []int{1, 3}, Data: lats}
	ds.Vars["gridLons"] = gridtest.Var{Dims: []string{"yc", "xc"}, Shape: []int{1, 3}, Data: lons}

	d, err := Describe(context.Background(), ds, DefaultLayout())
	require.NoError(t, err)
	assert.Equal(t, model.LatLon{Lat: 5, Lon: 5}, d.Coverage[0])
	assert.Equal(t, model.LatLon{Lat: 5, Lon: 7}, d.Coverage[2])
}

func TestDescribe_Failures(t *testing.T) {
	cases := map[string]func(*gridtest.Dataset){
		"no resolution": func(ds *gridtest.Dataset) { delete(ds.Vars, "grid_mapping") },
		"no units": func(ds *gridtest.Dataset) {
			v := ds.Vars["time"]
			v.Attrs = nil
			ds.Vars["time"] = v
		},
		"bad units": func(ds *gridtest.Dataset) {
			v := ds.Vars["time"]
			v.Attrs = map[string]any{"units": "fortnights since whenever"}
			ds.Vars["time"] = v
		},
		"no lats": func(ds *gridtest.Dataset) { delete(ds.Vars, "gridLats") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			ds := memDataset("x.nc", true)
			mutate(ds)
			_, err := Describe(context.Background(), ds, DefaultLayout())
			assert.Error(t, err)
		})
	}
}

func TestScan_IsolatesFailuresAndSkipsKnownPaths(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	good := filepath.Join(root, "2020", "good.nc")
	broken := filepath.Join(root, "2020", "broken.nc")
	unreadable := filepath.Join(root, "unreadable.nc")
	for _, p := range []string{good, broken, unreadable, filepath.Join(root, "notes.txt")} {
		touch(t, p)
	}
	open := gridtest.NewOpener(memDataset(good, true), memDataset(broken, false))
	rec := &recorder{}
	c := New(NewMemoryStore(), open, WithNotifier(rec))

	rep, err := c.Scan(ctx, root, ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{good}, rep.Indexed)
	assert.Equal(t, 0, rep.Skipped)
	require.Len(t, rep.Failed, 2)
	stages := map[string]string{}
	for _, f := range rep.Failed {
		stages[f.Path] = f.Stage
	}
	assert.Equal(t, map[string]string{broken: "describe", unreadable: "open"}, stages)
	assert.Equal(t, []string{good}, rec.seen)

	rep, err = c.Scan(ctx, root, ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, rep.Indexed)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, open.Opens(good), "indexed files are not reopened")
}

func TestScan_StrictAbortsOnDescribeFailure(t *testing.T) {
	root := t.TempDir()
	broken := filepath.Join(root, "a.nc")
	touch(t, broken)
	c := New(NewMemoryStore(), gridtest.NewOpener(memDataset(broken, false)))

	rep, err := c.Scan(context.Background(), root, ScanOptions{Strict: true})
	require.Error(t, err)
	assert.Equal(t, fault.DataSource, fault.KindOf(err))
	assert.Len(t, rep.Failed, 1)
}

func TestScan_StrictStillSkipsOpenFailures(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.nc"))
	open := gridtest.NewOpener()
	open.Err = errors.New("not a netcdf file")
	c := New(NewMemoryStore(), open)

	rep, err := c.Scan(context.Background(), root, ScanOptions{Strict: true})
	require.NoError(t, err)
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "open", rep.Failed[0].Stage)
}

func TestScan_CancelledContextStops(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.nc"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(NewMemoryStore(), gridtest.Forbid(t))

	_, err := c.Scan(ctx, root, ScanOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestScan_MissingRoot(t *testing.T) {
	c := New(NewMemoryStore(), gridtest.Forbid(t))
	_, err := c.Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), ScanOptions{})
	require.Error(t, err)
}

func TestScan_NetCDFIntoSQLite(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := ncfixture.Write(t, root, "model.nc", ncfixture.Options{
		Lat0: 10, Lon0: 0, Step: 2.5, NY: 5, NX: 5,
		Start: "2020-01-01 00:00:00", NTimes: 24,
		Depths:     []float64{0, 10},
		Resolution: 160,
	})
	st, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	c := New(st, ncreader.New(ncreader.DefaultConfig()))
	t.Cleanup(func() { _ = c.Close() })

	rep, err := c.Scan(ctx, root, ScanOptions{Strict: true})
	require.NoError(t, err)
	require.Equal(t, []string{path}, rep.Indexed)

	got, err := c.Query(ctx, jan1.Add(12*time.Hour), rect(15, 5, 5, 15))
	require.NoError(t, err)
	require.Len(t, got, 1)
	d := got[0]
	assert.Equal(t, path, d.Path)
	assert.Equal(t, jan1, d.Interval.Start)
	assert.Equal(t, jan1.Add(24*time.Hour), d.Interval.End)
	assert.Equal(t, 160.0, d.Resolution)
	assert.InDelta(t, 10, d.Coverage[0].Lat, 1e-6)
	assert.InDelta(t, 0, d.Coverage[0].Lon, 1e-6)
	assert.InDelta(t, 0, d.Coverage[2].Lat, 1e-6)
	assert.InDelta(t, 10, d.Coverage[2].Lon, 1e-6)

	got, err = c.Query(ctx, time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), rect(15, 5, 5, 15))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRun_ScansOnceWithoutInterval(t *testing.T) {
	root := t.TempDir()
	good := filepath.Join(root, "good.nc")
	touch(t, good)
	c := New(NewMemoryStore(), gridtest.NewOpener(memDataset(good, true)))

	c.Run(context.Background(), root, 0, ScanOptions{})
	all, err := c.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
