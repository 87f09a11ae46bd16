// Package catalog indexes gridded dataset files by spatial coverage and time
// interval and selects the file that answers a query.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kproj6/featureserver/internal/core/fault"
	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/core/observability"
	"github.com/kproj6/featureserver/internal/geo"
	"github.com/kproj6/featureserver/internal/grid"
)

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type Config struct {
	Driver string
	// Path is the SQLite database file; unused by the memory driver.
	Path string
}

// Notifier is told about every newly indexed dataset.
type Notifier interface {
	Indexed(ctx context.Context, d model.DatasetDescriptor)
}

type Option func(*Catalog)

func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Catalog) { c.notify = n }
}

func WithLayout(l Layout) Option {
	return func(c *Catalog) { c.layout = l }
}

type Catalog struct {
	store  Store
	open   grid.Opener
	layout Layout
	log    *slog.Logger
	notify Notifier
	scanMu sync.Mutex
}

// Open initializes the backing store named by cfg. Any failure is a
// CatalogUnavailable fault.
func Open(ctx context.Context, cfg Config, open grid.Opener, opts ...Option) (*Catalog, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case DriverSQLite, "":
		st, err = OpenSQLite(ctx, cfg.Path)
	case DriverMemory:
		st = NewMemoryStore()
	default:
		err = fault.Unavailable(fmt.Sprintf("unknown catalog driver %q", cfg.Driver), nil)
	}
	if err != nil {
		return nil, err
	}
	return New(st, open, opts...), nil
}

func New(st Store, open grid.Opener, opts ...Option) *Catalog {
	c := &Catalog{
		store:  st,
		open:   open,
		layout: DefaultLayout(),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Catalog) StoreName() string { return c.store.Name() }

// Query returns every dataset whose coverage polygon intersects r and whose
// interval contains t. Order is unspecified.
func (c *Catalog) Query(ctx context.Context, t time.Time, r model.Rect) ([]model.DatasetDescriptor, error) {
	r = r.Normalized()
	start := time.Now()
	cands, err := c.store.Candidates(ctx, t, r)
	observability.ObserveCatalogQuery(c.store.Name(), time.Since(start).Seconds())
	if err != nil {
		return nil, fault.Unavailable("catalog query", err)
	}
	out := cands[:0]
	for _, d := range cands {
		if !d.Interval.Contains(t) {
			continue
		}
		if !geo.IntersectsRect(geo.CoveragePolygon(d.Coverage), r) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// SortNewest orders ds by interval start descending, then by finer
// resolution, then by path.
func SortNewest(ds []model.DatasetDescriptor) {
	slices.SortStableFunc(ds, func(a, b model.DatasetDescriptor) int {
		if c := b.Interval.Start.Compare(a.Interval.Start); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Resolution, b.Resolution); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
}

// Latest picks the dataset that answers a query at (t, r).
func (c *Catalog) Latest(ctx context.Context, t time.Time, r model.Rect) (model.DatasetDescriptor, error) {
	ds, err := c.Query(ctx, t, r)
	if err != nil {
		return model.DatasetDescriptor{}, err
	}
	if len(ds) == 0 {
		return model.DatasetDescriptor{}, fault.Rangef("no dataset covers %s at %s", r.Normalized(), t.UTC().Format(time.RFC3339))
	}
	SortNewest(ds)
	return ds[0], nil
}

// Bounds returns the union envelope of every dataset and the finest
// resolution among them.
func (c *Catalog) Bounds(ctx context.Context) (model.Rect, float64, error) {
	all, err := c.store.All(ctx)
	if err != nil {
		return model.Rect{}, 0, fault.Unavailable("catalog listing", err)
	}
	if len(all) == 0 {
		return model.Rect{}, 0, fault.Rangef("catalog is empty")
	}
	env := all[0].Envelope()
	res := all[0].Resolution
	for _, d := range all[1:] {
		env = env.Union(d.Envelope())
		res = min(res, d.Resolution)
	}
	return env, res, nil
}

func (c *Catalog) All(ctx context.Context) ([]model.DatasetDescriptor, error) {
	all, err := c.store.All(ctx)
	if err != nil {
		return nil, fault.Unavailable("catalog listing", err)
	}
	return all, nil
}

func (c *Catalog) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fault.Unavailable("catalog ping", err)
	}
	return nil
}

func (c *Catalog) Close() error { return c.store.Close() }

// Run scans root immediately and then every interval until ctx is done.
func (c *Catalog) Run(ctx context.Context, root string, every time.Duration, opts ScanOptions) {
	scan := func() {
		if _, err := c.Scan(ctx, root, opts); err != nil && ctx.Err() == nil {
			c.log.Error("periodic scan failed", "root", root, "err", err)
		}
	}
	scan()
	if every <= 0 {
		return
	}
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			scan()
		}
	}
}

// Apply inserts a descriptor produced elsewhere, such as by a peer's scan.
func (c *Catalog) Apply(ctx context.Context, d model.DatasetDescriptor) (bool, error) {
	ok, err := c.store.Insert(ctx, d)
	if err != nil {
		return false, fault.Unavailable("catalog insert", err)
	}
	return ok, nil
}

// Covering picks the newest dataset whose coverage intersects r at any time.
// It serves time-invariant features such as bathymetry.
func (c *Catalog) Covering(ctx context.Context, r model.Rect) (model.DatasetDescriptor, error) {
	r = r.Normalized()
	all, err := c.All(ctx)
	if err != nil {
		return model.DatasetDescriptor{}, err
	}
	out := all[:0]
	for _, d := range all {
		if geo.IntersectsRect(geo.CoveragePolygon(d.Coverage), r) {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return model.DatasetDescriptor{}, fault.Rangef("no dataset covers %s", r)
	}
	SortNewest(out)
	return out[0], nil
}
