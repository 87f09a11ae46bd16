package grid

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kproj6/featureserver/internal/core/observability"
)

// Cache keeps recently used read-only datasets open and shares them between
// callers. Every Open must be paired with Close on the returned dataset; the
// underlying file is closed once it has been evicted and released by all holders.
type Cache struct {
	next Opener

	mu      sync.Mutex
	entries *lru.Cache[string, *entry]
	closed  bool
}

type entry struct {
	ds      Dataset
	refs    int
	evicted bool
	// reads on one handle are serialized; the decoder seeks a shared file
	readMu sync.Mutex
}

// NewCache wraps next. A size of zero or less disables sharing and returns next itself.
func NewCache(next Opener, size int) (Opener, error) {
	if size <= 0 {
		return next, nil
	}
	c := &Cache{next: next}
	l, err := lru.NewWithEvict[string, *entry](size, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("handle cache: %w", err)
	}
	c.entries = l
	return c, nil
}

// onEvict runs with c.mu held.
func (c *Cache) onEvict(_ string, e *entry) {
	e.evicted = true
	observability.ObserveHandleCache("evict")
	if e.refs == 0 {
		_ = e.ds.Close()
	}
}

func (c *Cache) Open(ctx context.Context, path string) (Dataset, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("handle cache closed")
	}
	if e, ok := c.entries.Get(path); ok {
		e.refs++
		c.mu.Unlock()
		observability.ObserveHandleCache("hit")
		return &shared{Dataset: e.ds, c: c, e: e}, nil
	}
	c.mu.Unlock()
	observability.ObserveHandleCache("miss")

	ds, err := c.next.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries.Get(path); ok {
		// lost a race with another opener
		_ = ds.Close()
		e.refs++
		return &shared{Dataset: e.ds, c: c, e: e}, nil
	}
	e := &entry{ds: ds, refs: 1}
	if c.closed {
		e.evicted = true
	} else {
		c.entries.Add(path, e)
	}
	return &shared{Dataset: ds, c: c, e: e}, nil
}

func (c *Cache) release(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.refs--
	if e.refs == 0 && e.evicted {
		_ = e.ds.Close()
	}
}

// Len reports how many datasets are held open.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Close evicts every entry. Handles still in use close on their last release.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.entries.Purge()
	return nil
}

type shared struct {
	Dataset
	c    *Cache
	e    *entry
	once sync.Once
}

func (s *shared) CoordSystem(variable string) (CoordSystem, error) {
	s.e.readMu.Lock()
	defer s.e.readMu.Unlock()
	return s.Dataset.CoordSystem(variable)
}

func (s *shared) ReadSlice(ctx context.Context, variable string, c Crop, t, z Index) (Array, error) {
	s.e.readMu.Lock()
	defer s.e.readMu.Unlock()
	return s.Dataset.ReadSlice(ctx, variable, c, t, z)
}

func (s *shared) ReadProfile(ctx context.Context, variable string, t Index, x, y int) ([]float64, error) {
	s.e.readMu.Lock()
	defer s.e.readMu.Unlock()
	return s.Dataset.ReadProfile(ctx, variable, t, x, y)
}

func (s *shared) ReadStrided(ctx context.Context, variable string, begin, count, stride []int) (Array, error) {
	s.e.readMu.Lock()
	defer s.e.readMu.Unlock()
	return s.Dataset.ReadStrided(ctx, variable, begin, count, stride)
}

func (s *shared) VarShape(variable string) ([]int, error) {
	s.e.readMu.Lock()
	defer s.e.readMu.Unlock()
	return s.Dataset.VarShape(variable)
}

func (s *shared) Attribute(variable, name string) (any, bool) {
	s.e.readMu.Lock()
	defer s.e.readMu.Unlock()
	return s.Dataset.Attribute(variable, name)
}

func (s *shared) Close() error {
	s.once.Do(func() { s.c.release(s.e) })
	return nil
}
