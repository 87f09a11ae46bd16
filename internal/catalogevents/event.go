// Package catalogevents publishes and consumes catalog insert events on Kafka.
package catalogevents

import (
	"errors"
	"fmt"
	"time"

	"github.com/kproj6/featureserver/internal/core/model"
	"github.com/kproj6/featureserver/internal/geo"
)

const (
	Version   = 1
	OpIndexed = "indexed"
)

type Event struct {
	Version    int             `json:"version"`
	Op         string          `json:"op"`
	Path       string          `json:"path"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Resolution float64         `json:"resolution"`
	Corners    [4]model.LatLon `json:"corners"`
	Coverage   string          `json:"coverage"`
	Dims       map[string]int  `json:"dims,omitempty"`
	TS         time.Time       `json:"ts"`
}

func FromDescriptor(d model.DatasetDescriptor, now time.Time) (Event, error) {
	wkt, err := geo.WKT(d.Coverage)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Version:    Version,
		Op:         OpIndexed,
		Path:       d.Path,
		Start:      d.Interval.Start.UTC(),
		End:        d.Interval.End.UTC(),
		Resolution: d.Resolution,
		Corners:    d.Coverage,
		Coverage:   wkt,
		Dims:       d.Dims,
		TS:         now.UTC(),
	}, nil
}

func (e Event) Validate() error {
	if e.Version != Version {
		return fmt.Errorf("unsupported event version %d", e.Version)
	}
	if e.Op != OpIndexed {
		return fmt.Errorf("unsupported op %q", e.Op)
	}
	if e.Path == "" {
		return errors.New("missing path")
	}
	if e.End.Before(e.Start) {
		return errors.New("interval ends before it starts")
	}
	if !(e.Resolution > 0) {
		return errors.New("resolution must be positive")
	}
	return nil
}

func (e Event) Descriptor() model.DatasetDescriptor {
	return model.DatasetDescriptor{
		Path:       e.Path,
		Coverage:   e.Corners,
		Interval:   model.Interval{Start: e.Start, End: e.End},
		Resolution: e.Resolution,
		Dims:       e.Dims,
	}
}
