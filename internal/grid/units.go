package grid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var refLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimeUnits splits a CF time units string such as
// "days since 2020-01-01 00:00:00" into a step and a reference instant (UTC).
func ParseTimeUnits(units string) (time.Duration, time.Time, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: missing \"since\"", units)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "secs", "sec", "s":
		step = time.Second
	case "minutes", "minute", "mins", "min":
		step = time.Minute
	case "hours", "hour", "hrs", "hr", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("time units %q: unsupported unit %q", units, unit)
	}
	ref = strings.TrimSuffix(strings.TrimSpace(ref), " UTC")
	for _, layout := range refLayouts {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return step, t.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("time units %q: unparseable reference %q", units, ref)
}

// Offsets converts axis values in the given units to instants.
func Offsets(step time.Duration, ref time.Time, values []float64) ([]time.Time, error) {
	out := make([]time.Time, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("non-finite time coordinate at " + strconv.Itoa(i))
		}
		out[i] = ref.Add(time.Duration(math.Round(v * float64(step))))
	}
	return out, nil
}
