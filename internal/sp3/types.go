package sp3

import (
	"time"

	"github.com/star/czmlgo/internal/epoch"
	"github.com/star/czmlgo/internal/transform"
)

// Sample is one satellite position at one epoch, inertial frame, metres.
type Sample struct {
	Time     time.Time
	Position transform.Cartesian
}

// Track is the time-ascending position series for one satellite.
type Track struct {
	ID      string
	Samples []Sample
}

// Flatten returns the series as flat 4-element groups
// [iso, x, y, z, iso, x, y, z, ...], the shape CZML cartesian arrays use.
func (t *Track) Flatten() []any {
	out := make([]any, 0, len(t.Samples)*4)
	for _, s := range t.Samples {
		out = append(out, epoch.FormatISO(s.Time), s.Position.X, s.Position.Y, s.Position.Z)
	}
	return out
}

// Ephemeris is the result of parsing one SP3 text.
type Ephemeris struct {
	// Tracks keyed by satellite id (e.g. "G01").
	Tracks map[string]*Track
	// Order lists satellite ids by first appearance in the file.
	Order []string
	// Interval spans the first to the last epoch.
	Interval epoch.Interval
}

// Len returns the number of satellites.
func (e *Ephemeris) Len() int {
	return len(e.Order)
}

// SampleCount returns the total number of samples across all tracks.
func (e *Ephemeris) SampleCount() int {
	n := 0
	for _, tr := range e.Tracks {
		n += len(tr.Samples)
	}
	return n
}

// Dataset is a set of ephemerides loaded together from one source.
type Dataset struct {
	Source      string
	FetchedAt   time.Time
	Ephemerides []*Ephemeris
	// Coverage spans every ephemeris interval in the dataset.
	Coverage epoch.Interval
}

// NewDataset builds a dataset and computes its coverage.
func NewDataset(source string, fetchedAt time.Time, ephs []*Ephemeris) *Dataset {
	ds := &Dataset{
		Source:      source,
		FetchedAt:   fetchedAt,
		Ephemerides: ephs,
	}
	for i, e := range ephs {
		if i == 0 {
			ds.Coverage = e.Interval
			continue
		}
		if e.Interval.Start.Before(ds.Coverage.Start) {
			ds.Coverage.Start = e.Interval.Start
		}
		if e.Interval.End.After(ds.Coverage.End) {
			ds.Coverage.End = e.Interval.End
		}
	}
	return ds
}

// SatelliteCount returns the number of distinct satellite ids in the dataset.
func (ds *Dataset) SatelliteCount() int {
	seen := make(map[string]struct{})
	for _, e := range ds.Ephemerides {
		for _, id := range e.Order {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
