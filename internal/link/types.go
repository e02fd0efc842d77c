// Package link groups GNSS/LEO contact events into continuous runs per
// satellite pair and converts their positions to the inertial frame.
package link

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/star/czmlgo/internal/epoch"
	"github.com/star/czmlgo/internal/transform"
)

// Links is the decoded event file for one monitoring window.
type Links struct {
	Name     string  `json:"name"`
	Interval string  `json:"interval"` // yyyymmddHHMMSS-yyyymmddHHMMSS
	Events   []Event `json:"events"`
}

// Event is one contact between a GNSS and a LEO satellite.
type Event struct {
	GNSS     string   `json:"gnss"`
	LEO      string   `json:"leo"`
	Type     TypeCode `json:"type"`
	Position []Row    `json:"position"`
	Interval string   `json:"interval"`
}

// Row is one position sample: [yyyymmddHHMMSS, x, y, z], Earth-fixed.
type Row []Field

// TypeCode is the event type. Producers emit it as a string or a number.
type TypeCode string

func (c *TypeCode) UnmarshalJSON(data []byte) error {
	f, err := unmarshalField(data)
	if err != nil {
		return fmt.Errorf("event type: %w", err)
	}
	*c = TypeCode(f)
	return nil
}

// Field is a position row element. Coordinates may arrive as JSON numbers
// or strings; both are kept as their textual form.
type Field string

func (f *Field) UnmarshalJSON(data []byte) error {
	v, err := unmarshalField(data)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func unmarshalField(data []byte) (Field, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return Field(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", fmt.Errorf("want string or number, got %s", data)
	}
	return Field(n), nil
}

// Decode reads an event file.
func Decode(r io.Reader) (*Links, error) {
	var l Links
	if err := json.NewDecoder(r).Decode(&l); err != nil {
		return nil, fmt.Errorf("decoding event file: %w", err)
	}
	return &l, nil
}

// Sample is one inertial position of an event, in the input's units.
type Sample struct {
	Time     time.Time
	Position transform.Cartesian
}

// Part is a retained event after conversion.
type Part struct {
	Type     TypeCode
	Interval epoch.Interval
	Samples  []Sample
}

// Run is a maximal sequence of continuous parts for one satellite pair.
type Run []Part

// Span returns the run's first start to its last end.
func (r Run) Span() epoch.Interval {
	if len(r) == 0 {
		return epoch.Interval{}
	}
	return epoch.Interval{Start: r[0].Interval.Start, End: r[len(r)-1].Interval.End}
}

// Stitched is the result of grouping one window's events.
type Stitched struct {
	Name     string
	Interval epoch.Interval
	// Pairs maps "gnss/leo" to its runs in chronological order.
	Pairs map[string][]Run
	// Order lists pair keys by first appearance.
	Order []string
}

// RunCount returns the total number of runs across all pairs.
func (s *Stitched) RunCount() int {
	n := 0
	for _, runs := range s.Pairs {
		n += len(runs)
	}
	return n
}

// Flatten returns every sample of a pair's runs as [iso, x, y, z, ...], in run
// order then in-run order.
func Flatten(runs []Run) []any {
	var out []any
	for _, run := range runs {
		for _, p := range run {
			for _, s := range p.Samples {
				out = append(out, epoch.FormatISO(s.Time), s.Position.X, s.Position.Y, s.Position.Z)
			}
		}
	}
	return out
}
