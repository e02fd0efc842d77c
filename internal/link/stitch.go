package link

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/star/czmlgo/internal/epoch"
	"github.com/star/czmlgo/internal/transform"
)

// MaxGap is the largest gap between two events that still counts as continuous.
const MaxGap = time.Second

// ErrMalformedSample is returned for a position row that is not [time, x, y, z].
var ErrMalformedSample = errors.New("malformed position row")

// span is the part of an event the continuity check looks at.
type span struct {
	gnss, leo string
	raw       string
	interval  epoch.Interval
}

func spanOf(e Event) (span, error) {
	iv, err := epoch.ParseCompactInterval(e.Interval)
	if err != nil {
		return span{}, err
	}
	return span{gnss: e.GNSS, leo: e.LEO, raw: e.Interval, interval: iv}, nil
}

// Continuous reports whether after directly continues before: same pair,
// different intervals, and after starting strictly later than before ends but
// no more than MaxGap later.
func Continuous(before, after Event) (bool, error) {
	b, err := spanOf(before)
	if err != nil {
		return false, err
	}
	a, err := spanOf(after)
	if err != nil {
		return false, err
	}
	return continuous(b, a), nil
}

func continuous(before, after span) bool {
	if before.gnss != after.gnss || before.leo != after.leo {
		return false
	}
	if before.raw == after.raw {
		return false
	}
	if !before.interval.End.Before(after.interval.Start) {
		return false
	}
	return after.interval.Start.Sub(before.interval.End) <= MaxGap
}

// PairKey returns the "gnss/leo" key of an event.
func PairKey(gnss, leo string) string {
	return gnss + "/" + leo
}

// stitchState is the fold carry: the previous event seen, retained or not,
// and the run table built so far.
type stitchState struct {
	last    span
	hasLast bool
	out     *Stitched
}

// Stitch groups events into runs per satellite pair.
//
// Events are processed in the given order. An event whose GNSS id contains
// none of keywords is dropped; an empty keyword list keeps every event. A
// kept event extends the pair's latest run when it is continuous with the
// previous event in the list, otherwise it opens a new run. The previous
// event advances on every event, including dropped ones.
func Stitch(in Links, keywords []string) (*Stitched, error) {
	window, err := epoch.ParseCompactInterval(in.Interval)
	if err != nil {
		return nil, fmt.Errorf("window interval: %w", err)
	}

	st := stitchState{
		out: &Stitched{
			Name:     in.Name,
			Interval: window,
			Pairs:    make(map[string][]Run),
		},
	}

	for i, ev := range in.Events {
		st, err = st.step(ev, keywords)
		if err != nil {
			return nil, fmt.Errorf("event %d (%s): %w", i, PairKey(ev.GNSS, ev.LEO), err)
		}
	}
	return st.out, nil
}

func (st stitchState) step(ev Event, keywords []string) (stitchState, error) {
	cur, err := spanOf(ev)
	if err != nil {
		return st, err
	}

	// The first event is compared against itself, which always opens a run.
	prev := cur
	if st.hasLast {
		prev = st.last
	}
	st.last, st.hasLast = cur, true

	if !matchesAny(ev.GNSS, keywords) {
		return st, nil
	}

	samples, err := convertRows(ev.Position)
	if err != nil {
		return st, err
	}
	part := Part{Type: ev.Type, Interval: cur.interval, Samples: samples}

	key := PairKey(ev.GNSS, ev.LEO)
	runs, seen := st.out.Pairs[key]
	if !seen {
		st.out.Order = append(st.out.Order, key)
	}
	if continuous(prev, cur) && len(runs) > 0 {
		runs[len(runs)-1] = append(runs[len(runs)-1], part)
	} else {
		runs = append(runs, Run{part})
	}
	st.out.Pairs[key] = runs
	return st, nil
}

func matchesAny(id string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(id, kw) {
			return true
		}
	}
	return false
}

// convertRows parses [time, x, y, z] rows and rotates them to the inertial
// frame. Units are left as given.
func convertRows(rows []Row) ([]Sample, error) {
	samples := make([]Sample, 0, len(rows))
	for i, row := range rows {
		if len(row) < 4 {
			return nil, fmt.Errorf("%w %d: want 4 fields, got %d", ErrMalformedSample, i, len(row))
		}
		t, err := epoch.ParseCompact(string(row[0]))
		if err != nil {
			return nil, fmt.Errorf("position row %d: %w", i, err)
		}
		var xyz [3]float64
		for j := range xyz {
			v, err := strconv.ParseFloat(strings.TrimSpace(string(row[j+1])), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w %d: coordinate %q", ErrMalformedSample, i, row[j+1])
			}
			xyz[j] = v
		}
		p := transform.Cartesian{X: xyz[0], Y: xyz[1], Z: xyz[2]}
		samples = append(samples, Sample{Time: t, Position: transform.FixedToInertial(p, t)})
	}
	return samples, nil
}
