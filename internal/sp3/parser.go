// Package sp3 reads SP3 orbit ephemerides into per-satellite inertial tracks
// and manages the currently loaded dataset (store, disk cache, remote fetch).
//
// Only the records needed for visualization are interpreted:
//
//	#cP2015  4 11  0  0  0.00000000 ...      header, skipped
//	*  2015  4 11  1  0  0.00000000          epoch line
//	PG01 -11044.805800 -10475.672350 21929.418200 ...   position (km, Earth-fixed)
//	VG01 ...                                  velocity, skipped
//	EOF                                       end marker
//
// Everything before the first epoch line is header and is skipped.
package sp3

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/star/czmlgo/internal/epoch"
	"github.com/star/czmlgo/internal/transform"
)

const (
	// DefaultKeyword selects every position record.
	DefaultKeyword = "P"

	epochMarker    = "*"
	velocityMarker = "V"
	endMarker      = "EOF"

	// headerScanLimit is the last line number that may hold the first epoch.
	headerScanLimit = 101

	kmToM = 1000.0
)

var (
	ErrMissingHeader     = errors.New("no epoch line found")
	ErrMalformedEpoch    = errors.New("malformed epoch line")
	ErrMalformedPosition = errors.New("malformed position line")
	ErrUnterminated      = errors.New("missing EOF marker")
)

// ParseError describes a structural failure at a specific line.
type ParseError struct {
	Line int    // 1-based line number
	Text string // raw line text
	Err  error
}

func (e *ParseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("sp3 line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("sp3 line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads an SP3 text and returns every satellite's track converted to the
// inertial frame, in metres.
//
// keyword selects position records by prefix. "P" (the default when empty)
// takes all satellites; "PG" only GPS, "PC" only BeiDou, and so on. The
// satellite id is the record token without its leading "P".
//
// Any structural problem aborts the parse with a *ParseError; a partial
// ephemeris is never returned.
func Parse(r io.Reader, keyword string) (*Ephemeris, error) {
	if keyword == "" {
		keyword = DefaultKeyword
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	eph := &Ephemeris{Tracks: make(map[string]*Track)}

	var (
		lineNo    int
		haveEpoch bool
		first     time.Time
		current   time.Time
	)

	for scanner.Scan() {
		lineNo++
		raw := strings.TrimRight(scanner.Text(), "\r")
		fields := strings.Fields(raw)

		if !haveEpoch {
			switch {
			case strings.Contains(raw, endMarker), lineNo > headerScanLimit:
				return nil, &ParseError{Line: lineNo, Text: raw, Err: ErrMissingHeader}
			case !isEpochLine(raw):
				continue
			}
			t, err := parseEpoch(fields)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Text: raw, Err: err}
			}
			first, current, haveEpoch = t, t, true
			continue
		}

		if len(fields) == 0 {
			continue
		}

		switch {
		case isEpochLine(raw):
			t, err := parseEpoch(fields)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Text: raw, Err: err}
			}
			if t.Before(current) {
				return nil, &ParseError{Line: lineNo, Text: raw,
					Err: fmt.Errorf("%w: epoch %s precedes %s", ErrMalformedEpoch, epoch.FormatISO(t), epoch.FormatISO(current))}
			}
			current = t

		case strings.Contains(fields[0], endMarker):
			eph.Interval = epoch.Interval{Start: first, End: current}
			return eph, nil

		case strings.HasPrefix(fields[0], velocityMarker):
			continue

		case strings.HasPrefix(fields[0], keyword):
			id, pos, err := parsePosition(fields)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Text: raw, Err: err}
			}
			eph.add(id, Sample{
				Time:     current,
				Position: transform.FixedToInertial(pos, current).Scale(kmToM),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading SP3 data: %w", err)
	}

	if !haveEpoch {
		return nil, &ParseError{Line: lineNo, Err: ErrMissingHeader}
	}
	return nil, &ParseError{Line: lineNo, Err: ErrUnterminated}
}

// add appends a sample, creating the track on first sight.
func (e *Ephemeris) add(id string, s Sample) {
	tr, ok := e.Tracks[id]
	if !ok {
		tr = &Track{ID: id}
		e.Tracks[id] = tr
		e.Order = append(e.Order, id)
	}
	tr.Samples = append(tr.Samples, s)
}

func isEpochLine(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), epochMarker)
}

// parseEpoch reads "* year month day hour minute [seconds]". Seconds are
// ignored; SP3 epochs are minute-aligned in practice.
func parseEpoch(fields []string) (time.Time, error) {
	if len(fields) < 6 || fields[0] != epochMarker {
		return time.Time{}, fmt.Errorf("%w: want \"* year month day hour minute\", got %d fields", ErrMalformedEpoch, len(fields))
	}

	var v [5]int
	for i := range v {
		n, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: field %d %q is not an integer", ErrMalformedEpoch, i+1, fields[i+1])
		}
		v[i] = n
	}

	t := time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], 0, 0, time.UTC)
	// time.Date normalises out-of-range values; reject them instead.
	if t.Year() != v[0] || int(t.Month()) != v[1] || t.Day() != v[2] || t.Hour() != v[3] || t.Minute() != v[4] {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d %02d:%02d is not a calendar instant", ErrMalformedEpoch, v[0], v[1], v[2], v[3], v[4])
	}
	return t, nil
}

// parsePosition reads "P<id> x y z ..." in kilometres.
func parsePosition(fields []string) (string, transform.Cartesian, error) {
	if len(fields) < 4 {
		return "", transform.Cartesian{}, fmt.Errorf("%w: want \"P<id> x y z\", got %d fields", ErrMalformedPosition, len(fields))
	}
	id := fields[0][1:]
	if id == "" {
		return "", transform.Cartesian{}, fmt.Errorf("%w: empty satellite id", ErrMalformedPosition)
	}

	var xyz [3]float64
	for i := range xyz {
		f, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return "", transform.Cartesian{}, fmt.Errorf("%w: coordinate %q: %v", ErrMalformedPosition, fields[i+1], err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", transform.Cartesian{}, fmt.Errorf("%w: coordinate %q is not finite", ErrMalformedPosition, fields[i+1])
		}
		xyz[i] = f
	}
	return id, transform.Cartesian{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
