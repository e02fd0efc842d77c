// Package epoch holds the time primitives shared by the parsers and the CZML
// synthesizers: compact event timestamps, ISO8601 instants and intervals, and
// the human-readable description format.
package epoch

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInstant is returned when a date string cannot be turned into a
// calendar instant.
var ErrInvalidInstant = errors.New("invalid instant")

const (
	// compactLayout is the event-file timestamp, e.g. 20150411010000.
	compactLayout = "20060102150405"

	// isoLayout matches JavaScript's Date.toISOString, which Cesium accepts
	// everywhere an ISO8601 date is expected.
	isoLayout = "2006-01-02T15:04:05.000Z"

	displayLayout = "2006-01-02 15:04:05"
)

// ParseCompact parses a yyyymmddHHMMSS timestamp as UTC.
func ParseCompact(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(compactLayout) {
		return time.Time{}, fmt.Errorf("%w: %q is not yyyymmddHHMMSS", ErrInvalidInstant, s)
	}
	t, err := time.ParseInLocation(compactLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidInstant, s, err)
	}
	return t, nil
}

// FormatISO renders t in UTC with millisecond precision.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseISO parses an ISO8601 instant such as 2015-04-11T01:00:00.000Z.
func ParseISO(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidInstant, s, err)
	}
	return t.UTC(), nil
}

// FormatTime renders t as "yyyy-MM-dd HH:mm:ss" in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(displayLayout)
}

// Interval is a closed time span with Start <= End.
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval returns the interval [start, end], rejecting reversed bounds.
func NewInterval(start, end time.Time) (Interval, error) {
	if end.Before(start) {
		return Interval{}, fmt.Errorf("%w: interval end %s before start %s",
			ErrInvalidInstant, FormatISO(end), FormatISO(start))
	}
	return Interval{Start: start.UTC(), End: end.UTC()}, nil
}

// String renders the interval as ISO8601 "start/end".
func (iv Interval) String() string {
	return FormatISO(iv.Start) + "/" + FormatISO(iv.End)
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// IsZero reports whether neither bound has been set.
func (iv Interval) IsZero() bool {
	return iv.Start.IsZero() && iv.End.IsZero()
}

// ParseCompactInterval parses "yyyymmddHHMMSS-yyyymmddHHMMSS".
func ParseCompactInterval(s string) (Interval, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return Interval{}, fmt.Errorf("%w: interval %q is not start-end", ErrInvalidInstant, s)
	}
	start, err := ParseCompact(parts[0])
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseCompact(parts[1])
	if err != nil {
		return Interval{}, err
	}
	return NewInterval(start, end)
}

// ParseInterval parses an ISO8601 "start/end" interval.
func ParseInterval(s string) (Interval, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Interval{}, fmt.Errorf("%w: interval %q is not start/end", ErrInvalidInstant, s)
	}
	st, err := ParseISO(start)
	if err != nil {
		return Interval{}, err
	}
	en, err := ParseISO(end)
	if err != nil {
		return Interval{}, err
	}
	return NewInterval(st, en)
}
