package czml

import (
	"fmt"
	"strings"
	"time"

	"github.com/star/czmlgo/internal/epoch"
	"github.com/star/czmlgo/internal/link"
)

// LineStyle is how a link line is drawn.
type LineStyle string

const (
	LineSolid LineStyle = "solid"
	LineDash  LineStyle = "dash"
)

const (
	eventPointSize  = 8
	eventLabelScale = 0.5
)

// EventStyle controls how link lines look.
type EventStyle struct {
	Color RGB
	Line  LineStyle
	Mode  Mode
	Label bool
}

// EventPackets returns one packet per satellite pair, in first-appearance
// order. Each packet is parented to the window's group packet (see
// EventGroup). When target is non-empty it replaces the LEO id as the far end
// of every line.
func EventPackets(s *link.Stitched, style EventStyle, target string) []Packet {
	window := s.Interval.String()

	width, alpha := 0.8, uint8(255)
	if style.Line == LineDash {
		width, alpha = 0.3, 160
	}
	c := style.Color.WithAlpha(alpha)

	packets := make([]Packet, 0, len(s.Order))
	for _, key := range s.Order {
		runs := s.Pairs[key]
		gnss, leo, _ := strings.Cut(key, "/")
		far := leo
		if target != "" {
			far = target
		}

		schedule, avail := Visibility(s.Interval, runs)
		show := ShowSchedule(schedule)
		lineShow := show
		if style.Mode == Mode2D {
			lineShow = ShowAlways(false)
		}

		p := Packet{
			ID:           key + "/" + window,
			Name:         key,
			Parent:       window,
			Description:  fmt.Sprintf("<p>GNSS:%s LEO:%s</p>", gnss, leo),
			Availability: avail,
			Polyline: &Polyline{
				Show:          lineShow,
				Width:         width,
				Material:      lineMaterial(style.Line, c),
				FollowSurface: false,
				Positions:     References{References: []string{gnss + "#position", far + "#position"}},
			},
			Point: &Point{
				PixelSize: eventPointSize,
				Color:     c,
				Show:      show,
			},
			Position: sampledPosition(link.Flatten(runs), ""),
		}
		if style.Label {
			p.Label = label(gnss, style.Color, alpha, eventLabelScale, show)
		}
		packets = append(packets, p)
	}
	return packets
}

// Visibility builds the show schedule and availability for a pair's runs.
// Hidden entries cover the gaps, visible entries each run's span; together
// they tile window exactly. Runs are clipped to the window, and a run that
// does not touch the window is left out.
func Visibility(window epoch.Interval, runs []link.Run) ([]ShowInterval, Availability) {
	var (
		schedule []ShowInterval
		avail    Availability
	)
	cursor := window.Start

	for _, run := range runs {
		sp := run.Span()
		if sp.End.Before(window.Start) || sp.Start.After(window.End) {
			continue
		}
		start := clamp(sp.Start, cursor, window.End)
		end := clamp(sp.End, start, window.End)

		if start.After(cursor) {
			schedule = append(schedule, ShowInterval{Interval: span(cursor, start), Boolean: false})
		}
		visible := span(start, end)
		schedule = append(schedule, ShowInterval{Interval: visible, Boolean: true})
		avail = append(avail, visible)
		cursor = end
	}

	if cursor.Before(window.End) || len(schedule) == 0 {
		schedule = append(schedule, ShowInterval{Interval: span(cursor, window.End), Boolean: false})
	}
	return schedule, avail
}

func span(start, end time.Time) string {
	return epoch.Interval{Start: start, End: end}.String()
}

func clamp(t, lo, hi time.Time) time.Time {
	if t.Before(lo) {
		return lo
	}
	if t.After(hi) {
		return hi
	}
	return t
}

func lineMaterial(ls LineStyle, c Color) Material {
	if ls == LineDash {
		return Material{PolylineDash: &ColorMaterial{Color: c}}
	}
	return Material{SolidColor: &ColorMaterial{Color: c}}
}
