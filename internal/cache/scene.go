package cache

import (
	"sync"

	"github.com/star/czmlgo/internal/czml"
	"github.com/star/czmlgo/internal/epoch"
	"github.com/star/czmlgo/internal/link"
	"github.com/star/czmlgo/internal/metrics"
	"github.com/star/czmlgo/internal/sp3"
)

// Scene is everything needed to build one CZML document.
type Scene struct {
	Name        string
	Ephemerides []*sp3.Ephemeris
	Events      *link.Stitched // optional
	OrbitStyle  czml.OrbitStyle
	EventStyle  czml.EventStyle
	// Target overrides the far end of event lines; empty keeps each LEO id.
	Target string
}

// Clock returns the span the document clock loops over: the union of the
// ephemeris coverage and the event window.
func (s Scene) Clock() epoch.Interval {
	var iv epoch.Interval
	widen := func(o epoch.Interval) {
		if o.IsZero() {
			return
		}
		if iv.IsZero() {
			iv = o
			return
		}
		if o.Start.Before(iv.Start) {
			iv.Start = o.Start
		}
		if o.End.After(iv.End) {
			iv.End = o.End
		}
	}
	for _, e := range s.Ephemerides {
		widen(e.Interval)
	}
	if s.Events != nil {
		widen(s.Events.Interval)
	}
	return iv
}

// BuildResult is a built document with its packet counts.
type BuildResult struct {
	Packets []czml.Packet
	Clock   epoch.Interval
	Orbits  int
	Events  int
}

// Build assembles the full document. Orbit and event packets come from
// independent inputs and are built concurrently.
func Build(s Scene) BuildResult {
	clock := s.Clock()

	var (
		orbits []czml.Packet
		events []czml.Packet
		wg     sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		orbits = czml.OrbitPackets(s.Ephemerides, s.OrbitStyle, orbitDisplay(s.Ephemerides, clock))
	}()

	if s.Events != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events = czml.EventPackets(s.Events, s.EventStyle, s.Target)
		}()
	}
	wg.Wait()

	body := make([]czml.Packet, 0, len(orbits)+len(events)+1)
	body = append(body, orbits...)
	if s.Events != nil {
		body = append(body, czml.EventGroup(s.Events.Interval))
		body = append(body, events...)
	}

	metrics.AddPackets("orbit", len(orbits))
	metrics.AddPackets("event", len(events))
	metrics.AddPackets("document", 1)

	return BuildResult{
		Packets: czml.Document(s.Name, clock, body...),
		Clock:   clock,
		Orbits:  len(orbits),
		Events:  len(events),
	}
}

// orbitDisplay is the combined ephemeris coverage, falling back to the
// document clock when no ephemeris carries an interval.
func orbitDisplay(ephs []*sp3.Ephemeris, clock epoch.Interval) epoch.Interval {
	if iv := (Scene{Ephemerides: ephs}).Clock(); !iv.IsZero() {
		return iv
	}
	return clock
}
