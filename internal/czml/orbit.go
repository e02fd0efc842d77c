package czml

import (
	"strings"

	"github.com/star/czmlgo/internal/epoch"
	"github.com/star/czmlgo/internal/sp3"
)

// Mode is the viewer's scene mode.
type Mode string

const (
	Mode2D Mode = "2D"
	Mode3D Mode = "3D"
)

// Orbit appearance constants.
const (
	gnssPixelSize  = 5
	gnssAlpha      = 128
	gnssLabelScale = 1
	gnssTrailTime  = 43200 // seconds, about one GNSS orbital period

	leoAlpha          = 200
	leoBillboardScale = 0.05
	leoLabelScale     = 2
	leoTrailTime      = 12800

	pathWidth      = 0.5
	pathResolution = 240
)

// OrbitStyle controls how satellite tracks look.
type OrbitStyle struct {
	GNSSColor    map[Family]RGB
	LEOColor     RGB
	LEOBillboard string // image URL or data URI
	// Keywords keeps only satellites whose id contains one of them. Empty
	// keeps all.
	Keywords []string
	Mode     Mode
	// LEOPath adds a trailing path to non-GNSS satellites as well.
	LEOPath bool
}

// OrbitPackets returns one packet per satellite track across all ephemerides,
// in ephemeris order then file order. display is both the availability of
// every packet and the epoch of its position samples.
func OrbitPackets(ephs []*sp3.Ephemeris, style OrbitStyle, display epoch.Interval) []Packet {
	window := display.String()
	start := epoch.FormatISO(display.Start)
	description := epoch.FormatTime(display.Start) + "->" + epoch.FormatTime(display.End)

	pathShow := ShowSchedule([]ShowInterval{{Interval: window, Boolean: true}})
	if style.Mode == Mode2D {
		pathShow = ShowAlways(false)
	}

	packets := make([]Packet, 0)
	for _, eph := range ephs {
		for _, id := range eph.Order {
			if !containsAny(id, style.Keywords) {
				continue
			}
			p := Packet{
				ID:           id,
				Name:         "satellite",
				Availability: Availability{window},
				Description:  id + "\r\n" + description,
				Position:     sampledPosition(eph.Tracks[id].Flatten(), start),
			}

			if fam, ok := FamilyOf(id); ok {
				c, ok := style.GNSSColor[fam]
				if !ok {
					c = style.LEOColor
				}
				p.Point = &Point{
					PixelSize: gnssPixelSize,
					Color:     c.WithAlpha(gnssAlpha),
					Show:      ShowAlways(true),
				}
				p.Label = label(id, c, gnssAlpha, gnssLabelScale, ShowAlways(true))
				p.Path = trailingPath(c, gnssAlpha, gnssTrailTime, pathShow)
			} else {
				p.Billboard = &Billboard{
					EyeOffset:        Cartesian3{},
					HorizontalOrigin: "CENTER",
					Image:            style.LEOBillboard,
					PixelOffset:      Cartesian2{},
					Scale:            leoBillboardScale,
					Show:             ShowAlways(true),
					VerticalOrigin:   "CENTER",
				}
				p.Label = label(id, style.LEOColor, leoAlpha, leoLabelScale, ShowAlways(true))
				if style.LEOPath {
					p.Path = trailingPath(style.LEOColor, leoAlpha, leoTrailTime, pathShow)
				}
			}
			packets = append(packets, p)
		}
	}
	return packets
}

func trailingPath(c RGB, alpha uint8, trail float64, show Show) *Path {
	return &Path{
		Show:       show,
		Width:      pathWidth,
		Material:   Material{SolidColor: &ColorMaterial{Color: c.WithAlpha(alpha)}},
		LeadTime:   0,
		TrailTime:  trail,
		Resolution: pathResolution,
	}
}

func containsAny(id string, keywords []string) bool {
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
