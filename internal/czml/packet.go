// Package czml builds the CZML packets Cesium loads: satellite tracks from
// SP3 ephemerides and link lines from stitched contact events.
package czml

import "encoding/json"

// Packet is one CZML object. Field names and nesting follow the CZML schema.
type Packet struct {
	ID           string       `json:"id"`
	Name         string       `json:"name,omitempty"`
	Parent       string       `json:"parent,omitempty"`
	Description  string       `json:"description,omitempty"`
	Version      string       `json:"version,omitempty"`
	Clock        *Clock       `json:"clock,omitempty"`
	Availability Availability `json:"availability,omitempty"`
	Point        *Point       `json:"point,omitempty"`
	Billboard    *Billboard   `json:"billboard,omitempty"`
	Label        *Label       `json:"label,omitempty"`
	Path         *Path        `json:"path,omitempty"`
	Polyline     *Polyline    `json:"polyline,omitempty"`
	Position     *Position    `json:"position,omitempty"`
}

// Availability lists the ISO8601 intervals during which an object exists.
// A single interval marshals as a plain string.
type Availability []string

func (a Availability) MarshalJSON() ([]byte, error) {
	if len(a) == 1 {
		return json.Marshal(a[0])
	}
	return json.Marshal([]string(a))
}

// Show is either a constant boolean or a time-tagged schedule.
type Show struct {
	Value    bool
	Schedule []ShowInterval
}

// ShowInterval is one entry of a show schedule.
type ShowInterval struct {
	Interval string `json:"interval"`
	Boolean  bool   `json:"boolean"`
}

// ShowAlways returns a constant show value.
func ShowAlways(v bool) Show { return Show{Value: v} }

// ShowSchedule returns a time-tagged show value.
func ShowSchedule(entries []ShowInterval) Show {
	if entries == nil {
		entries = []ShowInterval{}
	}
	return Show{Schedule: entries}
}

// IsSchedule reports whether s is time-tagged.
func (s Show) IsSchedule() bool { return s.Schedule != nil }

func (s Show) MarshalJSON() ([]byte, error) {
	if s.Schedule != nil {
		return json.Marshal(s.Schedule)
	}
	return json.Marshal(s.Value)
}

// Color is a CZML color property.
type Color struct {
	RGBA [4]int `json:"rgba"`
}

// Material is a CZML polyline or path material. Exactly one field is set.
type Material struct {
	SolidColor   *ColorMaterial `json:"solidColor,omitempty"`
	PolylineDash *ColorMaterial `json:"polylineDash,omitempty"`
}

// ColorMaterial carries the color of a material.
type ColorMaterial struct {
	Color Color `json:"color"`
}

// Cartesian3 is a fixed 3D offset.
type Cartesian3 struct {
	Cartesian [3]float64 `json:"cartesian"`
}

// Cartesian2 is a fixed screen-space offset.
type Cartesian2 struct {
	Cartesian2 [2]float64 `json:"cartesian2"`
}

type Point struct {
	PixelSize float64 `json:"pixelSize"`
	Color     Color   `json:"color"`
	Show      Show    `json:"show"`
}

type Billboard struct {
	EyeOffset        Cartesian3 `json:"eyeOffset"`
	HorizontalOrigin string     `json:"horizontalOrigin"`
	Image            string     `json:"image"`
	PixelOffset      Cartesian2 `json:"pixelOffset"`
	Scale            float64    `json:"scale"`
	Show             Show       `json:"show"`
	VerticalOrigin   string     `json:"verticalOrigin"`
}

type Label struct {
	FillColor        Color      `json:"fillColor"`
	Font             string     `json:"font"`
	HorizontalOrigin string     `json:"horizontalOrigin"`
	OutlineColor     Color      `json:"outlineColor"`
	OutlineWidth     float64    `json:"outlineWidth"`
	PixelOffset      Cartesian2 `json:"pixelOffset"`
	Scale            float64    `json:"scale"`
	Show             Show       `json:"show"`
	Style            string     `json:"style"`
	Text             string     `json:"text"`
	VerticalOrigin   string     `json:"verticalOrigin"`
}

type Path struct {
	Show       Show     `json:"show"`
	Width      float64  `json:"width"`
	Material   Material `json:"material"`
	LeadTime   float64  `json:"leadTime"`
	TrailTime  float64  `json:"trailTime"`
	Resolution float64  `json:"resolution"`
}

type Polyline struct {
	Show          Show       `json:"show"`
	Width         float64    `json:"width"`
	Material      Material   `json:"material"`
	FollowSurface bool       `json:"followSurface"`
	Positions     References `json:"positions"`
}

// References points a property at other objects' properties, e.g. "G01#position".
type References struct {
	References []string `json:"references"`
}

// Position is a sampled, interpolated position property. Cartesian holds
// flat [time, x, y, z, ...] groups.
type Position struct {
	InterpolationAlgorithm string `json:"interpolationAlgorithm"`
	InterpolationDegree    int    `json:"interpolationDegree"`
	ReferenceFrame         string `json:"referenceFrame"`
	Epoch                  string `json:"epoch,omitempty"`
	Cartesian              []any  `json:"cartesian"`
}

// Clock configures the viewer's animation clock on the document packet.
type Clock struct {
	Interval    string  `json:"interval"`
	CurrentTime string  `json:"currentTime"`
	Multiplier  float64 `json:"multiplier"`
	Range       string  `json:"range"`
	Step        string  `json:"step"`
}

func sampledPosition(cartesian []any, epoch string) *Position {
	if cartesian == nil {
		cartesian = []any{}
	}
	return &Position{
		InterpolationAlgorithm: "LAGRANGE",
		InterpolationDegree:    2,
		ReferenceFrame:         "INERTIAL",
		Epoch:                  epoch,
		Cartesian:              cartesian,
	}
}

func label(text string, c RGB, alpha uint8, scale float64, show Show) *Label {
	return &Label{
		FillColor:        c.WithAlpha(alpha),
		Font:             "11pt Lucida Console",
		HorizontalOrigin: "LEFT",
		OutlineColor:     White.WithAlpha(alpha),
		OutlineWidth:     0.5,
		PixelOffset:      Cartesian2{Cartesian2: [2]float64{12, 0}},
		Scale:            scale,
		Show:             show,
		Style:            "FILL_AND_OUTLINE",
		Text:             text,
		VerticalOrigin:   "CENTER",
	}
}
