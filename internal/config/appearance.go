// Package config loads the scene appearance file: colors, icons and line
// styles applied when building CZML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/star/czmlgo/internal/czml"
)

type Appearance struct {
	Mode  czml.Mode   `yaml:"mode"`
	Orbit OrbitConfig `yaml:"orbit"`
	Event EventConfig `yaml:"event"`
}

type OrbitConfig struct {
	GNSSColor    map[czml.Family]string `yaml:"gnss_color"`
	LEOColor     string                 `yaml:"leo_color"`
	LEOBillboard string                 `yaml:"leo_billboard"`
	LEOPath      bool                   `yaml:"leo_path"`
	Keywords     []string               `yaml:"keywords"`
}

type EventConfig struct {
	Color    string         `yaml:"color"`
	Line     czml.LineStyle `yaml:"line"`
	Label    bool           `yaml:"label"`
	Target   string         `yaml:"target"`
	Keywords []string       `yaml:"keywords"`
}

var defaultGNSSColor = map[czml.Family]string{
	czml.GPS: "#4caf50",
	czml.BDS: "#f44336",
	czml.GAL: "#2196f3",
	czml.GLO: "#ffeb3b",
}

// Default returns the built-in appearance.
func Default() *Appearance {
	a := &Appearance{}
	a.applyDefaults()
	return a
}

// LoadAppearance reads a YAML appearance file. An empty path yields Default().
func LoadAppearance(path string) (*Appearance, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var a Appearance
	if err := yaml.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	a.applyDefaults()
	if err := a.validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Appearance) applyDefaults() {
	if a.Mode == "" {
		a.Mode = czml.Mode3D
	}
	if a.Orbit.GNSSColor == nil {
		a.Orbit.GNSSColor = make(map[czml.Family]string, len(defaultGNSSColor))
	}
	for f, c := range defaultGNSSColor {
		if a.Orbit.GNSSColor[f] == "" {
			a.Orbit.GNSSColor[f] = c
		}
	}
	if a.Orbit.LEOColor == "" {
		a.Orbit.LEOColor = "#ffffff"
	}
	if a.Orbit.LEOBillboard == "" {
		a.Orbit.LEOBillboard = "/img/satellite.png"
	}
	if a.Event.Color == "" {
		a.Event.Color = "#ffc107"
	}
	if a.Event.Line == "" {
		a.Event.Line = czml.LineSolid
	}
}

func (a *Appearance) validate() error {
	switch a.Mode {
	case czml.Mode2D, czml.Mode3D:
	default:
		return fmt.Errorf("mode must be 2D or 3D, got %q", a.Mode)
	}
	switch a.Event.Line {
	case czml.LineSolid, czml.LineDash:
	default:
		return fmt.Errorf("event.line must be solid or dash, got %q", a.Event.Line)
	}
	for f, c := range a.Orbit.GNSSColor {
		if f.Prefix() == "" {
			return fmt.Errorf("orbit.gnss_color: unknown constellation %q", f)
		}
		if _, err := czml.ParseHexColor(c); err != nil {
			return fmt.Errorf("orbit.gnss_color.%s: %w", f, err)
		}
	}
	if _, err := czml.ParseHexColor(a.Orbit.LEOColor); err != nil {
		return fmt.Errorf("orbit.leo_color: %w", err)
	}
	if _, err := czml.ParseHexColor(a.Event.Color); err != nil {
		return fmt.Errorf("event.color: %w", err)
	}
	return nil
}

// OrbitStyle converts the orbit section for czml.OrbitPackets. Colors were
// checked by validate.
func (a *Appearance) OrbitStyle() czml.OrbitStyle {
	colors := make(map[czml.Family]czml.RGB, len(a.Orbit.GNSSColor))
	for f, c := range a.Orbit.GNSSColor {
		colors[f] = czml.MustParseHexColor(c)
	}
	return czml.OrbitStyle{
		GNSSColor:    colors,
		LEOColor:     czml.MustParseHexColor(a.Orbit.LEOColor),
		LEOBillboard: a.Orbit.LEOBillboard,
		Keywords:     a.Orbit.Keywords,
		Mode:         a.Mode,
		LEOPath:      a.Orbit.LEOPath,
	}
}

// EventStyle converts the event section for czml.EventPackets.
func (a *Appearance) EventStyle() czml.EventStyle {
	return czml.EventStyle{
		Color: czml.MustParseHexColor(a.Event.Color),
		Line:  a.Event.Line,
		Mode:  a.Mode,
		Label: a.Event.Label,
	}
}
