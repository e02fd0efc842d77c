package czml

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidColor is returned for a color that is not #rrggbb.
var ErrInvalidColor = errors.New("invalid color")

// RGB is an opaque color; alpha is chosen per use.
type RGB [3]uint8

// White is used for label outlines.
var White = RGB{255, 255, 255}

// ParseHexColor parses "#rrggbb".
func ParseHexColor(s string) (RGB, error) {
	s = strings.TrimSpace(s)
	if len(s) != 7 || s[0] != '#' {
		return RGB{}, fmt.Errorf("%w: %q is not #rrggbb", ErrInvalidColor, s)
	}
	var c RGB
	for i := range c {
		v, err := strconv.ParseUint(s[1+2*i:3+2*i], 16, 8)
		if err != nil {
			return RGB{}, fmt.Errorf("%w: %q is not #rrggbb", ErrInvalidColor, s)
		}
		c[i] = uint8(v)
	}
	return c, nil
}

// MustParseHexColor is ParseHexColor for compile-time constants.
func MustParseHexColor(s string) RGB {
	c, err := ParseHexColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// WithAlpha returns the CZML color property for c at the given alpha.
func (c RGB) WithAlpha(alpha uint8) Color {
	return Color{RGBA: [4]int{int(c[0]), int(c[1]), int(c[2]), int(alpha)}}
}

// Hex renders c as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
