// Package transform converts Earth-fixed satellite positions into the inertial
// frame Cesium uses for INERTIAL reference-frame position properties.
//
// Method: a single rotation about the polar axis by Greenwich Mean Sidereal
// Time. Polar motion, nutation and the equation of the equinoxes are ignored,
// which is well below what a globe-scale visualization can show.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"
)

// Cartesian is a position in a right-handed Earth-centred frame. The frame
// (Earth-fixed or inertial) is determined by the function that produced it.
type Cartesian struct {
	X, Y, Z float64
}

// Scale returns c with every component multiplied by k.
func (c Cartesian) Scale(k float64) Cartesian {
	return Cartesian{X: c.X * k, Y: c.Y * k, Z: c.Z * k}
}

// FixedToInertial rotates an Earth-fixed position into the inertial frame at
// the given UTC instant. Units are preserved.
func FixedToInertial(p Cartesian, t time.Time) Cartesian {
	return RotateZ(p, GMST(t))
}

// RotateZ rotates p by theta radians about the Z (polar) axis:
//
//	[X]     [cos θ  -sin θ  0][X]
//	[Y]  =  [sin θ   cos θ  0][Y]
//	[Z]eci  [  0       0    1][Z]ecf
//
// Z is left untouched.
func RotateZ(p Cartesian, theta float64) Cartesian {
	cosT := math.Cos(theta)
	sinT := math.Sin(theta)
	return Cartesian{
		X: p.X*cosT - p.Y*sinT,
		Y: p.X*sinT + p.Y*cosT,
		Z: p.Z,
	}
}
