package transform

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

const twoPi = 2 * math.Pi

// JulianDay converts a UTC instant to a continuous Julian day number.
//
// Uses the compact Vallado form valid for 1900-2100:
//
//	JD = 367y - floor(7(y + floor((m+9)/12))/4) + floor(275m/9) + d + 1721013.5 + dayFraction
//
// The day fraction includes sub-second precision when present.
func JulianDay(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())

	sec := float64(t.Second()) + float64(t.Nanosecond())/1e9
	dayFraction := ((sec/60.0+float64(t.Minute()))/60.0 + float64(t.Hour())) / 24.0

	return 367.0*y -
		math.Floor(7*(y+math.Floor((m+9)/12.0))*0.25) +
		math.Floor(275*m/9.0) +
		d +
		1721013.5 +
		dayFraction
}

// GMST returns Greenwich Mean Sidereal Time in radians, in [0, 2π), for a UTC
// instant. IAU-82 polynomial (Vallado Eq 3-47), evaluated in seconds of time:
//
//	θ = 67310.54841 + (876600h + 8640184.812866)T + 0.093104T² - 6.2e-6T³
//
// where T is Julian centuries from J2000.0.
func GMST(t time.Time) float64 {
	return GMSTFromJulianDay(JulianDay(t))
}

// GMSTFromJulianDay is GMST for a precomputed Julian day.
func GMSTFromJulianDay(jd float64) float64 {
	tUT1 := (jd - j2000) / 36525.0

	// 876600h = 876600 * 3600 seconds.
	gmstSec := -6.2e-6*tUT1*tUT1*tUT1 +
		0.093104*tUT1*tUT1 +
		(876600.0*3600+8640184.812866)*tUT1 +
		67310.54841

	// 1 second of time is 1/240 degree.
	rad := math.Mod(gmstSec*(math.Pi/180.0)/240.0, twoPi)
	if rad < 0 {
		rad += twoPi
	}
	return rad
}
