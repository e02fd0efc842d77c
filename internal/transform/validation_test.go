package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// TestJulianDay verifies our Julian day against known values and against the
// go-satellite JDay helper, which uses the same formula.
func TestJulianDay(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{
			name:     "J2000.0 epoch",
			time:     time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
			expected: 2451545.0,
		},
		{
			name:     "Unix epoch",
			time:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 2440587.5,
		},
		{
			name:     "SP3 sample day",
			time:     time.Date(2015, 4, 11, 1, 0, 0, 0, time.UTC),
			expected: 2457123.5 + 1.0/24.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDay(tt.time)
			if diff := math.Abs(got - tt.expected); diff > 1e-9 {
				t.Errorf("JulianDay(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}

			ref := satellite.JDay(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)
			if diff := math.Abs(got - ref); diff > 1e-9 {
				t.Errorf("JulianDay(%v) = %.10f, go-satellite = %.10f (diff=%.2e)", tt.time, got, ref, diff)
			}
		})
	}
}

// TestJulianDaySubSecond checks that sub-second precision reaches the day fraction.
func TestJulianDaySubSecond(t *testing.T) {
	base := time.Date(2015, 4, 11, 1, 0, 0, 0, time.UTC)
	half := base.Add(500 * time.Millisecond)

	diff := JulianDay(half) - JulianDay(base)
	want := 0.5 / 86400.0
	if math.Abs(diff-want) > 1e-10 {
		t.Errorf("sub-second day fraction = %.3e, want %.3e", diff, want)
	}
}

// TestGMST validates our GMST against go-satellite's GSTimeFromDate (IAU-82).
func TestGMST(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
	}{
		{"J2000.0 epoch", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"Vallado example date", time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC)},
		{"SP3 sample epoch", time.Date(2015, 4, 11, 1, 0, 0, 0, time.UTC)},
		{"recent date 2026", time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			our := GMST(tt.time)
			ref := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)
			if diff := math.Abs(our - ref); diff > 1e-9 {
				t.Errorf("GMST(%v) = %.12f rad, go-satellite = %.12f rad (diff=%.2e)", tt.time, our, ref, diff)
			}
			if our < 0 || our >= twoPi {
				t.Errorf("GMST(%v) = %f outside [0, 2π)", tt.time, our)
			}
		})
	}
}

// TestRotationPreservesGeometry checks that the transform is a pure rotation:
// Z is untouched and the equatorial radius is preserved.
func TestRotationPreservesGeometry(t *testing.T) {
	positions := []Cartesian{
		{X: -11044.8058, Y: -10475.67235, Z: 21929.4182},
		{X: 6778.0, Y: 0, Z: 0},
		{X: 0, Y: 0, Z: 6978.0},
		{X: -2500.5, Y: 4100.25, Z: -5200.75},
	}
	times := []time.Time{
		time.Date(2015, 4, 11, 1, 0, 0, 0, time.UTC),
		time.Date(2015, 4, 11, 1, 0, 30, 0, time.UTC),
		time.Date(2024, 12, 31, 23, 59, 59, 999000000, time.UTC),
		time.Date(1999, 6, 1, 6, 30, 0, 0, time.UTC),
	}

	for _, p := range positions {
		for _, tm := range times {
			got := FixedToInertial(p, tm)
			if got.Z != p.Z {
				t.Errorf("Z changed at %v: got %v, want %v", tm, got.Z, p.Z)
			}
			rIn := p.X*p.X + p.Y*p.Y
			rOut := got.X*got.X + got.Y*got.Y
			if math.Abs(rIn-rOut) > 1e-9*math.Max(1, rIn) {
				t.Errorf("equatorial radius² changed at %v: %.6f -> %.6f", tm, rIn, rOut)
			}
		}
	}
}

// TestRotateZIdentity verifies that a sidereal angle of 0 or 2π is the identity.
func TestRotateZIdentity(t *testing.T) {
	p := Cartesian{X: -11044.8058, Y: -10475.67235, Z: 21929.4182}
	for _, theta := range []float64{0, twoPi} {
		got := RotateZ(p, theta)
		if math.Abs(got.X-p.X) > 1e-9 || math.Abs(got.Y-p.Y) > 1e-9 || got.Z != p.Z {
			t.Errorf("RotateZ(θ=%v) = %+v, want %+v", theta, got, p)
		}
	}
}

// TestFixedToInertialInverse rotates back with go-satellite's ECIToECEF and
// expects the original Earth-fixed position.
func TestFixedToInertialInverse(t *testing.T) {
	tests := []struct {
		name string
		ecef Cartesian
		time time.Time
	}{
		{
			name: "GPS altitude",
			ecef: Cartesian{X: -11044.8058, Y: -10475.67235, Z: 21929.4182},
			time: time.Date(2015, 4, 11, 1, 0, 0, 0, time.UTC),
		},
		{
			name: "LEO equatorial",
			ecef: Cartesian{X: 6778.0, Y: 0.0, Z: 0.0},
			time: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eci := FixedToInertial(tt.ecef, tt.time)
			back := satellite.ECIToECEF(satellite.Vector3{X: eci.X, Y: eci.Y, Z: eci.Z}, GMST(tt.time))

			const tolerance = 1e-6 // km
			if math.Abs(back.X-tt.ecef.X) > tolerance ||
				math.Abs(back.Y-tt.ecef.Y) > tolerance ||
				math.Abs(back.Z-tt.ecef.Z) > tolerance {
				t.Errorf("inverse mismatch:\n  in:   [%.6f, %.6f, %.6f]\n  back: [%.6f, %.6f, %.6f]",
					tt.ecef.X, tt.ecef.Y, tt.ecef.Z, back.X, back.Y, back.Z)
			}
		})
	}
}

// TestRotateZQuarterTurn pins the rotation direction: +X rotates towards +Y.
func TestRotateZQuarterTurn(t *testing.T) {
	got := RotateZ(Cartesian{X: 1, Y: 0, Z: 5}, math.Pi/2)
	if math.Abs(got.X) > 1e-12 || math.Abs(got.Y-1) > 1e-12 || got.Z != 5 {
		t.Errorf("RotateZ(+X, π/2) = %+v, want {0 1 5}", got)
	}
}
