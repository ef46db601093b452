// Package sun computes sun directions for rendering, either from explicit
// angles or from a time and geographic location.
package sun

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// Position is the sun in horizontal coordinates.
type Position struct {
	// Elevation above the horizon in degrees, -90 to 90.
	Elevation float64
	// Azimuth in degrees clockwise from north, 0 to 360.
	Azimuth float64
}

// At returns the sun position at time t for an observer at the given
// latitude and longitude in degrees (north and east positive).
func At(t time.Time, latitude, longitude float64) Position {
	p := suncalc.GetPosition(t, latitude, longitude)
	// suncalc returns radians with azimuth measured from south, west
	// positive.
	az := math.Mod(p.Azimuth*rad2deg+180, 360)
	if az < 0 {
		az += 360
	}
	return Position{Elevation: p.Altitude * rad2deg, Azimuth: az}
}

// FromZenith builds a position from a zenith angle and azimuth in degrees.
func FromZenith(zenith, azimuth float64) Position {
	return Position{Elevation: 90 - zenith, Azimuth: azimuth}
}

// Zenith returns the zenith angle in degrees.
func (p Position) Zenith() float64 {
	return 90 - p.Elevation
}

// Direction returns the unit vector towards the sun in a local frame with
// X east, Y north and Z up.
func (p Position) Direction() r3.Vec {
	el := p.Elevation * deg2rad
	az := p.Azimuth * deg2rad
	return r3.Unit(r3.Vec{
		X: math.Sin(az) * math.Cos(el),
		Y: math.Cos(az) * math.Cos(el),
		Z: math.Sin(el),
	})
}

// Below reports whether the sun is under the horizon.
func (p Position) Below() bool {
	return p.Elevation < 0
}

// ViewDirection returns the unit view vector for a camera looking at the
// given azimuth and elevation in degrees, in the same frame as Direction.
func ViewDirection(azimuth, elevation float64) r3.Vec {
	return Position{Elevation: elevation, Azimuth: azimuth}.Direction()
}
