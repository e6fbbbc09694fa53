// Package tma estimates a contact's track from bearing-only observations
// (target motion analysis).
//
// Positions are in nautical miles on a flat plane with +Y north and +X east,
// bearings and courses are degrees clockwise from north, speeds are knots and
// times are offsets from the start of the plot.
package tma

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

func deg2rad(degrees float64) float64 { return degrees * math.Pi / 180 }

func rad2deg(radians float64) float64 { return radians * 180 / math.Pi }

// BearingVector returns the unit vector pointing along bearing.
func BearingVector(bearing float64) r2.Vec {
	r := deg2rad(bearing)
	return r2.Vec{X: math.Sin(r), Y: math.Cos(r)}
}

// crossVector returns v rotated 90 degrees anticlockwise.
func crossVector(v r2.Vec) r2.Vec {
	return r2.Vec{X: v.Y, Y: -v.X}
}

// Travel returns the point distance away from p along bearing.
func Travel(p r2.Vec, bearing, distance float64) r2.Vec {
	return r2.Add(p, r2.Scale(distance, BearingVector(bearing)))
}

// NormalizeBearing maps a bearing into [0, 360).
func NormalizeBearing(bearing float64) float64 {
	b := math.Mod(bearing, 360)
	if b < 0 {
		b += 360
	}
	return b
}

// BearingTo returns the bearing of to as seen from from.
func BearingTo(from, to r2.Vec) float64 {
	d := r2.Sub(to, from)
	return NormalizeBearing(rad2deg(math.Atan2(d.X, d.Y)))
}

// Course returns the course of the direction v.
func Course(v r2.Vec) float64 {
	return BearingTo(r2.Vec{}, v)
}
