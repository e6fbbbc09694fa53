package tma

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrBeyondTrack is returned when a position is requested past the end of
// an observer's recorded movements.
var ErrBeyondTrack = errors.New("tma: time is beyond the end of the track")

// Movement is one leg of an observer's track.
type Movement interface {
	// Duration returns how long the leg lasts.
	Duration() time.Duration
	// Offset returns the displacement from the start of the leg after elapsed.
	Offset(elapsed time.Duration) r2.Vec
}

// Straight is a leg at constant course and speed.
type Straight struct {
	Length time.Duration
	Course float64
	Speed  float64
}

func (s Straight) Duration() time.Duration { return s.Length }

func (s Straight) Offset(elapsed time.Duration) r2.Vec {
	return Travel(r2.Vec{}, s.Course, s.Speed*elapsed.Hours())
}

// TurnDirection is the side a Curved leg turns to.
type TurnDirection string

const (
	Port      TurnDirection = "port"
	Starboard TurnDirection = "starboard"
)

// Curved is a constant-rate turn from InitialCourse to FinalCourse.
type Curved struct {
	Length        time.Duration
	InitialCourse float64
	FinalCourse   float64
	Direction     TurnDirection
	Speed         float64
}

func (c Curved) Duration() time.Duration { return c.Length }

// turn returns the angle turned in degrees, the turn radius and the centre
// of the turning circle relative to the start of the leg.
func (c Curved) turn() (float64, float64, r2.Vec) {
	var magnitude, radiusBearing float64
	if c.Direction == Port {
		magnitude = NormalizeBearing(c.InitialCourse - c.FinalCourse)
		radiusBearing = c.InitialCourse - 90
	} else {
		magnitude = NormalizeBearing(c.FinalCourse - c.InitialCourse)
		radiusBearing = c.InitialCourse + 90
	}
	distance := c.Speed * c.Length.Hours()
	radius := distance * (360 / magnitude) / (2 * math.Pi)
	return magnitude, radius, Travel(r2.Vec{}, radiusBearing, radius)
}

func (c Curved) Offset(elapsed time.Duration) r2.Vec {
	magnitude, radius, centre := c.turn()
	if magnitude == 0 {
		return Straight{Length: c.Length, Course: c.InitialCourse, Speed: c.Speed}.Offset(elapsed)
	}
	degrees := magnitude * float64(elapsed) / float64(c.Length)
	if c.Direction == Port {
		degrees = -degrees
	}
	inverse := BearingTo(centre, r2.Vec{})
	return Travel(centre, inverse+degrees, radius)
}

// Track is an observer's path: a start position followed by consecutive legs.
type Track struct {
	Start     r2.Vec
	Movements []Movement
}

// Location returns the observer's position at elapsed time from the start
// of the track.
func (t Track) Location(elapsed time.Duration) (r2.Vec, error) {
	if elapsed < 0 {
		return r2.Vec{}, fmt.Errorf("tma: negative time %v", elapsed)
	}
	p := t.Start
	for _, m := range t.Movements {
		if elapsed <= m.Duration() {
			return r2.Add(p, m.Offset(elapsed)), nil
		}
		p = r2.Add(p, m.Offset(m.Duration()))
		elapsed -= m.Duration()
	}
	if elapsed == 0 {
		return p, nil
	}
	return r2.Vec{}, ErrBeyondTrack
}

// End returns the time at which the track's last leg finishes.
func (t Track) End() time.Duration {
	var total time.Duration
	for _, m := range t.Movements {
		total += m.Duration()
	}
	return total
}
