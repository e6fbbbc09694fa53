package tma

import (
	"fmt"
	"math"
	"time"

	"github.com/wisq/autocrew/internal/minimize"
	"gonum.org/v1/gonum/spatial/r2"
)

// Solution is an estimated contact track: a straight line at constant
// speed starting from (X, Y) at time zero.
type Solution struct {
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
	Course float64        `json:"course"`
	Speed  float64        `json:"speed"`
	Value  float64        `json:"value"`
	Stats  minimize.Stats `json:"stats"`
	// Warm is set when the solve started from a previous solution.
	Warm bool `json:"warm"`
	// Observations is the number of observations the solution fits.
	Observations int `json:"observations"`
}

// Params returns the solution as range error parameters.
func (s Solution) Params() []float64 {
	n := BearingVector(s.Course)
	return []float64{s.X, s.Y, n.X, n.Y, s.Speed}
}

// SolutionFromParams converts range error parameters into a solution,
// normalizing the velocity direction. A negative speed is folded into the
// course.
func SolutionFromParams(x []float64) (Solution, error) {
	if len(x) != numParams {
		return Solution{}, fmt.Errorf("tma: expected %d parameters, got %d", numParams, len(x))
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Solution{}, fmt.Errorf("tma: parameter %d is %v", i, v)
		}
	}
	start, normal, speed := unpack(x)
	if speed < 0 {
		normal, speed = r2.Scale(-1, normal), -speed
	}
	return Solution{
		X:      start.X,
		Y:      start.Y,
		Course: Course(normal),
		Speed:  speed,
	}, nil
}

// Start returns the contact's position at time zero.
func (s Solution) Start() r2.Vec { return r2.Vec{X: s.X, Y: s.Y} }

// Position returns the contact's estimated position at elapsed.
func (s Solution) Position(elapsed time.Duration) r2.Vec {
	return Travel(s.Start(), s.Course, s.Speed*elapsed.Hours())
}
