package tma

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// Parameter indices of the 5D contact model.
const (
	ParamX = iota
	ParamY
	ParamNormalVX
	ParamNormalVY
	ParamSpeed
	numParams
)

type sighting struct {
	hours    float64
	observer r2.Vec
	bearing  r2.Vec
}

// RangeErrorFunction is the squared error between a straight-line contact
// track and the observed bearings.
//
// Parameters are the contact's start position, its normalized velocity and
// its speed. A predicted position on the observed side of the observer
// contributes its squared distance from the bearing line; one behind the
// observer contributes its squared distance from the observer.
type RangeErrorFunction struct {
	sightings []sighting
}

// NewRangeErrorFunction precomputes observer positions for every
// observation of c.
func NewRangeErrorFunction(c Contact) (*RangeErrorFunction, error) {
	f := &RangeErrorFunction{sightings: make([]sighting, 0, len(c.Observations))}
	for _, o := range c.Observations {
		p, err := c.Observer.Location(o.Time)
		if err != nil {
			return nil, fmt.Errorf("observer position at %v: %w", o.Time, err)
		}
		f.sightings = append(f.sightings, sighting{
			hours:    o.Time.Hours(),
			observer: p,
			bearing:  BearingVector(o.Bearing),
		})
	}
	return f, nil
}

func (f *RangeErrorFunction) Arity() int { return numParams }

func unpack(x []float64) (r2.Vec, r2.Vec, float64) {
	return r2.Vec{X: x[ParamX], Y: x[ParamY]},
		r2.Vec{X: x[ParamNormalVX], Y: x[ParamNormalVY]},
		x[ParamSpeed]
}

func (f *RangeErrorFunction) Value(x []float64) float64 {
	start, normal, speed := unpack(x)
	velocity := r2.Scale(speed, normal)

	var sum float64
	for _, s := range f.sightings {
		obs := r2.Sub(r2.Add(start, r2.Scale(s.hours, velocity)), s.observer)
		if r2.Dot(s.bearing, obs) >= 0 {
			e := r2.Dot(crossVector(s.bearing), obs)
			sum += e * e
		} else {
			sum += r2.Norm2(obs)
		}
	}
	return sum
}

func (f *RangeErrorFunction) Gradient(x []float64) []float64 {
	start, normal, speed := unpack(x)
	velocity := r2.Scale(speed, normal)

	g := make([]float64, numParams)
	for _, s := range f.sightings {
		t := s.hours
		obs := r2.Sub(r2.Add(start, r2.Scale(t, velocity)), s.observer)
		b := s.bearing
		if r2.Dot(b, obs) >= 0 {
			e := r2.Dot(crossVector(b), obs)
			g[ParamX] += b.Y * e
			g[ParamY] -= b.X * e
			g[ParamNormalVX] += b.Y * speed * t * e
			g[ParamNormalVY] -= b.X * speed * t * e
			g[ParamSpeed] += (b.Y*normal.X*t - b.X*normal.Y*t) * e
		} else {
			g[ParamX] += obs.X
			g[ParamY] += obs.Y
			g[ParamNormalVX] += speed * t * obs.X
			g[ParamNormalVY] += speed * t * obs.Y
			g[ParamSpeed] += normal.X*t*obs.X + normal.Y*t*obs.Y
		}
	}
	for i := range g {
		g[i] *= 2
	}
	return g
}

// CourseNormalizationConstraint keeps the velocity parameters a unit
// vector. The range error only sees their product with speed, so without
// it the split between course and speed is undetermined.
type CourseNormalizationConstraint struct{}

func (CourseNormalizationConstraint) Arity() int { return numParams }

func (CourseNormalizationConstraint) Value(x []float64) float64 {
	nx, ny := x[ParamNormalVX], x[ParamNormalVY]
	d := nx*nx + ny*ny - 1
	if d < 0 {
		return -d
	}
	return d
}

func (CourseNormalizationConstraint) Gradient(x []float64) []float64 {
	nx, ny := x[ParamNormalVX], x[ParamNormalVY]
	if nx*nx+ny*ny < 1 {
		nx, ny = -nx, -ny
	}
	g := make([]float64, numParams)
	g[ParamNormalVX] = 2 * nx
	g[ParamNormalVY] = 2 * ny
	return g
}
