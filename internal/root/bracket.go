// Package root finds zero crossings of scalar functions.
//
// The bracketing methods (Subdivide, BoundedNewtonRaphson, Brent) require an
// interval whose endpoint values differ in sign and return ErrNotBracketed
// otherwise. Running out of iterations is reported as ErrRootNotFound, which
// callers should treat as a separate failure class.
package root

import (
	"errors"
	"fmt"
	"math"

	"github.com/wisq/autocrew/internal/numeric"
)

// maxIterations bounds every iterative search in this package.
const maxIterations = 100

var (
	// ErrNotBracketed is returned when f(min) and f(max) have the same sign.
	ErrNotBracketed = errors.New("root: root not bracketed")

	// ErrRootNotFound is returned when the iteration cap is exceeded or the
	// iterate leaves the search interval.
	ErrRootNotFound = errors.New("root: root not found")
)

// Bracket is an interval [Min, Max] expected to contain a sign change.
type Bracket struct {
	Min float64
	Max float64
}

// NewBracket returns the interval [min, max]. It panics if min > max.
func NewBracket(min, max float64) Bracket {
	b := Bracket{Min: min, Max: max}
	b.validate()
	return b
}

func (b Bracket) validate() {
	if b.Min > b.Max || math.IsNaN(b.Min) || math.IsNaN(b.Max) {
		panic(fmt.Sprintf("root: bracket minimum %v is higher than maximum %v", b.Min, b.Max))
	}
}

// Contains reports whether x lies inside the bracket.
func (b Bracket) Contains(x float64) bool {
	return x >= b.Min && x <= b.Max
}

// Midpoint returns the center of the interval.
func (b Bracket) Midpoint() float64 {
	return b.Min + (b.Max-b.Min)*0.5
}

// DefaultTolerance is the tolerance used when the caller has no better
// estimate: the magnitude of the interval scaled by machine epsilon.
func DefaultTolerance(b Bracket) float64 {
	return numeric.RelativeTolerance(b.Min, b.Max)
}
