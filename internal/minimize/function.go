// Package minimize finds local minima of scalar and multidimensional functions.
//
// Scalar minimization works on a MinimumBracket produced by BracketInward or
// BracketOutward and refined by GoldenSection or Brent. Multidimensional
// minimization uses BFGS with a backtracking line search, and needs the
// caller to supply an exact gradient.
package minimize

import (
	"errors"
	"fmt"
)

// maxIterations bounds every iterative search in this package.
const maxIterations = 100

var (
	// ErrMinimumNotFound is returned when a minimizer exceeds its iteration cap.
	ErrMinimumNotFound = errors.New("minimize: minimum not found")

	// ErrNoBracket is returned by BracketOutward when the search diverges,
	// meaning the function has no minimum in the downhill direction.
	ErrNoBracket = errors.New("minimize: no minimum bracket found")

	// ErrNotDescent is returned by LineSearch when the step isn't a descent
	// direction, or roundoff made it look like one that isn't.
	ErrNotDescent = errors.New("minimize: step is not a descent direction")
)

// Function is a differentiable function of Arity parameters.
//
// Implementations must be safe to call repeatedly with the same arguments and
// must not retain x.
type Function interface {
	Arity() int
	Value(x []float64) float64
	Gradient(x []float64) []float64
}

// Stats accumulates work done across minimizer calls. Callers thread it
// through successive calls and use it to tell a warm start (few iterations)
// from a cold one.
type Stats struct {
	// Iterations counts inner BFGS iterations.
	Iterations int `json:"iterations"`

	// OuterIterations counts penalty adjustments by a constrained minimizer.
	OuterIterations int `json:"outerIterations"`

	// Evaluations counts objective evaluations, including line search probes.
	Evaluations int `json:"evaluations"`

	// Value is the last objective value seen.
	Value float64 `json:"value"`
}

// Add returns the sum of s and other, keeping other's Value.
func (s Stats) Add(other Stats) Stats {
	return Stats{
		Iterations:      s.Iterations + other.Iterations,
		OuterIterations: s.OuterIterations + other.OuterIterations,
		Evaluations:     s.Evaluations + other.Evaluations,
		Value:           other.Value,
	}
}

// Result is the outcome of a multidimensional minimization.
type Result struct {
	X     []float64
	Value float64
	Stats Stats
}

// CheckArity panics if n doesn't match the arity of f.
func CheckArity(f Function, what string, n int) {
	if n != f.Arity() {
		panic(fmt.Sprintf("minimize: %s (%d) does not match function arity (%d)", what, n, f.Arity()))
	}
}

// counter wraps a Function and counts evaluations.
type counter struct {
	Function
	evaluations int
}

func (c *counter) Value(x []float64) float64 {
	c.evaluations++
	return c.Function.Value(x)
}
