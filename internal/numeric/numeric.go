// Package numeric holds the floating point constants and small vector helpers
// shared by the root finding and minimization packages.
package numeric

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// Epsilon is the smallest value that, added to 1.0, produces a result not equal to 1.0.
	Epsilon = 0x1p-52

	// SqrtEpsilon is the square root of Epsilon.
	SqrtEpsilon = 0x1p-26
)

// Dot returns the dot product of a and b.
func Dot(a, b []float64) float64 {
	return floats.Dot(a, b)
}

// SumSquared returns the sum of the squares of the elements of v.
func SumSquared(v []float64) float64 {
	return floats.Dot(v, v)
}

// Magnitude returns the Euclidean length of v.
func Magnitude(v []float64) float64 {
	return floats.Norm(v, 2)
}

// AddScaledTo stores x + alpha*step into dst and returns dst.
func AddScaledTo(dst, x []float64, alpha float64, step []float64) []float64 {
	return floats.AddScaledTo(dst, x, alpha, step)
}

// Clone returns a copy of v.
func Clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

// RelativeTolerance returns the default tolerance for a value of the given
// magnitude, used when callers don't supply one.
func RelativeTolerance(values ...float64) float64 {
	m := 1.0
	for _, v := range values {
		if a := math.Abs(v); a > m && !math.IsInf(a, 0) {
			m = a
		}
	}
	return m * Epsilon
}

// CheckTolerance panics if tolerance is negative or NaN.
func CheckTolerance(tolerance float64) {
	if tolerance < 0 || math.IsNaN(tolerance) {
		panic(fmt.Sprintf("numeric: tolerance must be non-negative, got %v", tolerance))
	}
}

// WithSign returns |value| with the sign of sign.
func WithSign(value, sign float64) float64 {
	if sign >= 0 {
		return math.Abs(value)
	}
	return -math.Abs(value)
}
