package minimize

import (
	"math"

	"github.com/wisq/autocrew/internal/numeric"
)

const (
	goldenRatio = 1.61803398874989485

	// invGoldenRatio and its complement place the inner points of a golden
	// section bracket.
	invGoldenRatio           = 0.61803398874989485
	invGoldenRatioComplement = 0.38196601125010515

	// maxParabolicStep limits parabolic extrapolation to a multiple of the
	// current interval.
	maxParabolicStep = 100
)

// parabolaVertex returns the abscissa of the vertex of the parabola through
// (x1,y1), (x2,y2) and (x3,y3). ok is false when the points are colinear.
func parabolaVertex(x1, y1, x2, y2, x3, y3 float64) (x float64, ok bool) {
	g := x1 * (y3 - y2)
	h := x2 * (y1 - y3)
	j := x3 * (y2 - y1)
	d := g + h + j
	if d == 0 {
		return 0, false
	}
	return (x1*g + x2*h + x3*j) / (2 * d), true
}

// BracketInward splits [x1, x2] into segments and returns a bracket for each
// segment that appears to contain a minimum. When the midpoint of a segment
// isn't below both edges, the vertex of a parabola fitted to the three
// points is tried instead.
func BracketInward(f func(float64) float64, x1, x2 float64, segments int) []MinimumBracket {
	if segments <= 0 {
		panic("minimize: segments must be positive")
	}

	size := (x2 - x1) / float64(segments)
	end := x2
	v1 := f(x1)
	x2 = x1

	var brackets []MinimumBracket
	for i := 0; i < segments; i++ {
		if i == segments-1 {
			x2 = end
		} else {
			x2 += size
		}
		xm := x1 + (x2-x1)*0.5
		v2 := f(x2)
		vm := f(xm)

		if vm >= v1 || vm >= v2 {
			// a vertex outside the segment, or a linear fit, says nothing
			// about a minimum inside it
			if x, ok := parabolaVertex(x1, v1, xm, vm, x2, v2); ok && (x1-x)*(x-x2) > 0 {
				xm = x
				vm = f(xm)
			}
		}

		if v1 > vm && v2 > vm {
			brackets = append(brackets, MinimumBracket{High1: x1, Low: xm, High2: x2})
		}
		x1, v1 = x2, v2
	}
	return brackets
}

// BracketOutward searches downhill from x1 and x2 for a bracket around a
// minimum, using parabolic extrapolation where it helps and golden ratio
// expansion otherwise. It returns ErrNoBracket if the search runs off to
// infinity.
func BracketOutward(f func(float64) float64, x1, x2 float64) (MinimumBracket, error) {
	v1, vm := f(x1), f(x2)
	if vm > v1 {
		x1, x2 = x2, x1
		v1, vm = vm, v1
	}

	// invariant: f(x1) >= f(xm); we're looking for f(x2) >= f(xm)
	xm := x2
	x2 = xm + (xm-x1)*goldenRatio
	v2 := f(x2)

	for vm > v2 {
		limit := xm + (x2-xm)*maxParabolicStep
		expand := true

		var x, v float64
		vertex, ok := parabolaVertex(x1, v1, xm, vm, x2, v2)
		if !ok {
			// colinear; go as far along the line as allowed
			x = limit
		} else {
			x = vertex
			if (xm-x)*(x-x2) > 0 {
				v = f(x)
				if v < v2 {
					return MinimumBracket{High1: xm, Low: x, High2: x2}, nil
				} else if v > vm {
					return MinimumBracket{High1: x1, Low: xm, High2: x}, nil
				}
				// between f(xm) and f(x2): no bracket, and no expansion either
			}
		}

		if (x2-x)*(x-limit) > 0 {
			v = f(x)
			if v < v2 {
				// still heading downhill; drop xm and keep expanding
				xm, vm = x2, v2
				x2, v2 = x, v
			} else {
				expand = false
			}
		} else if (x-limit)*(limit-x2) >= 0 {
			x = limit
			v = f(x)
			expand = false
		}

		if expand {
			x = x2 + (x2-xm)*goldenRatio
			v = f(x)
		}

		x1, v1 = xm, vm
		xm, vm = x2, v2
		x2, v2 = x, v

		if math.IsInf(x2, 0) || math.IsNaN(x2) {
			break
		}
	}

	if math.IsInf(x2-x1, 0) || math.IsNaN(x2-x1) {
		return MinimumBracket{}, ErrNoBracket
	}
	return MinimumBracket{High1: x1, Low: xm, High2: x2}, nil
}

// GoldenSection shrinks the bracket by the golden ratio until its width is
// within tolerance of the magnitude of the inner points. It returns the
// lower of the two inner points and its value, also alongside
// ErrMinimumNotFound when the iteration cap is hit first.
func GoldenSection(f func(float64) float64, bracket MinimumBracket, tolerance float64) (float64, float64, error) {
	numeric.CheckTolerance(tolerance)

	// x0 <= x1 <= x2 <= x3 or x0 >= x1 >= x2 >= x3, with the low point at x1
	// or x2 and the other inner point unknown
	x0, x3 := bracket.High1, bracket.High2
	var x1, x2 float64
	if math.Abs(x3-bracket.Low) > math.Abs(bracket.Low-x0) {
		x1 = bracket.Low
		x2 = x1 + (x3-x1)*invGoldenRatioComplement
	} else {
		x2 = bracket.Low
		x1 = x2 - (x2-x0)*invGoldenRatioComplement
	}

	v1, v2 := f(x1), f(x2)
	for i := 0; math.Abs(x3-x0) > (math.Abs(x1)+math.Abs(x2))*tolerance; i++ {
		if i == maxIterations {
			if v1 < v2 {
				return x1, v1, ErrMinimumNotFound
			}
			return x2, v2, ErrMinimumNotFound
		}
		if v2 < v1 {
			x := x2*invGoldenRatio + x3*invGoldenRatioComplement
			x0, x1, v1 = x1, x2, v2
			x2, v2 = x, f(x)
		} else {
			x := x1*invGoldenRatio + x0*invGoldenRatioComplement
			x3, x2, v2 = x2, x1, v1
			x1, v1 = x, f(x)
		}
	}

	if v1 < v2 {
		return x1, v1, nil
	}
	return x2, v2, nil
}

// Brent minimizes f within the bracket using parabolic interpolation through
// the three best points, falling back to golden section steps when the
// interpolation leaves the bracket or stops shrinking. On
// ErrMinimumNotFound it still returns the lowest point found.
func Brent(f func(float64) float64, bracket MinimumBracket, tolerance float64) (float64, float64, error) {
	numeric.CheckTolerance(tolerance)

	left := math.Min(bracket.High1, bracket.High2)
	right := math.Max(bracket.High1, bracket.High2)

	minPt := bracket.Low
	secondPt, prevSecondPt := minPt, minPt
	minVal := f(minPt)
	secondVal, prevSecondVal := minVal, minVal
	var step, prevStep float64

	for i := 0; i < maxIterations; i++ {
		mid := 0.5 * (left + right)
		// the absolute term keeps tol1 from vanishing when the minimum is at zero
		tol1 := tolerance*math.Abs(minPt) + numeric.Epsilon*0.001
		tol2 := tol1 * 2
		if math.Abs(minPt-mid) <= tol2-0.5*(right-left) {
			return minPt, minVal, nil
		}

		if math.Abs(prevStep) <= tol1 {
			prevStep = goldenStep(minPt, mid, left, right)
			step = prevStep * invGoldenRatioComplement
		} else {
			x, ok := parabolaVertex(secondPt, secondVal, minPt, minVal, prevSecondPt, prevSecondVal)
			if !ok {
				x = math.Inf(1)
			}
			newStep := x - minPt

			// demand the step shrink by half relative to two steps ago
			if math.Abs(newStep) >= math.Abs(0.5*prevStep) || x <= left || x >= right {
				prevStep = goldenStep(minPt, mid, left, right)
				step = prevStep * invGoldenRatioComplement
			} else {
				prevStep = step
				step = newStep
				if x-left < tol2 || right-x < tol2 {
					step = numeric.WithSign(tol1, mid-minPt)
				}
			}
		}

		var x float64
		if math.Abs(step) >= tol1 {
			x = minPt + step
		} else {
			x = minPt + numeric.WithSign(tol1, step)
		}
		v := f(x)

		if v <= minVal {
			if x >= minPt {
				left = minPt
			} else {
				right = minPt
			}
			prevSecondPt, prevSecondVal = secondPt, secondVal
			secondPt, secondVal = minPt, minVal
			minPt, minVal = x, v
			continue
		}

		if x < minPt {
			left = x
		} else {
			right = x
		}
		if v <= secondVal || secondPt == minPt {
			prevSecondPt, prevSecondVal = secondPt, secondVal
			secondPt, secondVal = x, v
		} else if v <= prevSecondVal || prevSecondPt == minPt || prevSecondPt == secondPt {
			prevSecondPt, prevSecondVal = x, v
		}
	}
	return minPt, minVal, ErrMinimumNotFound
}

// goldenStep returns the distance from minPt to the far edge of the bracket.
func goldenStep(minPt, mid, left, right float64) float64 {
	if minPt >= mid {
		return left - minPt
	}
	return right - minPt
}
