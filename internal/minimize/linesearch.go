package minimize

import (
	"math"

	"github.com/wisq/autocrew/internal/numeric"
)

// armijo is the fraction of the predicted decrease a step must achieve.
const armijo = 1e-4

// LineSearch looks for a multiplier F in (0, 1] such that moving from x by
// F*step decreases f sufficiently:
//
//	f(x + F*step) <= f(x) + armijo*F*(gradient . step)
//
// The step is first shortened to maxStep if it is longer. The first
// backtrack models f along the step as a quadratic and later ones as a cubic
// through the last two trial points, keeping each new F within
// [0.1, 0.5] of the previous one.
//
// It returns the new point and value with ok set. An accepted step always
// lowers the value. When F shrinks below the resolution of x, or the
// required decrease below the resolution of value, it returns a copy of x
// and value with ok false: no improving step exists, which usually means x
// is already at a minimum.
func LineSearch(f Function, x []float64, value float64, gradient, step []float64, maxStep float64) ([]float64, float64, bool, error) {
	CheckArity(f, "point dimension", len(x))
	CheckArity(f, "gradient dimension", len(gradient))
	CheckArity(f, "step dimension", len(step))

	step = numeric.Clone(step)
	if !math.IsInf(maxStep, 1) {
		if length := numeric.Magnitude(step); length > maxStep {
			for i := range step {
				step[i] *= maxStep / length
			}
		}
	}

	slope := numeric.Dot(gradient, step)
	if !(slope < 0) {
		return nil, 0, false, ErrNotDescent
	}

	// F below minFactor wouldn't move any parameter by more than roundoff
	var largest float64
	for i := range x {
		largest = math.Max(largest, math.Abs(step[i])/math.Max(1, math.Abs(x[i])))
	}
	minFactor := numeric.Epsilon / largest

	newX := make([]float64, len(x))
	factor := 1.0
	var prevFactor, prevValue float64
	for {
		numeric.AddScaledTo(newX, x, factor, step)
		newValue := f.Value(newX)

		if factor < minFactor {
			return numeric.Clone(x), value, false, nil
		}
		sufficient := value + armijo*factor*slope
		if newValue <= sufficient && newValue < value {
			return newX, newValue, true, nil
		}
		if sufficient >= value {
			// the required decrease is below the resolution of value
			return numeric.Clone(x), value, false, nil
		}

		var next float64
		if factor == 1 {
			// quadratic through g(0), g'(0) and g(1)
			next = -slope / (2 * (newValue - value - slope))
		} else {
			// cubic through g(0), g'(0) and the last two trial points
			rhs1 := newValue - value - factor*slope
			rhs2 := prevValue - value - prevFactor*slope
			a := (rhs1/(factor*factor) - rhs2/(prevFactor*prevFactor)) / (factor - prevFactor)
			b := (-prevFactor*rhs1/(factor*factor) + factor*rhs2/(prevFactor*prevFactor)) / (factor - prevFactor)

			if a == 0 {
				next = -slope / (2 * b)
			} else {
				disc := b*b - 3*a*slope
				switch {
				case disc < 0:
					next = 0.5 * factor
				case b <= 0:
					next = (-b + math.Sqrt(disc)) / (3 * a)
				default:
					next = -slope / (b + math.Sqrt(disc))
				}
			}
			if next > 0.5*factor {
				next = 0.5 * factor
			}
		}

		// NaN means the trial point was infeasible (e.g. outside a barrier)
		if math.IsNaN(next) {
			next = 0
		}

		prevFactor, prevValue = factor, newValue
		factor = math.Max(next, 0.1*factor)
	}
}
