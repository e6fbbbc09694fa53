package root

import (
	"math"

	"github.com/wisq/autocrew/internal/numeric"
)

// Subdivide finds a root by bisection. It returns once the remaining
// half-interval is no larger than tolerance or an exact zero is hit.
func Subdivide(f func(float64) float64, b Bracket, tolerance float64) (float64, error) {
	b.validate()
	numeric.CheckTolerance(tolerance)

	vMin, vMax := f(b.Min), f(b.Max)
	if vMin*vMax > 0 {
		return 0, ErrNotBracketed
	}
	if vMin == 0 {
		return b.Min, nil
	}
	if vMax == 0 {
		return b.Max, nil
	}

	// orient the search so that f(x) < 0 at x and f(x+dx) > 0
	x, dx := b.Min, b.Max-b.Min
	if vMin > 0 {
		x, dx = b.Max, b.Min-b.Max
	}

	for i := 0; i < maxIterations; i++ {
		dx *= 0.5
		mid := x + dx
		if mid == x {
			// the interval can't be split any further
			return x, nil
		}
		v := f(mid)
		if v <= 0 {
			x = mid
		}
		if v == 0 || math.Abs(dx) <= tolerance {
			return mid, nil
		}
	}
	return 0, ErrRootNotFound
}

// BoundedNewtonRaphson combines Newton steps with bisection so the iterate
// never leaves the bracket. A bisection step is taken whenever the Newton
// step would leave the bracket or isn't shrinking the residual quickly enough.
func BoundedNewtonRaphson(f numeric.Differentiable, b Bracket, tolerance float64) (float64, error) {
	b.validate()
	numeric.CheckTolerance(tolerance)

	vMin, vMax := f.Value(b.Min), f.Value(b.Max)
	if vMin*vMax > 0 {
		return 0, ErrNotBracketed
	}
	if vMin == 0 {
		return b.Min, nil
	}
	if vMax == 0 {
		return b.Max, nil
	}

	// lo is the side where f is negative
	lo, hi := b.Min, b.Max
	if vMin > 0 {
		lo, hi = b.Max, b.Min
	}

	x := b.Midpoint()
	prevStep := math.Abs(b.Max - b.Min)
	step := prevStep
	v, d := f.Value(x), f.Derivative(x)
	for i := 0; i < maxIterations; i++ {
		if v == 0 {
			return x, nil
		}

		outside := ((x-hi)*d-v)*((x-lo)*d-v) > 0
		if outside || math.Abs(2*v) > math.Abs(prevStep*d) {
			prevStep = step
			step = 0.5 * (hi - lo)
			x = lo + step
			if x == lo {
				return x, nil
			}
		} else {
			prevStep = step
			step = v / d
			prev := x
			x -= step
			if x == prev {
				return x, nil
			}
		}

		if math.Abs(step) <= tolerance {
			return x, nil
		}

		v, d = f.Value(x), f.Derivative(x)
		if v < 0 {
			lo = x
		} else {
			hi = x
		}
	}
	return 0, ErrRootNotFound
}

// UnboundedNewtonRaphson runs plain Newton iteration from the midpoint of the
// interval. It fails with ErrRootNotFound if the iterate leaves the interval.
func UnboundedNewtonRaphson(f numeric.Differentiable, b Bracket, tolerance float64) (float64, error) {
	b.validate()
	numeric.CheckTolerance(tolerance)

	x := b.Midpoint()
	for i := 0; i < maxIterations; i++ {
		v := f.Value(x)
		if v == 0 {
			return x, nil
		}
		step := v / f.Derivative(x)
		x -= step
		if !b.Contains(x) {
			return 0, ErrRootNotFound
		}
		if math.Abs(step) <= tolerance {
			return x, nil
		}
	}
	return 0, ErrRootNotFound
}

// Brent finds a root using the van Wijngaarden-Dekker-Brent method, taking
// inverse quadratic interpolation steps when they stay in bounds and converge
// fast enough and bisecting otherwise.
func Brent(f func(float64) float64, br Bracket, tolerance float64) (float64, error) {
	br.validate()
	numeric.CheckTolerance(tolerance)

	a, b := br.Min, br.Max
	fa, fb := f(a), f(b)
	if fa*fb > 0 {
		return 0, ErrNotBracketed
	}
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}

	c, fc := b, fb
	var d, e float64
	for i := 0; i < maxIterations; i++ {
		if (fb > 0 && fc > 0) || (fb < 0 && fc < 0) {
			c, fc = a, fa
			d = b - a
			e = d
		}
		if math.Abs(fc) < math.Abs(fb) {
			a, b, c = b, c, b
			fa, fb, fc = fb, fc, fb
		}

		tol := 2*numeric.Epsilon*math.Abs(b) + 0.5*tolerance
		xm := 0.5 * (c - b)
		if math.Abs(xm) <= tol || fb == 0 {
			return b, nil
		}

		if math.Abs(e) >= tol && math.Abs(fa) > math.Abs(fb) {
			var p, q float64
			s := fb / fa
			if a == c {
				p = 2 * xm * s
				q = 1 - s
			} else {
				q = fa / fc
				r := fb / fc
				p = s * (2*xm*q*(q-r) - (b-a)*(r-1))
				q = (q - 1) * (r - 1) * (s - 1)
			}
			if p > 0 {
				q = -q
			}
			p = math.Abs(p)

			min1 := 3*xm*q - math.Abs(tol*q)
			min2 := math.Abs(e * q)
			if 2*p < math.Min(min1, min2) {
				e = d
				d = p / q
			} else {
				d = xm
				e = d
			}
		} else {
			d = xm
			e = d
		}

		a, fa = b, fb
		if math.Abs(d) > tol {
			b += d
		} else {
			b += numeric.WithSign(tol, xm)
		}
		fb = f(b)
	}
	return 0, ErrRootNotFound
}
