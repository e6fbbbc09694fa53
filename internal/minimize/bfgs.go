package minimize

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wisq/autocrew/internal/numeric"
)

const (
	// DefaultGradientTolerance is the gradient convergence tolerance used by
	// callers that don't pick their own.
	DefaultGradientTolerance = 1e-8

	// parameterTolerance stops BFGS when no parameter moves by more than a
	// few units of roundoff.
	parameterTolerance = numeric.Epsilon * 4

	// scaledMaxStep bounds the line search step relative to the size of x.
	scaledMaxStep = 100

	// bfgsAttempts is the number of fresh starts BFGS makes, each with an
	// identity Hessian, before giving up.
	bfgsAttempts = 2
)

// BFGS finds a local minimum of f near x0 using the
// Broyden-Fletcher-Goldfarb-Shanno quasi-Newton method. It stops when either
// the parameters stop changing or the scaled gradient falls to tolerance.
//
// The work done is added to stats and returned in the Result. On
// ErrMinimumNotFound the Result still holds the last point reached.
func BFGS(f Function, x0 []float64, tolerance float64, stats Stats) (Result, error) {
	n := f.Arity()
	CheckArity(f, "dimensions of initial point", len(x0))
	numeric.CheckTolerance(tolerance)

	cf := &counter{Function: f}
	x := numeric.Clone(x0)
	var value float64
	var iterations int

	finish := func(err error) (Result, error) {
		run := Stats{Iterations: iterations, Evaluations: cf.evaluations, Value: value}
		return Result{X: x, Value: value, Stats: stats.Add(run)}, err
	}

	for attempt := 0; attempt < bfgsAttempts; attempt++ {
		if attempt > 0 {
			slog.Debug("BFGS restarting with identity Hessian", "value", value, "iterations", iterations)
		}

		invHessian := identity(n)
		value = cf.Value(x)
		maxStep := math.Max(numeric.Magnitude(x), float64(n)) * scaledMaxStep
		gradient := f.Gradient(x)
		if gradientConvergence(x, gradient, value) <= tolerance {
			// already at a minimum, as on a warm start
			return finish(nil)
		}
		step := make([]float64, n)
		for i, g := range gradient {
			step[i] = -g
		}

		for i := 0; i < maxIterations; i++ {
			iterations++

			newX, newValue, _, err := LineSearch(cf, x, value, gradient, step, maxStep)
			if err != nil {
				return finish(err)
			}
			for j := range step {
				step[j] = newX[j] - x[j]
			}
			x, value = newX, newValue

			if parameterConvergence(x, step) <= parameterTolerance {
				return finish(nil)
			}

			prevGradient := gradient
			gradient = f.Gradient(x)
			if gradientConvergence(x, gradient, value) <= tolerance {
				return finish(nil)
			}

			gradDiff := make([]float64, n)
			for j := range gradDiff {
				gradDiff[j] = gradient[j] - prevGradient[j]
			}
			updateInverseHessian(invHessian, step, gradDiff)

			var next mat.VecDense
			next.MulVec(invHessian, mat.NewVecDense(n, gradient))
			for j := range step {
				step[j] = -next.AtVec(j)
			}
		}
	}

	return finish(ErrMinimumNotFound)
}

func identity(n int) *mat.SymDense {
	h := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		h.SetSym(i, i, 1)
	}
	return h
}

// updateInverseHessian applies the BFGS rank-two update for the step s and
// gradient change dg. The update is skipped when s and dg are nearly
// orthogonal, since it would be dominated by roundoff.
func updateInverseHessian(h *mat.SymDense, s, dg []float64) {
	n := len(s)
	var hdg mat.VecDense
	hdg.MulVec(h, mat.NewVecDense(n, dg))

	fac := numeric.Dot(dg, s)
	if fac <= math.Sqrt(numeric.Epsilon*numeric.SumSquared(dg)*numeric.SumSquared(s)) {
		return
	}
	fae := mat.Dot(mat.NewVecDense(n, dg), &hdg)

	sv := mat.NewVecDense(n, numeric.Clone(s))
	u := mat.NewVecDense(n, nil)
	u.AddScaledVec(u, 1/fac, sv)
	u.AddScaledVec(u, -1/fae, &hdg)

	h.SymRankOne(h, 1/fac, sv)
	h.SymRankOne(h, -1/fae, &hdg)
	h.SymRankOne(h, fae, u)
}

// parameterConvergence is the largest step relative to its parameter.
func parameterConvergence(x, step []float64) float64 {
	var largest float64
	for i := range x {
		largest = math.Max(largest, math.Abs(step[i])/math.Max(math.Abs(x[i]), 1))
	}
	return largest
}

// gradientConvergence is the largest gradient component scaled by its
// parameter, relative to the function value.
func gradientConvergence(x, gradient []float64, value float64) float64 {
	divisor := math.Max(math.Abs(value), 1)
	var largest float64
	for i := range x {
		largest = math.Max(largest, math.Abs(gradient[i])*math.Max(math.Abs(x[i]), 1)/divisor)
	}
	return largest
}
