// Package constrained minimizes a function subject to bounds and general
// inequality constraints by solving a sequence of unconstrained problems.
//
// Each outer iteration runs BFGS on h(x) = f(x) + r*sum(p(c(x))), where c
// measures how far x is from violating a constraint (positive when
// violated), p is the penalty for the chosen Enforcement, and r is a factor
// adjusted between iterations. The process converges to the constrained
// minimum as r grows (penalty methods) or shrinks (barrier methods).
package constrained

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/wisq/autocrew/internal/minimize"
	"github.com/wisq/autocrew/internal/numeric"
)

const (
	maxOuterIterations = 100

	// tolerantIterations is how many outer iterations may have BFGS give up
	// without failing the whole minimization. The minimum often isn't
	// reachable until the penalty factor has ramped up.
	tolerantIterations = 10
)

// Defaults for the Minimizer tunables.
const (
	DefaultBasePenaltyMultiplier = 1.0
	DefaultPenaltyChangeFactor   = 100.0
	DefaultConstraintTolerance   = 1e-9
	DefaultGradientTolerance     = minimize.DefaultGradientTolerance
	DefaultParameterTolerance    = 1e-10
	DefaultValueTolerance        = 1e-9
)

// ErrInfeasibleStart is returned when a barrier method is given a starting
// point outside the feasible region.
var ErrInfeasibleStart = errors.New("constrained: barrier methods need a feasible starting point")

// NotFoundError is returned when the outer loop or an inner BFGS run fails
// to converge. Result holds the best point reached so callers can decide
// whether to accept it.
type NotFoundError struct {
	Result minimize.Result
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("constrained: minimum not found after %d outer iterations (value %g): %v",
		e.Result.Stats.OuterIterations, e.Result.Value, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Bound is an inclusive range for one parameter. Infinite ends are
// unbounded; Min == Max is an equality constraint, which barrier methods
// can't satisfy.
type Bound struct {
	Min float64
	Max float64
}

// Minimizer holds an objective with its bounds, constraints and tunables.
//
// Minimize may be called concurrently as long as the Minimizer isn't
// modified while any call is running.
type Minimizer struct {
	objective   minimize.Function
	bounds      map[int]Bound
	constraints []minimize.Function

	// BasePenaltyMultiplier is the penalty factor of the first outer iteration.
	BasePenaltyMultiplier float64
	// PenaltyChangeFactor is how much the penalty factor changes per outer
	// iteration: multiplied for penalty methods, divided for barriers.
	PenaltyChangeFactor float64
	// ConstraintTolerance accepts a result once the penalty is at most
	// this fraction of the objective value.
	ConstraintTolerance float64
	// GradientTolerance is passed to each BFGS run.
	GradientTolerance float64
	// ParameterTolerance accepts a result once no parameter changes by
	// more than this fraction between outer iterations.
	ParameterTolerance float64
	// ValueTolerance accepts a result once the value changes by no more
	// than this fraction between outer iterations.
	ValueTolerance float64
	// Enforcement selects the penalty or barrier method.
	Enforcement Enforcement
}

// New returns a Minimizer for objective with default tunables and a
// quadratic penalty.
func New(objective minimize.Function) *Minimizer {
	return &Minimizer{
		objective:             objective,
		bounds:                make(map[int]Bound),
		BasePenaltyMultiplier: DefaultBasePenaltyMultiplier,
		PenaltyChangeFactor:   DefaultPenaltyChangeFactor,
		ConstraintTolerance:   DefaultConstraintTolerance,
		GradientTolerance:     DefaultGradientTolerance,
		ParameterTolerance:    DefaultParameterTolerance,
		ValueTolerance:        DefaultValueTolerance,
		Enforcement:           QuadraticPenalty,
	}
}

// Arity returns the number of parameters of the objective.
func (m *Minimizer) Arity() int { return m.objective.Arity() }

// SetBounds restricts parameter i to [min, max]. Use infinities for
// one-sided bounds; passing both infinities removes the bound.
func (m *Minimizer) SetBounds(i int, min, max float64) {
	if i < 0 || i >= m.Arity() {
		panic(fmt.Sprintf("constrained: parameter %d out of range for arity %d", i, m.Arity()))
	}
	if min > max || math.IsNaN(min) || math.IsNaN(max) {
		panic(fmt.Sprintf("constrained: bound minimum %v is higher than maximum %v", min, max))
	}
	if math.IsInf(min, -1) && math.IsInf(max, 1) {
		delete(m.bounds, i)
		return
	}
	m.bounds[i] = Bound{Min: min, Max: max}
}

// Bounds returns the bound on parameter i, if any.
func (m *Minimizer) Bounds(i int) (Bound, bool) {
	b, ok := m.bounds[i]
	return b, ok
}

// AddConstraint adds a constraint function. Its value must be the distance
// to violating the constraint: positive when violated, zero or negative
// otherwise. For example x*y >= 5 is 5 - x*y, and x*y = 5 is |5 - x*y|.
func (m *Minimizer) AddConstraint(c minimize.Function) {
	minimize.CheckArity(m.objective, "arity of constraint", c.Arity())
	m.constraints = append(m.constraints, c)
}

func (m *Minimizer) checkTunables() {
	for name, v := range map[string]float64{
		"constraint tolerance": m.ConstraintTolerance,
		"gradient tolerance":   m.GradientTolerance,
		"parameter tolerance":  m.ParameterTolerance,
		"value tolerance":      m.ValueTolerance,
	} {
		if v < 0 || math.IsNaN(v) {
			panic(fmt.Sprintf("constrained: %s must be non-negative, got %v", name, v))
		}
	}
	if !(m.BasePenaltyMultiplier > 0) || !(m.PenaltyChangeFactor > 0) {
		panic("constrained: penalty multiplier and change factor must be positive")
	}
}

func (m *Minimizer) penaltyFunction() *penaltyFunction {
	n := m.Arity()
	p := &penaltyFunction{
		objective:   m.objective,
		bounds:      make([]Bound, n),
		bounded:     make([]bool, n),
		constraints: append([]minimize.Function(nil), m.constraints...),
		enforcement: m.Enforcement,
		factor:      m.BasePenaltyMultiplier,
	}
	for i, b := range m.bounds {
		p.bounds[i] = b
		p.bounded[i] = true
	}
	return p
}

// Minimize locally minimizes the objective from guess, subject to the
// bounds and constraints. The guess needn't be feasible unless a barrier
// method is used. Work done is added to stats.
//
// If convergence fails the error is a *NotFoundError, which matches
// minimize.ErrMinimumNotFound, carrying the last point reached.
func (m *Minimizer) Minimize(guess []float64, stats minimize.Stats) (minimize.Result, error) {
	minimize.CheckArity(m.objective, "dimensions of initial guess", len(guess))
	m.checkTunables()

	if len(m.bounds) == 0 && len(m.constraints) == 0 {
		res, err := minimize.BFGS(m.objective, guess, m.GradientTolerance, stats)
		if err != nil {
			return res, &NotFoundError{Result: res, Err: err}
		}
		return res, nil
	}

	pf := m.penaltyFunction()
	x := numeric.Clone(guess)
	if m.Enforcement.IsBarrier() && math.IsNaN(pf.penalty(x)) {
		return minimize.Result{}, ErrInfeasibleStart
	}

	result := func(x []float64) minimize.Result {
		value := m.objective.Value(x)
		stats.Value = value
		return minimize.Result{X: x, Value: value, Stats: stats}
	}

	var value float64
	for i := 0; i < maxOuterIterations; i++ {
		res, err := minimize.BFGS(pf, x, m.GradientTolerance, stats)
		stats = res.Stats
		stats.OuterIterations++
		if err != nil {
			recoverable := errors.Is(err, minimize.ErrMinimumNotFound) || errors.Is(err, minimize.ErrNotDescent)
			if !recoverable || i >= tolerantIterations {
				// the failed run still ends at the furthest point reached
				r := result(res.X)
				return r, &NotFoundError{Result: r, Err: err}
			}
			slog.Debug("Accepting unconverged inner minimization", "iteration", i, "value", res.Value)
		}

		newX, newValue := res.X, res.Value
		penalty := pf.penalty(newX)
		slog.Debug("Constrained minimization iteration",
			"iteration", i,
			"value", newValue,
			"penalty", penalty,
			"penalty_factor", pf.factor,
			"enforcement", m.Enforcement.String(),
		)

		switch {
		case math.Abs(penalty) <= math.Abs(newValue)*m.ConstraintTolerance:
			return result(newX), nil
		case i > 0 && parameterChange(x, newX) <= m.ParameterTolerance:
			return result(newX), nil
		case i > 0 && math.Abs(newValue-value)/math.Max(1, math.Abs(value)) <= m.ValueTolerance:
			return result(newX), nil
		}

		x, value = newX, newValue
		pf.factor = m.Enforcement.NextPenaltyFactor(pf.factor, m.PenaltyChangeFactor)
	}

	r := result(x)
	return r, &NotFoundError{Result: r, Err: minimize.ErrMinimumNotFound}
}

// parameterChange is the largest change in a parameter relative to its size.
func parameterChange(prev, next []float64) float64 {
	var largest float64
	for i := range prev {
		largest = math.Max(largest, math.Abs(next[i]-prev[i])/math.Max(math.Abs(prev[i]), 1))
	}
	return largest
}
