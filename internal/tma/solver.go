package tma

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/wisq/autocrew/internal/constrained"
	"github.com/wisq/autocrew/internal/minimize"
	"github.com/wisq/autocrew/internal/opt"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// guessRange is how far along the first bearing the unseeded guess
	// places the contact, in nautical miles.
	guessRange = 10.0
	guessSpeed = 5.0

	// minGuessSpeed keeps a guess off the speed bound.
	minGuessSpeed = 0.1
)

// SolverConfig configures a Solver.
type SolverConfig struct {
	// Enforcement must be a penalty method: the course constraint is an
	// equality, which no barrier can hold.
	Enforcement         constrained.Enforcement
	GradientTolerance   float64
	ConstraintTolerance float64
	ParameterTolerance  float64
	ValueTolerance      float64

	// MaxSpeed bounds the contact's speed in knots; zero means unbounded.
	MaxSpeed float64

	// Seeder, if set, picks cold-start guesses with a global search over
	// positions within SeedRange nautical miles of the observer's start and
	// speeds up to SeedSpeed knots.
	Seeder    opt.Optimizer
	SeedRange float64
	SeedSpeed float64
}

// DefaultSolverConfig returns a quadratic-penalty configuration without
// seeding.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Enforcement:         constrained.QuadraticPenalty,
		GradientTolerance:   constrained.DefaultGradientTolerance,
		ConstraintTolerance: constrained.DefaultConstraintTolerance,
		ParameterTolerance:  constrained.DefaultParameterTolerance,
		ValueTolerance:      constrained.DefaultValueTolerance,
		SeedRange:           30,
		SeedSpeed:           30,
	}
}

// Solver fits straight-line tracks to contacts.
type Solver struct {
	config SolverConfig
}

// NewSolver validates config and returns a Solver.
func NewSolver(config SolverConfig) (*Solver, error) {
	if config.Enforcement.IsBarrier() {
		return nil, fmt.Errorf("tma: %s can't enforce the course constraint", config.Enforcement)
	}
	if config.MaxSpeed < 0 || math.IsNaN(config.MaxSpeed) {
		return nil, fmt.Errorf("tma: invalid maximum speed %v", config.MaxSpeed)
	}
	if config.Seeder != nil && (config.SeedRange <= 0 || config.SeedSpeed <= 0) {
		return nil, fmt.Errorf("tma: seeding needs a positive range and speed, got %v and %v",
			config.SeedRange, config.SeedSpeed)
	}
	return &Solver{config: config}, nil
}

func (s *Solver) minimizer(f *RangeErrorFunction) *constrained.Minimizer {
	m := constrained.New(f)
	m.Enforcement = s.config.Enforcement
	m.GradientTolerance = s.config.GradientTolerance
	m.ConstraintTolerance = s.config.ConstraintTolerance
	m.ParameterTolerance = s.config.ParameterTolerance
	m.ValueTolerance = s.config.ValueTolerance

	maxSpeed := math.Inf(1)
	if s.config.MaxSpeed > 0 {
		maxSpeed = s.config.MaxSpeed
	}
	m.SetBounds(ParamSpeed, 0, maxSpeed)
	m.AddConstraint(CourseNormalizationConstraint{})
	return m
}

// Solve fits a track to c. If previous is non-nil the solve is warm-started
// from it and its stats are carried forward.
//
// When the minimizer gives up the returned solution is the last point it
// reached and the error wraps a *constrained.NotFoundError.
func (s *Solver) Solve(ctx context.Context, c Contact, previous *Solution) (Solution, error) {
	if len(c.Observations) < 2 {
		return Solution{}, ErrTooFewObservations
	}
	if err := ctx.Err(); err != nil {
		return Solution{}, err
	}

	f, err := NewRangeErrorFunction(c)
	if err != nil {
		return Solution{}, err
	}

	var guess []float64
	var stats minimize.Stats
	warm := previous != nil
	if warm {
		guess = previous.Params()
		stats = previous.Stats
	} else {
		guess, err = s.coldGuess(ctx, c, f)
		if err != nil {
			return Solution{}, err
		}
	}
	if s.config.MaxSpeed > 0 {
		guess[ParamSpeed] = math.Min(guess[ParamSpeed], s.config.MaxSpeed)
	}

	slog.Debug("Solving contact",
		"observations", len(c.Observations),
		"warm", warm,
		"enforcement", s.config.Enforcement.String(),
	)

	res, err := s.minimizer(f).Minimize(guess, stats)
	sol, err := finishSolve(res, err)
	var notFound *constrained.NotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return Solution{}, err
	}
	sol.Warm = warm
	sol.Observations = len(c.Observations)
	return sol, err
}

// finishSolve turns a minimizer outcome into a solution. An unconverged
// result is kept alongside its *constrained.NotFoundError, but not when its
// parameters aren't finite: then there is no track to report.
func finishSolve(res minimize.Result, err error) (Solution, error) {
	var notFound *constrained.NotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return Solution{}, fmt.Errorf("tma: solve: %w", err)
	}

	sol, convErr := SolutionFromParams(res.X)
	if convErr != nil {
		return Solution{}, fmt.Errorf("tma: solve: %w", convErr)
	}
	sol.Value = res.Value
	sol.Stats = res.Stats
	if err != nil {
		return sol, fmt.Errorf("tma: solve: %w", err)
	}
	return sol, nil
}

// coldGuess returns a starting point for a contact with no previous
// solution.
func (s *Solver) coldGuess(ctx context.Context, c Contact, f *RangeErrorFunction) ([]float64, error) {
	first := c.Observations[0]
	origin, err := c.Observer.Location(first.Time)
	if err != nil {
		return nil, fmt.Errorf("observer position at %v: %w", first.Time, err)
	}

	if s.config.Seeder == nil {
		guess := Solution{
			X:      0,
			Y:      0,
			Course: NormalizeBearing(first.Bearing + 90),
			Speed:  guessSpeed,
		}
		// place the contact on the first bearing at the first observation
		p := Travel(origin, first.Bearing, guessRange)
		start := r2.Sub(p, r2.Scale(first.Time.Hours()*guessSpeed, BearingVector(guess.Course)))
		guess.X, guess.Y = start.X, start.Y
		return guess.Params(), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := s.config.SeedRange
	lower := []float64{origin.X - r, origin.Y - r, 0, 0}
	upper := []float64{origin.X + r, origin.Y + r, 360, s.config.SeedSpeed}
	eval := func(p []float64) float64 {
		n := BearingVector(p[2])
		return f.Value([]float64{p[0], p[1], n.X, n.Y, p[3]})
	}
	best, cost, err := s.config.Seeder.Run(eval, lower, upper)
	if err != nil {
		return nil, fmt.Errorf("tma: seeding: %w", err)
	}
	slog.Info("Seeded cold start", "cost", cost, "x", best[0], "y", best[1], "course", best[2], "speed", best[3])

	n := BearingVector(best[2])
	return []float64{best[0], best[1], n.X, n.Y, math.Max(best[3], minGuessSpeed)}, nil
}
