package tma

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wisq/autocrew/internal/constrained"
	"github.com/wisq/autocrew/internal/minimize"
	"github.com/wisq/autocrew/internal/opt"
	"gonum.org/v1/gonum/spatial/r2"
)

// fixedSeeder returns a preset point and records the box it was asked to search.
type fixedSeeder struct {
	point        []float64
	lower, upper []float64
	cost         float64
}

func (s *fixedSeeder) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	s.lower, s.upper = lower, upper
	s.cost = eval(s.point)
	return s.point, s.cost, nil
}

type failingSeeder struct{}

func (failingSeeder) Run(func([]float64) float64, []float64, []float64) ([]float64, float64, error) {
	return nil, 0, errors.New("no luck")
}

func newSolver(t *testing.T, mutate func(*SolverConfig)) *Solver {
	t.Helper()
	config := DefaultSolverConfig()
	if mutate != nil {
		mutate(&config)
	}
	s, err := NewSolver(config)
	require.NoError(t, err)
	return s
}

func assertZigZagTruth(t *testing.T, sol Solution) {
	t.Helper()
	assert.InDelta(t, 0, sol.X, 1e-3, "x")
	assert.InDelta(t, 0, sol.Y, 1e-3, "y")
	assert.InDelta(t, 0, courseDifference(135, sol.Course), 0.05, "course")
	assert.InDelta(t, 5, sol.Speed, 1e-3, "speed")
	assert.Less(t, sol.Value, 1e-6)
}

func TestSolveWarmFromNearbySolution(t *testing.T) {
	s := newSolver(t, nil)
	previous := &Solution{X: 0.4, Y: -0.3, Course: 128, Speed: 6, Stats: solveStats(7)}

	sol, err := s.Solve(context.Background(), zigZagContact(), previous)
	require.NoError(t, err)

	assertZigZagTruth(t, sol)
	assert.True(t, sol.Warm)
	assert.Equal(t, 5, sol.Observations)
	assert.Greater(t, sol.Stats.Iterations, 7, "stats carried forward from the previous solve")
	assert.Positive(t, sol.Stats.OuterIterations)
}

func solveStats(iterations int) (s minimize.Stats) {
	s.Iterations = iterations
	return s
}

func TestSolveSeeded(t *testing.T) {
	seeder := &fixedSeeder{point: []float64{0.3, 0.2, 140, 4.5}}
	s := newSolver(t, func(c *SolverConfig) {
		c.Seeder = seeder
		c.SeedRange = 20
		c.SeedSpeed = 25
	})

	sol, err := s.Solve(context.Background(), zigZagContact(), nil)
	require.NoError(t, err)
	assertZigZagTruth(t, sol)
	assert.False(t, sol.Warm)
	assert.LessOrEqual(t, sol.Value, seeder.cost)

	// searched around the observer's position at the first observation
	assert.Equal(t, []float64{-20, -10, 0, 0}, seeder.lower)
	assert.Equal(t, []float64{20, 30, 360, 25}, seeder.upper)
}

func TestSolveWithMayflySeeding(t *testing.T) {
	if testing.Short() {
		t.Skip("global search in short mode")
	}
	s := newSolver(t, func(c *SolverConfig) {
		c.Seeder = opt.NewMayfly(100, 20, 42)
	})

	sol, err := s.Solve(context.Background(), zigZagContact(), nil)
	var notFound *constrained.NotFoundError
	if err != nil {
		require.ErrorAs(t, err, &notFound)
	}
	assert.GreaterOrEqual(t, sol.Speed, 0.0)
	assert.False(t, math.IsNaN(sol.Value))
	assert.GreaterOrEqual(t, sol.Course, 0.0)
	assert.Less(t, sol.Course, 360.0)
}

func TestSolveUnseededColdStart(t *testing.T) {
	s := newSolver(t, nil)

	sol, err := s.Solve(context.Background(), zigZagContact(), nil)
	require.NoError(t, err)
	assertZigZagTruth(t, sol)
	assert.False(t, sol.Warm)
	assert.Positive(t, sol.Stats.Evaluations)
}

func TestColdStartMinimizerHonorsConstraints(t *testing.T) {
	// the raw minimizer output, before SolutionFromParams normalizes it
	s := newSolver(t, nil)
	c := zigZagContact()
	f, err := NewRangeErrorFunction(c)
	require.NoError(t, err)
	guess, err := s.coldGuess(context.Background(), c, f)
	require.NoError(t, err)

	res, err := s.minimizer(f).Minimize(guess, minimize.Stats{})
	require.NoError(t, err)
	require.Len(t, res.X, numParams)
	assert.GreaterOrEqual(t, res.X[ParamSpeed], 0.0)
	assert.InDelta(t, 1, math.Hypot(res.X[ParamNormalVX], res.X[ParamNormalVY]), 1e-6)
	assert.InDelta(t, 5, res.X[ParamSpeed], 1e-3)
	assert.InDelta(t, 0, courseDifference(135, Course(r2.Vec{X: res.X[ParamNormalVX], Y: res.X[ParamNormalVY]})), 0.05)
}

func TestSolveRespectsMaxSpeed(t *testing.T) {
	s := newSolver(t, func(c *SolverConfig) { c.MaxSpeed = 3 })
	previous := &Solution{X: 0.4, Y: -0.3, Course: 128, Speed: 6}

	sol, err := s.Solve(context.Background(), zigZagContact(), previous)
	var notFound *constrained.NotFoundError
	if err != nil {
		require.ErrorAs(t, err, &notFound)
	}
	// the quadratic penalty allows a small overshoot
	assert.LessOrEqual(t, sol.Speed, 3.01)
}

func TestSolveErrors(t *testing.T) {
	s := newSolver(t, nil)
	ctx := context.Background()

	one := contact(ownshipZigZag(), map[time.Duration]float64{0: 180})
	_, err := s.Solve(ctx, one, nil)
	assert.ErrorIs(t, err, ErrTooFewObservations)

	late := contact(ownshipZigZag(), map[time.Duration]float64{0: 180, 3 * time.Hour: 200})
	_, err = s.Solve(ctx, late, nil)
	assert.ErrorIs(t, err, ErrBeyondTrack)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Solve(cancelled, zigZagContact(), nil)
	assert.ErrorIs(t, err, context.Canceled)

	seeded := newSolver(t, func(c *SolverConfig) { c.Seeder = failingSeeder{} })
	_, err = seeded.Solve(ctx, zigZagContact(), nil)
	assert.ErrorContains(t, err, "no luck")
}

func TestFinishSolve(t *testing.T) {
	stats := solveStats(12)
	notFound := &constrained.NotFoundError{Err: minimize.ErrMinimumNotFound}

	sol, err := finishSolve(minimize.Result{X: []float64{1, 2, 0, 1, 4}, Value: 0.5, Stats: stats}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, sol.Speed)
	assert.Equal(t, 0.5, sol.Value)
	assert.Equal(t, stats, sol.Stats)

	// an unconverged point is still reported
	sol, err = finishSolve(minimize.Result{X: []float64{1, 2, 0, 1, 4}, Value: 0.5}, notFound)
	var nf *constrained.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 4.0, sol.Speed)

	// unless it isn't a track at all
	nan := minimize.Result{X: []float64{math.NaN(), 2, 0, 1, 4}, Value: math.NaN()}
	sol, err = finishSolve(nan, notFound)
	require.Error(t, err)
	assert.False(t, errors.As(err, &nf))
	assert.ErrorContains(t, err, "parameter 0 is NaN")
	assert.Equal(t, Solution{}, sol)

	_, err = finishSolve(minimize.Result{}, errors.New("boom"))
	assert.ErrorContains(t, err, "boom")
}

func TestNewSolverRejectsBadConfig(t *testing.T) {
	for _, e := range []constrained.Enforcement{constrained.InverseBarrier, constrained.LogBarrier} {
		config := DefaultSolverConfig()
		config.Enforcement = e
		_, err := NewSolver(config)
		assert.Error(t, err, e.String())
	}

	config := DefaultSolverConfig()
	config.MaxSpeed = -1
	_, err := NewSolver(config)
	assert.Error(t, err)

	config = DefaultSolverConfig()
	config.Seeder = failingSeeder{}
	config.SeedRange = 0
	_, err = NewSolver(config)
	assert.Error(t, err)

	config = DefaultSolverConfig()
	config.Enforcement = constrained.LinearPenalty
	_, err = NewSolver(config)
	assert.NoError(t, err)
}

func TestSolutionParamsRoundTrip(t *testing.T) {
	sol, err := SolutionFromParams([]float64{1, 2, 0, -2, -3})
	require.NoError(t, err)
	// negative speed reverses the course; the direction is normalized
	assert.InDelta(t, 0, sol.Course, accuracy)
	assert.InDelta(t, 3, sol.Speed, accuracy)

	p := sol.Params()
	assert.InDelta(t, 0, p[ParamNormalVX], accuracy)
	assert.InDelta(t, 1, p[ParamNormalVY], accuracy)

	assertVec(t, Travel(sol.Start(), 0, 1.5), sol.Position(30*time.Minute), accuracy)

	_, err = SolutionFromParams([]float64{1, 2, 3})
	assert.Error(t, err)
	_, err = SolutionFromParams([]float64{math.NaN(), 2, 0, 1, 1})
	assert.Error(t, err)
}
