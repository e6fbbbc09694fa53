package constrained

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisq/autocrew/internal/minimize"
)

// bowl is sum((x_i - center_i)^2).
type bowl struct{ center []float64 }

func (b bowl) Arity() int { return len(b.center) }

func (b bowl) Value(x []float64) float64 {
	var sum float64
	for i, c := range b.center {
		sum += (x[i] - c) * (x[i] - c)
	}
	return sum
}

func (b bowl) Gradient(x []float64) []float64 {
	g := make([]float64, len(x))
	for i, c := range b.center {
		g[i] = 2 * (x[i] - c)
	}
	return g
}

// atLeast is the constraint x + y >= total.
type atLeast struct{ total float64 }

func (atLeast) Arity() int                     { return 2 }
func (c atLeast) Value(x []float64) float64    { return c.total - x[0] - x[1] }
func (atLeast) Gradient(x []float64) []float64 { return []float64{-1, -1} }

// slope is -x0 + x1^2, unbounded below along x0.
type slope struct{}

func (slope) Arity() int                     { return 2 }
func (slope) Value(x []float64) float64      { return -x[0] + x[1]*x[1] }
func (slope) Gradient(x []float64) []float64 { return []float64{-1, 2 * x[1]} }

func TestUnconstrainedUsesBFGS(t *testing.T) {
	m := New(bowl{center: []float64{3, -1}})

	res, err := m.Minimize([]float64{0, 0}, minimize.Stats{})
	require.NoError(t, err)
	assert.InDelta(t, 3, res.X[0], 1e-8)
	assert.InDelta(t, -1, res.X[1], 1e-8)
	assert.Zero(t, res.Stats.OuterIterations)
}

func TestQuadraticPenaltyBound(t *testing.T) {
	m := New(bowl{center: []float64{3, -1}})
	m.SetBounds(0, math.Inf(-1), 1)

	res, err := m.Minimize([]float64{0, 0}, minimize.Stats{})
	require.NoError(t, err)
	assert.InDelta(t, 1, res.X[0], 1e-8)
	assert.InDelta(t, -1, res.X[1], 1e-8)
	assert.InDelta(t, 4, res.Value, 1e-7)
	assert.Greater(t, res.Stats.OuterIterations, 1)
}

func TestBarrierBound(t *testing.T) {
	for _, e := range []Enforcement{LogBarrier, InverseBarrier} {
		t.Run(e.String(), func(t *testing.T) {
			m := New(bowl{center: []float64{3, -1}})
			m.Enforcement = e
			m.SetBounds(0, math.Inf(-1), 1)

			res, err := m.Minimize([]float64{0, 0}, minimize.Stats{})
			require.NoError(t, err)
			assert.LessOrEqual(t, res.X[0], 1.0)
			assert.InDelta(t, 1, res.X[0], 1e-5)
			assert.InDelta(t, -1, res.X[1], 1e-6)
		})
	}
}

func TestBarrierNeedsFeasibleStart(t *testing.T) {
	m := New(bowl{center: []float64{3, -1}})
	m.Enforcement = LogBarrier
	m.SetBounds(0, math.Inf(-1), 1)

	_, err := m.Minimize([]float64{2, 0}, minimize.Stats{})
	assert.ErrorIs(t, err, ErrInfeasibleStart)
}

func TestConstraintFunction(t *testing.T) {
	m := New(bowl{center: []float64{0, 0}})
	m.AddConstraint(atLeast{total: 2})

	res, err := m.Minimize([]float64{5, -3}, minimize.Stats{})
	require.NoError(t, err)
	assert.InDelta(t, 1, res.X[0], 1e-6)
	assert.InDelta(t, 1, res.X[1], 1e-6)
}

func TestEqualityBound(t *testing.T) {
	m := New(bowl{center: []float64{3, -1}})
	m.SetBounds(1, 0.5, 0.5)

	res, err := m.Minimize([]float64{0, 0}, minimize.Stats{})
	require.NoError(t, err)
	assert.InDelta(t, 3, res.X[0], 1e-8)
	assert.InDelta(t, 0.5, res.X[1], 1e-8)
}

func TestRemovingBounds(t *testing.T) {
	m := New(bowl{center: []float64{3, -1}})
	m.SetBounds(0, 0, 1)
	_, ok := m.Bounds(0)
	assert.True(t, ok)

	m.SetBounds(0, math.Inf(-1), math.Inf(1))
	_, ok = m.Bounds(0)
	assert.False(t, ok)
}

func TestWarmStartStats(t *testing.T) {
	m := New(bowl{center: []float64{3, -1}})
	m.SetBounds(0, math.Inf(-1), 1)

	cold, err := m.Minimize([]float64{-20, 30}, minimize.Stats{})
	require.NoError(t, err)

	warm, err := m.Minimize(cold.X, minimize.Stats{})
	require.NoError(t, err)
	assert.Less(t, warm.Stats.Iterations, cold.Stats.Iterations)

	threaded, err := m.Minimize(cold.X, cold.Stats)
	require.NoError(t, err)
	assert.Equal(t, cold.Stats.Iterations+warm.Stats.Iterations, threaded.Stats.Iterations)
}

func TestNotFoundCarriesBestPoint(t *testing.T) {
	m := New(slope{})

	_, err := m.Minimize([]float64{0, 1}, minimize.Stats{})
	require.Error(t, err)
	assert.ErrorIs(t, err, minimize.ErrMinimumNotFound)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Greater(t, nf.Result.X[0], 100.0)
	assert.Less(t, nf.Result.Value, -100.0)
}

// gradientRecorder remembers where its gradient was last taken.
type gradientRecorder struct {
	minimize.Function
	last []float64
}

func (r *gradientRecorder) Gradient(x []float64) []float64 {
	r.last = append([]float64(nil), x...)
	return r.Function.Gradient(x)
}

func TestNotFoundAfterTolerantIterationsCarriesLastRun(t *testing.T) {
	// the bound stays violated by a fixed penalty while x0 runs off, so
	// every inner run gives up and nothing ever converges
	f := &gradientRecorder{Function: slope{}}
	m := New(f)
	m.SetBounds(1, 2, 3)
	m.PenaltyChangeFactor = 1
	m.ConstraintTolerance = 0
	m.ParameterTolerance = 0
	m.ValueTolerance = 0

	res, err := m.Minimize([]float64{0, 1}, minimize.Stats{})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.ErrorIs(t, err, minimize.ErrMinimumNotFound)
	assert.Equal(t, tolerantIterations+1, nf.Result.Stats.OuterIterations)

	// BFGS takes its last gradient where it stops
	assert.Equal(t, f.last, nf.Result.X)
	assert.Equal(t, nf.Result, res)
	assert.Equal(t, slope{}.Value(f.last), nf.Result.Value)
	assert.Greater(t, nf.Result.X[0], 1000.0)
}

func TestConcurrentMinimize(t *testing.T) {
	m := New(bowl{center: []float64{3, -1}})
	m.SetBounds(0, math.Inf(-1), 1)

	want, err := m.Minimize([]float64{0, 0}, minimize.Stats{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]minimize.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.Minimize([]float64{0, 0}, minimize.Stats{})
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want.X, got.X)
	}
}

func TestUsagePanics(t *testing.T) {
	m := New(bowl{center: []float64{3, -1}})
	assert.Panics(t, func() { m.SetBounds(2, 0, 1) })
	assert.Panics(t, func() { m.SetBounds(0, 1, 0) })
	assert.Panics(t, func() { m.AddConstraint(bowl{center: []float64{1}}) })
	assert.Panics(t, func() { m.Minimize([]float64{1}, minimize.Stats{}) })

	m.ValueTolerance = -1
	assert.Panics(t, func() { m.Minimize([]float64{1, 1}, minimize.Stats{}) })
}
