package opt

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinPopulation is the smallest population the mayfly library accepts.
const MinPopulation = 20

// MayflyAdapter runs the mayfly algorithm as an Optimizer.
//
// The library takes one scalar bound for all dimensions, so the adapter
// searches the unit cube and maps each coordinate onto its own range.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly returns a mayfly optimizer. popSize is raised to MinPopulation
// if smaller.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if maxIters <= 0 {
		panic(fmt.Sprintf("opt: mayfly iterations must be positive, got %d", maxIters))
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  max(popSize, MinPopulation),
		seed:     seed,
	}
}

// scale maps a point of the unit cube onto [lower, upper], clamping
// coordinates the library pushed past the edges.
func scale(unit, lower, upper []float64) []float64 {
	x := make([]float64, len(unit))
	for i, u := range unit {
		u = math.Min(math.Max(u, 0), 1)
		x[i] = lower[i] + u*(upper[i]-lower[i])
	}
	return x
}

func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	if len(lower) != len(upper) || len(lower) == 0 {
		return nil, 0, fmt.Errorf("opt: bounds have lengths %d and %d", len(lower), len(upper))
	}
	for i := range lower {
		if !(lower[i] <= upper[i]) || math.IsInf(lower[i], 0) || math.IsInf(upper[i], 0) {
			return nil, 0, fmt.Errorf("opt: dimension %d has unusable bounds [%g, %g]", i, lower[i], upper[i])
		}
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(unit []float64) float64 {
		return eval(scale(unit, lower, upper))
	}
	config.ProblemSize = len(lower)
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("opt: mayfly: %w", err)
	}

	best := scale(result.GlobalBest.Position, lower, upper)
	slog.Debug("Mayfly search finished",
		"dimension", len(lower),
		"iterations", m.maxIters,
		"population", m.popSize,
		"cost", result.GlobalBest.Cost,
	)
	return best, result.GlobalBest.Cost, nil
}
