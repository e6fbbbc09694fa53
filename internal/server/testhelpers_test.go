package server

import (
	"testing"
	"time"

	"github.com/wisq/autocrew/internal/scenario"
	"github.com/wisq/autocrew/internal/store"
	"github.com/wisq/autocrew/internal/tma"
)

const zigZagYAML = `
name: zigzag
observer:
  start: {x: 0, y: 10}
  legs:
    - {duration: "1:00", course: 90, speed: 10}
    - {duration: "1:00", course: 180, speed: 10}
observations:
  - {at: "0:00", bearing: 180}
  - {at: "0:30", bearing: 195.3585832227504}
  - {at: "1:00", bearing: 205.52877936550928}
`

// laterObservations continue the zigzag plot.
var laterObservations = []scenario.Observation{
	{At: scenario.Clock(90 * time.Minute), Bearing: 204.5055916764859},
	{At: scenario.Clock(2 * time.Hour), Bearing: 202.5},
}

func zigZagScenario(t *testing.T) *scenario.Scenario {
	t.Helper()
	sc, err := scenario.Parse([]byte(zigZagYAML))
	if err != nil {
		t.Fatalf("Failed to parse scenario: %v", err)
	}
	return sc
}

// seedNearTruth stands in for a global search so tests converge quickly.
type seedNearTruth struct{}

func (seedNearTruth) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	p := []float64{0.3, 0.2, 140, 4.5}
	return p, eval(p), nil
}

func testSolver(t *testing.T) *tma.Solver {
	t.Helper()
	config := tma.DefaultSolverConfig()
	config.Seeder = seedNearTruth{}
	s, err := tma.NewSolver(config)
	if err != nil {
		t.Fatalf("Failed to create solver: %v", err)
	}
	return s
}

func testServer(t *testing.T, withStore bool) (*Server, *store.FSStore) {
	t.Helper()
	var st *store.FSStore
	if withStore {
		var err error
		st, err = store.NewFSStore(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
	}
	s := NewServer(Options{
		Addr:            "127.0.0.1:0",
		Solver:          testSolver(t),
		Store:           st,
		Settle:          tma.DefaultSettleConfig(),
		ResolveInterval: 10 * time.Millisecond,
		Workers:         2,
	})
	return s, st
}
