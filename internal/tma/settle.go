package tma

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// SettleConfig decides when successive solutions of a contact have stopped
// moving.
type SettleConfig struct {
	// Patience is the number of consecutive small changes needed.
	Patience int
	// PositionTolerance is in nautical miles.
	PositionTolerance float64
	// CourseTolerance is in degrees.
	CourseTolerance float64
	// SpeedTolerance is in knots.
	SpeedTolerance float64
}

func DefaultSettleConfig() SettleConfig {
	return SettleConfig{
		Patience:          3,
		PositionTolerance: 0.1,
		CourseTolerance:   1,
		SpeedTolerance:    0.2,
	}
}

// SettleTracker records the solution history of one contact.
// It is not safe for concurrent use.
type SettleTracker struct {
	config     SettleConfig
	history    []Solution
	best       float64
	stableRuns int
}

func NewSettleTracker(config SettleConfig) *SettleTracker {
	return &SettleTracker{config: config, best: math.Inf(1)}
}

// courseDifference is the smallest angle between two courses.
func courseDifference(a, b float64) float64 {
	d := math.Abs(NormalizeBearing(a - b))
	return math.Min(d, 360-d)
}

// Update records sol and reports whether the contact has settled.
func (t *SettleTracker) Update(sol Solution) bool {
	t.history = append(t.history, sol)
	t.best = math.Min(t.best, sol.Value)
	if len(t.history) == 1 {
		return false
	}

	prev := t.history[len(t.history)-2]
	moved := r2.Norm(r2.Sub(sol.Start(), prev.Start()))
	turned := courseDifference(sol.Course, prev.Course)
	sped := math.Abs(sol.Speed - prev.Speed)

	if moved <= t.config.PositionTolerance && turned <= t.config.CourseTolerance && sped <= t.config.SpeedTolerance {
		t.stableRuns++
	} else {
		t.stableRuns = 0
	}
	slog.Debug("Solution change",
		"moved", moved,
		"turned", turned,
		"speed_change", sped,
		"stable_runs", t.stableRuns,
		"patience", t.config.Patience,
	)
	return t.Settled()
}

// Settled reports whether the last Patience updates were all small changes.
func (t *SettleTracker) Settled() bool {
	return t.config.Patience > 0 && t.stableRuns >= t.config.Patience
}

// BestValue returns the lowest error seen so far.
func (t *SettleTracker) BestValue() float64 {
	return t.best
}

// History returns a copy of the recorded solutions.
func (t *SettleTracker) History() []Solution {
	return append([]Solution{}, t.history...)
}

// StableRuns returns the current number of consecutive small changes.
func (t *SettleTracker) StableRuns() int {
	return t.stableRuns
}

// Reset clears the tracker's state.
func (t *SettleTracker) Reset() {
	t.history = nil
	t.best = math.Inf(1)
	t.stableRuns = 0
}
