package constrained

import (
	"math"

	"github.com/wisq/autocrew/internal/minimize"
)

// penaltyFunction is the objective augmented with r times the enforcement
// penalty of every bound and constraint. It snapshots the minimizer's
// configuration so a running minimization doesn't share state.
type penaltyFunction struct {
	objective   minimize.Function
	bounds      []Bound
	bounded     []bool
	constraints []minimize.Function
	enforcement Enforcement
	factor      float64
}

func (p *penaltyFunction) Arity() int { return p.objective.Arity() }

// penalty returns the scaled total penalty at x, or NaN if x is outside a barrier.
func (p *penaltyFunction) penalty(x []float64) float64 {
	e := p.enforcement
	var total float64

	for i, b := range p.bounds {
		if !p.bounded[i] {
			continue
		}
		if e.IsBarrier() {
			if !math.IsInf(b.Min, -1) {
				total += e.PenaltyValue(b.Min - x[i])
			}
			if !math.IsInf(b.Max, 1) {
				total += e.PenaltyValue(x[i] - b.Max)
			}
		} else if x[i] < b.Min {
			total += e.PenaltyValue(b.Min - x[i])
		} else if x[i] > b.Max {
			total += e.PenaltyValue(x[i] - b.Max)
		}
	}
	if math.IsNaN(total) {
		return total
	}

	for _, c := range p.constraints {
		if d := c.Value(x); d > 0 {
			total += e.PenaltyValue(d)
			if math.IsNaN(total) {
				return total
			}
		}
	}
	return total * p.factor
}

func (p *penaltyFunction) Value(x []float64) float64 {
	penalty := p.penalty(x)
	if math.IsNaN(penalty) {
		return penalty
	}
	return p.objective.Value(x) + penalty
}

func (p *penaltyFunction) Gradient(x []float64) []float64 {
	e := p.enforcement
	out := append([]float64(nil), p.objective.Gradient(x)...)

	for i, b := range p.bounds {
		if !p.bounded[i] {
			continue
		}
		if e.IsBarrier() {
			if !math.IsInf(b.Min, -1) {
				out[i] -= p.factor * e.PenaltyGradient(b.Min-x[i])
			}
			if !math.IsInf(b.Max, 1) {
				out[i] += p.factor * e.PenaltyGradient(x[i]-b.Max)
			}
		} else if x[i] < b.Min {
			out[i] -= p.factor * e.PenaltyGradient(b.Min-x[i])
		} else if x[i] > b.Max {
			out[i] += p.factor * e.PenaltyGradient(x[i]-b.Max)
		}
	}

	for _, c := range p.constraints {
		d := c.Value(x)
		if d <= 0 {
			continue
		}
		scale := p.factor * e.PenaltyGradient(d)
		for i, g := range c.Gradient(x) {
			out[i] += scale * g
		}
	}
	return out
}
