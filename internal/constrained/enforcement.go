package constrained

import (
	"fmt"
	"math"
	"strings"
)

// Enforcement selects how constraint violations are turned into penalties.
//
// Penalty methods charge only for violations and raise the penalty factor
// each outer iteration. Barrier methods charge everywhere inside the feasible
// region, are undefined (NaN) outside it, and lower the factor instead; they
// need a feasible starting point.
type Enforcement int

const (
	// QuadraticPenalty charges the square of the violation.
	QuadraticPenalty Enforcement = iota
	// LinearPenalty charges the violation itself.
	LinearPenalty
	// InverseBarrier charges -1/d for a distance d < 0 from the boundary.
	InverseBarrier
	// LogBarrier charges -ln(-d) for a distance d < 0 from the boundary.
	LogBarrier
)

var enforcementNames = map[Enforcement]string{
	QuadraticPenalty: "quadratic",
	LinearPenalty:    "linear",
	InverseBarrier:   "inverse-barrier",
	LogBarrier:       "log-barrier",
}

func (e Enforcement) String() string {
	if name, ok := enforcementNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Enforcement(%d)", int(e))
}

// ParseEnforcement returns the Enforcement with the given name.
func ParseEnforcement(name string) (Enforcement, error) {
	for e, n := range enforcementNames {
		if strings.EqualFold(n, name) {
			return e, nil
		}
	}
	return 0, fmt.Errorf("constrained: unknown enforcement %q", name)
}

// IsBarrier reports whether e is a barrier method.
func (e Enforcement) IsBarrier() bool {
	return e == InverseBarrier || e == LogBarrier
}

// PenaltyValue converts a signed distance to violation into a penalty.
func (e Enforcement) PenaltyValue(d float64) float64 {
	switch e {
	case LinearPenalty:
		return d
	case QuadraticPenalty:
		return d * d
	case InverseBarrier:
		if d >= 0 {
			return math.NaN()
		}
		return -1 / d
	case LogBarrier:
		if d >= 0 {
			return math.NaN()
		}
		return -math.Log(-d)
	}
	panic(fmt.Sprintf("constrained: unknown enforcement %d", int(e)))
}

// PenaltyGradient returns the derivative of PenaltyValue at d.
func (e Enforcement) PenaltyGradient(d float64) float64 {
	switch e {
	case LinearPenalty:
		return 1
	case QuadraticPenalty:
		return 2 * d
	case InverseBarrier:
		if d >= 0 {
			return math.NaN()
		}
		return 1 / (d * d)
	case LogBarrier:
		if d >= 0 {
			return math.NaN()
		}
		return -1 / d
	}
	panic(fmt.Sprintf("constrained: unknown enforcement %d", int(e)))
}

// NextPenaltyFactor returns the penalty factor for the next outer iteration.
func (e Enforcement) NextPenaltyFactor(factor, change float64) float64 {
	if e.IsBarrier() {
		return factor / change
	}
	return factor * change
}
