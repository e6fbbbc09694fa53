package minimize

import (
	"fmt"
	"math"
)

// MinimumBracket is a triple of points where the function value at Low is no
// greater than at either edge. The edges may be in either order.
type MinimumBracket struct {
	High1 float64
	Low   float64
	High2 float64
}

// NewMinimumBracket returns a bracket. It panics unless low lies between the edges.
func NewMinimumBracket(high1, low, high2 float64) MinimumBracket {
	if (high1-low)*(low-high2) < 0 || math.IsNaN(high1+low+high2) {
		panic(fmt.Sprintf("minimize: %v is not between %v and %v", low, high1, high2))
	}
	return MinimumBracket{High1: high1, Low: low, High2: high2}
}

// Width returns the distance between the edges.
func (b MinimumBracket) Width() float64 {
	return math.Abs(b.High2 - b.High1)
}
