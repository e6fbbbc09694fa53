package numeric

// Differentiable is a scalar function with a known first derivative.
type Differentiable interface {
	Value(x float64) float64
	Derivative(x float64) float64
}

// DifferentiableFunc pairs a function with its first derivative.
type DifferentiableFunc struct {
	value      func(float64) float64
	derivative func(float64) float64
}

// NewDifferentiable returns a Differentiable backed by the given callables.
func NewDifferentiable(value, derivative func(float64) float64) DifferentiableFunc {
	if value == nil || derivative == nil {
		panic("numeric: differentiable function requires both a value and a derivative")
	}
	return DifferentiableFunc{value: value, derivative: derivative}
}

func (d DifferentiableFunc) Value(x float64) float64 { return d.value(x) }

func (d DifferentiableFunc) Derivative(x float64) float64 { return d.derivative(x) }
