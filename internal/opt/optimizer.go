// Package opt holds derivative-free global optimizers used to seed the
// gradient-based solvers.
package opt

// Optimizer searches a box for a low point of eval.
type Optimizer interface {
	// Run minimizes eval over the box [lower, upper] and returns the best
	// point found with its cost. lower and upper must have the same length,
	// which is the dimension of the problem.
	Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)
}
