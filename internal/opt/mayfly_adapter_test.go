package opt

import (
	"math"
	"testing"
)

// Sphere function: f(x) = sum((x_i - c_i)^2), minimum at c
func shiftedSphere(c []float64) func([]float64) float64 {
	return func(x []float64) float64 {
		var sum float64
		for i, v := range x {
			d := v - c[i]
			sum += d * d
		}
		return sum
	}
}

func TestMayflyAdapterPerDimensionBounds(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42)

	// Ranges of very different widths, which the library's scalar bounds
	// can't express directly.
	lower := []float64{-1, 100, -1000}
	upper := []float64{1, 110, 1000}
	center := []float64{0.5, 104, -250}

	best, cost, err := optimizer.Run(shiftedSphere(center), lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(best) != len(lower) {
		t.Fatalf("Expected %d parameters, got %d", len(lower), len(best))
	}
	for i, v := range best {
		if v < lower[i] || v > upper[i] {
			t.Errorf("Parameter %d = %f outside [%f, %f]", i, v, lower[i], upper[i])
		}
	}
	if got := shiftedSphere(center)(best); math.Abs(got-cost) > 1e-9 {
		t.Errorf("Reported cost %f, but the returned point costs %f", cost, got)
	}
	// Relative to a range 2000 wide, landing within a few units counts.
	if math.Abs(best[2]-center[2]) > 20 {
		t.Errorf("Parameter 2 = %f, expected near %f", best[2], center[2])
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}
	f := shiftedSphere([]float64{1, -2})

	_, cost1, err := NewMayfly(50, 20, 123).Run(f, lower, upper)
	if err != nil {
		t.Fatal(err)
	}
	_, cost2, err := NewMayfly(50, 20, 123).Run(f, lower, upper)
	if err != nil {
		t.Fatal(err)
	}

	if cost1 != cost2 {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", cost1, cost2)
	}
}

func TestMayflyAdapterSmallPopulationRaised(t *testing.T) {
	m := NewMayfly(10, 4, 1)
	if m.popSize != MinPopulation {
		t.Errorf("popSize = %d, want %d", m.popSize, MinPopulation)
	}
}

func TestMayflyAdapterRejectsBadBounds(t *testing.T) {
	m := NewMayfly(10, 20, 1)
	f := shiftedSphere([]float64{0, 0})

	cases := []struct {
		name         string
		lower, upper []float64
	}{
		{"length mismatch", []float64{0}, []float64{1, 1}},
		{"empty", nil, nil},
		{"inverted", []float64{0, 2}, []float64{1, 1}},
		{"infinite", []float64{0, math.Inf(-1)}, []float64{1, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := m.Run(f, tc.lower, tc.upper); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
