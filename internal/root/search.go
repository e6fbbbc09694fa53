package root

import "math"

const (
	outwardFactor = 1.6
	outwardTries  = 50
)

// BracketOutward widens b until it brackets a sign change, expanding the side
// whose value has the smaller magnitude. It reports false if no bracket was
// found after a fixed number of expansions.
func BracketOutward(f func(float64) float64, b Bracket) (Bracket, bool) {
	b.validate()
	if b.Min == b.Max {
		panic("root: cannot expand an empty interval")
	}

	v1, v2 := f(b.Min), f(b.Max)
	for i := 0; i < outwardTries; i++ {
		if v1*v2 <= 0 {
			return b, true
		}
		if math.Abs(v1) < math.Abs(v2) {
			b.Min += outwardFactor * (b.Min - b.Max)
			v1 = f(b.Min)
		} else {
			b.Max += outwardFactor * (b.Max - b.Min)
			v2 = f(b.Max)
		}
	}
	if v1*v2 <= 0 {
		return b, true
	}
	return b, false
}

// BracketInward splits b into segments equal pieces and returns every piece
// whose endpoint values differ in sign or touch zero.
func BracketInward(f func(float64) float64, b Bracket, segments int) []Bracket {
	b.validate()
	if segments <= 0 {
		panic("root: segments must be positive")
	}

	var brackets []Bracket
	size := (b.Max - b.Min) / float64(segments)
	x := b.Min
	v := f(x)
	for i := 1; i <= segments; i++ {
		next := b.Min + float64(i)*size
		if i == segments {
			next = b.Max
		}
		nv := f(next)
		if v*nv <= 0 {
			brackets = append(brackets, Bracket{Min: x, Max: next})
		}
		x, v = next, nv
	}
	return brackets
}
