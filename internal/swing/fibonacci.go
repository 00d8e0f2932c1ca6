package swing

import "sort"

// DefaultFibRatios is the standard retracement set.
var DefaultFibRatios = []float64{0.236, 0.382, 0.5, 0.618, 0.786}

// FibonacciLevel is an immutable retracement price snapshot for one swing.
// The full set is recomputed wholesale whenever the dominant swing changes.
// Hit is set once, the first time a bar's [low, high] range contains Price,
// and stays set for the life of the owning swing.
type FibonacciLevel struct {
	Ratio float64 `json:"ratio"`
	Price float64 `json:"price"`
	Hit   bool    `json:"hit"`
}

// FibonacciLevels computes retracement levels for a swing, ordered by ratio
// ascending. Ratio 0 sits at the swing's most extreme point in the direction
// of continuation, ratio 1 at its origin: for an up swing prices decrease
// with the ratio, for a down swing they increase.
func FibonacciLevels(s *Swing, ratios []float64) []FibonacciLevel {
	if s == nil || len(ratios) == 0 {
		return nil
	}
	high, low := s.High(), s.Low()
	rng := high - low

	sorted := make([]float64, len(ratios))
	copy(sorted, ratios)
	sort.Float64s(sorted)

	levels := make([]FibonacciLevel, 0, len(sorted))
	for _, r := range sorted {
		var price float64
		if s.Direction == Up {
			price = high - r*rng
		} else {
			price = low + r*rng
		}
		levels = append(levels, FibonacciLevel{Ratio: r, Price: price})
	}
	return levels
}
