package series

import (
	"math"
	"math/rand"
	"time"
)

// SyntheticWalk generates a deterministic random-walk bar series, useful for
// demos and load checks when no CSV feed is configured. The walk drifts in
// multi-bar legs so fractals and swings actually form.
func SyntheticWalk(n int, start float64, seed int64, startTime time.Time, interval time.Duration) []Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]Bar, 0, n)

	price := start
	drift := 0.0
	for i := 0; i < n; i++ {
		// Re-roll the drift every so often to create directional legs.
		if i%17 == 0 {
			drift = (rng.Float64() - 0.5) * start * 0.004
		}
		open := price
		move := drift + (rng.Float64()-0.5)*start*0.002
		close := open + move
		high := math.Max(open, close) + rng.Float64()*start*0.001
		low := math.Min(open, close) - rng.Float64()*start*0.001
		volume := 500 + rng.Float64()*1500
		if rng.Float64() < 0.05 {
			volume *= 3 // occasional spike
		}

		bars = append(bars, Bar{
			Time:   startTime.Add(time.Duration(i) * interval),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: volume,
		})
		price = close
	}
	return bars
}
