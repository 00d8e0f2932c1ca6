package swing

import (
	"math"
	"testing"

	"market-structure-bot/internal/fractal"
)

func upSwing(low, high float64) *Swing {
	return &Swing{
		Start:     fractal.Fractal{Type: fractal.Low, Index: 2, Price: low},
		End:       fractal.Fractal{Type: fractal.High, Index: 10, Price: high},
		Direction: Up,
		Magnitude: high - low,
		Bars:      8,
	}
}

func downSwing(high, low float64) *Swing {
	return &Swing{
		Start:     fractal.Fractal{Type: fractal.High, Index: 2, Price: high},
		End:       fractal.Fractal{Type: fractal.Low, Index: 10, Price: low},
		Direction: Down,
		Magnitude: high - low,
		Bars:      8,
	}
}

func TestFibonacciLevelsUpSwing(t *testing.T) {
	levels := FibonacciLevels(upSwing(90, 110), DefaultFibRatios)
	if len(levels) != len(DefaultFibRatios) {
		t.Fatalf("expected %d levels, got %d", len(DefaultFibRatios), len(levels))
	}

	// An up swing retraces downward from the high.
	want := map[float64]float64{
		0.236: 110 - 0.236*20,
		0.382: 110 - 0.382*20,
		0.5:   100,
		0.618: 110 - 0.618*20,
		0.786: 110 - 0.786*20,
	}
	for _, lvl := range levels {
		if math.Abs(lvl.Price-want[lvl.Ratio]) > 1e-9 {
			t.Errorf("ratio %.3f price = %v, want %v", lvl.Ratio, lvl.Price, want[lvl.Ratio])
		}
		if lvl.Hit {
			t.Errorf("fresh level %.3f must not be hit", lvl.Ratio)
		}
	}
}

func TestFibonacciLevelsDownSwing(t *testing.T) {
	levels := FibonacciLevels(downSwing(110, 90), DefaultFibRatios)

	// A down swing retraces upward from the low.
	want := map[float64]float64{
		0.236: 90 + 0.236*20,
		0.382: 90 + 0.382*20,
		0.5:   100,
		0.618: 90 + 0.618*20,
		0.786: 90 + 0.786*20,
	}
	for _, lvl := range levels {
		if math.Abs(lvl.Price-want[lvl.Ratio]) > 1e-9 {
			t.Errorf("ratio %.3f price = %v, want %v", lvl.Ratio, lvl.Price, want[lvl.Ratio])
		}
	}
}

func TestFibonacciLevelsMonotonic(t *testing.T) {
	// Ratios ascend; for an up swing the price strictly decreases with the
	// ratio, for a down swing it strictly increases.
	up := FibonacciLevels(upSwing(90, 110), DefaultFibRatios)
	for i := 1; i < len(up); i++ {
		if up[i].Ratio <= up[i-1].Ratio {
			t.Errorf("up swing ratios not ascending: %v after %v", up[i].Ratio, up[i-1].Ratio)
		}
		if up[i].Price >= up[i-1].Price {
			t.Errorf("up swing price must decrease with ratio: %v after %v", up[i].Price, up[i-1].Price)
		}
	}

	down := FibonacciLevels(downSwing(110, 90), DefaultFibRatios)
	for i := 1; i < len(down); i++ {
		if down[i].Ratio <= down[i-1].Ratio {
			t.Errorf("down swing ratios not ascending: %v after %v", down[i].Ratio, down[i-1].Ratio)
		}
		if down[i].Price <= down[i-1].Price {
			t.Errorf("down swing price must increase with ratio: %v after %v", down[i].Price, down[i-1].Price)
		}
	}
}

func TestFibonacciLevelsCustomRatios(t *testing.T) {
	levels := FibonacciLevels(upSwing(0.00090, 0.00110), []float64{0.5})
	if len(levels) != 1 {
		t.Fatalf("expected 1 level, got %d", len(levels))
	}
	if math.Abs(levels[0].Price-0.001) > 1e-12 {
		t.Errorf("sub-unit price level = %v, want 0.001", levels[0].Price)
	}
}

func TestSwingExtremes(t *testing.T) {
	up := upSwing(90, 110)
	if up.High() != 110 || up.Low() != 90 {
		t.Errorf("up swing extremes = %v/%v", up.High(), up.Low())
	}
	down := downSwing(110, 90)
	if down.High() != 110 || down.Low() != 90 {
		t.Errorf("down swing extremes = %v/%v", down.High(), down.Low())
	}
}

func TestSameIdentity(t *testing.T) {
	a := upSwing(90, 110)
	b := upSwing(90, 110)
	if !a.Same(b) {
		t.Error("identical swings must compare Same")
	}
	c := upSwing(90, 110)
	c.End.Index = 12
	if a.Same(c) {
		t.Error("different end fractal must not compare Same")
	}
	var nilSwing *Swing
	if a.Same(nilSwing) {
		t.Error("non-nil vs nil must not compare Same")
	}
	if !nilSwing.Same(nil) {
		t.Error("nil vs nil must compare Same")
	}
}
