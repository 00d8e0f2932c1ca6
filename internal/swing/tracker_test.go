package swing

import (
	"math"
	"testing"

	"market-structure-bot/internal/fractal"
	"market-structure-bot/internal/series"

	"github.com/rs/zerolog"
)

func hf(idx int, price float64) fractal.Fractal {
	return fractal.Fractal{Type: fractal.High, Index: idx, Price: price, Strength: 1}
}

func lf(idx int, price float64) fractal.Fractal {
	return fractal.Fractal{Type: fractal.Low, Index: idx, Price: price, Strength: 1}
}

func tbar(high, low float64) series.Bar {
	mid := (high + low) / 2
	return series.Bar{Open: mid, High: high, Low: low, Close: mid, Volume: 100}
}

// upTracker builds a tracker holding an up dominant swing 90 -> 110.
func upTracker(cfg TrackerConfig) *Tracker {
	tr := NewTracker(cfg, zerolog.Nop())
	tr.AddFractal(lf(2, 90), 3, tbar(95, 91))
	tr.AddFractal(hf(10, 110), 12, tbar(108, 104))
	return tr
}

func TestSingleFractalNoDominant(t *testing.T) {
	tr := NewTracker(TrackerConfig{}, zerolog.Nop())
	tr.AddFractal(lf(2, 90), 3, tbar(95, 91))

	if tr.Dominant() != nil {
		t.Error("one fractal cannot form a swing")
	}
	if tr.Levels() != nil {
		t.Error("no dominant swing means no levels")
	}
}

func TestDominantSelectionUp(t *testing.T) {
	tr := upTracker(TrackerConfig{})

	d := tr.Dominant()
	if d == nil {
		t.Fatal("expected a dominant swing")
	}
	if d.Direction != Up || d.Magnitude != 20 || d.Bars != 8 || !d.IsDominant {
		t.Errorf("unexpected dominant: %+v", d)
	}
	if len(tr.Swings()) != 1 {
		t.Errorf("swing history len = %d, want 1", len(tr.Swings()))
	}

	levels := tr.Levels()
	if len(levels) != len(DefaultFibRatios) {
		t.Fatalf("levels len = %d, want %d", len(levels), len(DefaultFibRatios))
	}
	for _, lvl := range levels {
		if lvl.Ratio == 0.5 && math.Abs(lvl.Price-100) > 1e-9 {
			t.Errorf("0.5 level = %v, want 100", lvl.Price)
		}
	}
}

func TestDirectionByChronology(t *testing.T) {
	tr := NewTracker(TrackerConfig{}, zerolog.Nop())
	tr.AddFractal(hf(2, 110), 3, tbar(108, 104))
	tr.AddFractal(lf(10, 90), 12, tbar(95, 91))

	d := tr.Dominant()
	if d == nil {
		t.Fatal("expected a dominant swing")
	}
	// The high fractal came first, so the move reads high to low.
	if d.Direction != Down || d.Start.Price != 110 || d.End.Price != 90 {
		t.Errorf("unexpected dominant: %+v", d)
	}
}

func TestMinMagnitudeGate(t *testing.T) {
	tr := upTracker(TrackerConfig{MinMagnitude: 30})
	if tr.Dominant() != nil {
		t.Errorf("magnitude 20 must not pass MinMagnitude 30, got %+v", tr.Dominant())
	}
}

func TestInvalidationOnOriginBreak(t *testing.T) {
	tr := upTracker(TrackerConfig{})

	// The bar trades through the up swing's origin low. The candidate found
	// by the recompute is the same swing, which the same bar also breaks, so
	// no dominant swing survives.
	tr.CheckInvalidation(20, tbar(95, 89))

	if tr.Dominant() != nil {
		t.Errorf("dominant must be cleared on origin break, got %+v", tr.Dominant())
	}
	if tr.Levels() != nil {
		t.Error("levels must be cleared with the dominant swing")
	}
	if tr.Swings()[0].IsDominant {
		t.Error("invalidated swing must lose its dominant flag")
	}
}

func TestNoInvalidationInsideRange(t *testing.T) {
	tr := upTracker(TrackerConfig{})
	before := tr.Dominant()

	tr.CheckInvalidation(20, tbar(105, 92))

	if !tr.Dominant().Same(before) {
		t.Error("bar holding above the origin must not invalidate")
	}
}

func TestPeriodicCheckRestoresDominant(t *testing.T) {
	tr := upTracker(TrackerConfig{})
	tr.CheckInvalidation(20, tbar(95, 89))
	if tr.Dominant() != nil {
		t.Fatal("setup: dominant should be cleared")
	}

	// Later bar holds above the origin; the scheduled rescan re-selects the
	// window extremes.
	tr.PeriodicCheck(30, tbar(100, 95))

	d := tr.Dominant()
	if d == nil || d.Direction != Up {
		t.Fatalf("expected restored up swing, got %+v", d)
	}
	if len(tr.Swings()) != 2 {
		t.Errorf("swing history len = %d, want 2", len(tr.Swings()))
	}
}

func TestHitFlagsStickAcrossRecompute(t *testing.T) {
	tr := upTracker(TrackerConfig{})

	hit := tr.MarkLevelHits(tbar(101, 99))
	if len(hit) != 1 || hit[0] != 0.5 {
		t.Fatalf("MarkLevelHits = %v, want [0.5]", hit)
	}

	// A lower high inside the window does not change the extremes, so the
	// recompute keeps the swing and its hit flags.
	tr.AddFractal(hf(12, 105), 14, tbar(106, 103))

	for _, lvl := range tr.Levels() {
		if lvl.Ratio == 0.5 && !lvl.Hit {
			t.Error("0.5 hit flag lost across recompute")
		}
		if lvl.Ratio != 0.5 && lvl.Hit {
			t.Errorf("ratio %.3f marked hit without a touch", lvl.Ratio)
		}
	}

	if again := tr.MarkLevelHits(tbar(101, 99)); len(again) != 0 {
		t.Errorf("hit level re-reported: %v", again)
	}
}

func TestMarkHitByRatio(t *testing.T) {
	tr := upTracker(TrackerConfig{})
	tr.MarkHit(0.618)

	for _, lvl := range tr.Levels() {
		if lvl.Ratio == 0.618 && !lvl.Hit {
			t.Error("MarkHit(0.618) did not flag the level")
		}
	}
}

func TestLookbackDriftClearsDominant(t *testing.T) {
	tr := upTracker(TrackerConfig{LookbackCandles: 20})

	// At bar 35 the window starts at 15; both swing fractals sit behind it
	// and no eligible fractals remain.
	tr.PeriodicCheck(35, tbar(100, 95))

	if tr.Dominant() != nil {
		t.Errorf("dominant must clear once its fractals leave the window, got %+v", tr.Dominant())
	}
}

func TestDisplaySwingsKeepsOppositeContext(t *testing.T) {
	tr := upTracker(TrackerConfig{})

	// A new lowest low after the high flips the extremes into a down swing.
	tr.AddFractal(lf(12, 85), 13, tbar(100, 86))

	d := tr.Dominant()
	if d == nil || d.Direction != Down || d.Magnitude != 25 {
		t.Fatalf("expected down dominant with magnitude 25, got %+v", d)
	}

	disp := tr.DisplaySwings()
	if len(disp) != 2 {
		t.Fatalf("display set len = %d, want 2", len(disp))
	}
	if disp[0].Direction != Up || disp[0].IsDominant {
		t.Errorf("first display swing should be the prior up swing: %+v", disp[0])
	}
	if disp[1] != d {
		t.Error("last display swing must be the dominant")
	}

	// Full history is untouched by presentation trimming.
	if len(tr.Swings()) != 2 {
		t.Errorf("swing history len = %d, want 2", len(tr.Swings()))
	}
}

func TestResetClearsEverything(t *testing.T) {
	tr := upTracker(TrackerConfig{})
	tr.Reset()

	if tr.Dominant() != nil || tr.Levels() != nil || len(tr.Fractals()) != 0 || len(tr.Swings()) != 0 {
		t.Error("Reset must clear fractals, swings, dominant and levels")
	}
}
