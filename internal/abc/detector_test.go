package abc

import (
	"math"
	"testing"
	"time"

	"market-structure-bot/internal/fractal"
	"market-structure-bot/internal/swing"

	"github.com/rs/zerolog"
)

func af(typ fractal.Type, idx int, price float64) fractal.Fractal {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return fractal.Fractal{
		Type:  typ,
		Index: idx,
		Time:  t0.Add(time.Duration(idx) * time.Hour),
		Price: price,
	}
}

func upDominant() *swing.Swing {
	return &swing.Swing{
		Start:     af(fractal.Low, 0, 100),
		End:       af(fractal.High, 10, 120),
		Direction: swing.Up,
		Magnitude: 20,
	}
}

// correctiveFractals is a down correction inside the up swing: Wave A falls
// 120 -> 110, Wave B retraces 60% to 116, Wave C falls to 106 for a 1.0
// completion ratio.
func correctiveFractals() []fractal.Fractal {
	return []fractal.Fractal{
		af(fractal.Low, 0, 100),
		af(fractal.High, 10, 120),
		af(fractal.Low, 13, 110),
		af(fractal.High, 16, 116),
		af(fractal.Low, 19, 106),
	}
}

func TestNoDominantNoDetection(t *testing.T) {
	d := NewDetector(Config{}, zerolog.Nop())
	if p := d.Detect(nil, correctiveFractals(), nil); p != nil {
		t.Errorf("detection without a dominant swing: %+v", p)
	}
}

func TestCompleteBullishPattern(t *testing.T) {
	d := NewDetector(Config{}, zerolog.Nop())
	p := d.Detect(upDominant(), correctiveFractals(), nil)
	if p == nil {
		t.Fatal("expected a pattern")
	}

	if p.Type != "bullish_abc" || !p.Complete || p.WaveC == nil {
		t.Fatalf("unexpected pattern: %+v", p)
	}
	if math.Abs(p.CARatio-1.0) > 1e-9 {
		t.Errorf("C/A ratio = %v, want 1.0", p.CARatio)
	}
	if p.Targets != nil {
		t.Error("complete pattern must not carry projection targets")
	}
	if math.Abs(p.Score-0.9) > 1e-9 {
		t.Errorf("score = %v, want 0.9", p.Score)
	}
	if len(d.Patterns()) != 1 {
		t.Errorf("pattern history len = %d, want 1", len(d.Patterns()))
	}
}

func TestDuplicateNotReEmitted(t *testing.T) {
	d := NewDetector(Config{}, zerolog.Nop())
	if d.Detect(upDominant(), correctiveFractals(), nil) == nil {
		t.Fatal("setup: first detection must succeed")
	}
	if p := d.Detect(upDominant(), correctiveFractals(), nil); p != nil {
		t.Errorf("pattern re-emitted: %+v", p)
	}
	if len(d.Patterns()) != 1 {
		t.Errorf("pattern history len = %d, want 1", len(d.Patterns()))
	}
}

func TestResetForgetsEmittedPatterns(t *testing.T) {
	d := NewDetector(Config{}, zerolog.Nop())
	d.Detect(upDominant(), correctiveFractals(), nil)
	d.Reset()

	if len(d.Patterns()) != 0 {
		t.Fatal("Reset must clear pattern history")
	}
	if p := d.Detect(upDominant(), correctiveFractals(), nil); p == nil {
		t.Error("pattern must be detectable again after Reset")
	}
}

func TestFormingPatternProjectsTargets(t *testing.T) {
	d := NewDetector(Config{}, zerolog.Nop())
	// No fourth fractal yet; Wave C is still forming.
	fractals := correctiveFractals()[:4]

	p := d.Detect(upDominant(), fractals, nil)
	if p == nil {
		t.Fatal("expected a forming pattern")
	}
	if p.Complete || p.WaveC != nil {
		t.Fatalf("pattern should not be complete: %+v", p)
	}

	// Wave A magnitude 10 projected down from the Wave B end at 116.
	want := []float64{116 - 6.18, 116 - 10, 116 - 12.7}
	if len(p.Targets) != len(want) {
		t.Fatalf("targets = %v, want %v", p.Targets, want)
	}
	for i := range want {
		if math.Abs(p.Targets[i]-want[i]) > 1e-9 {
			t.Errorf("target %d = %v, want %v", i, p.Targets[i], want[i])
		}
	}
}

func TestOffRatioWaveCLeavesPatternForming(t *testing.T) {
	d := NewDetector(Config{}, zerolog.Nop())
	fractals := correctiveFractals()
	// Wave C ends at a 0.5 ratio, outside tolerance of every completion ratio.
	fractals[4] = af(fractal.Low, 19, 111)

	p := d.Detect(upDominant(), fractals, nil)
	if p == nil {
		t.Fatal("expected a forming pattern")
	}
	if p.Complete {
		t.Errorf("off-ratio Wave C must not complete the pattern: %+v", p)
	}
	if len(p.Targets) == 0 {
		t.Error("forming pattern must carry projection targets")
	}
}

func TestWaveBRetraceBounds(t *testing.T) {
	for _, tc := range []struct {
		name   string
		bPrice float64
	}{
		{"too shallow", 113}, // 30% of Wave A
		{"too deep", 119.9},  // 99% of Wave A
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDetector(Config{}, zerolog.Nop())
			fractals := correctiveFractals()
			fractals[3] = af(fractal.High, 16, tc.bPrice)

			if p := d.Detect(upDominant(), fractals, nil); p != nil {
				t.Errorf("retrace outside 38.2-61.8%% accepted: %+v", p)
			}
		})
	}
}

func TestWaveAMustOpposeDominant(t *testing.T) {
	d := NewDetector(Config{}, zerolog.Nop())
	// Every candidate Wave A here moves with the up trend.
	fractals := []fractal.Fractal{
		af(fractal.Low, 0, 100),
		af(fractal.High, 5, 110),
		af(fractal.Low, 8, 104),
	}
	if p := d.Detect(upDominant(), fractals, nil); p != nil {
		t.Errorf("with-trend Wave A accepted: %+v", p)
	}
}

func TestFibCoincidenceBoostsScore(t *testing.T) {
	d := NewDetector(Config{}, zerolog.Nop())
	levels := []swing.FibonacciLevel{{Ratio: 0.5, Price: 106}}

	p := d.Detect(upDominant(), correctiveFractals(), levels)
	if p == nil {
		t.Fatal("expected a pattern")
	}
	if p.FibRatio != 0.5 {
		t.Errorf("fib ratio = %v, want 0.5", p.FibRatio)
	}
	if math.Abs(p.Score-1.0) > 1e-9 {
		t.Errorf("score = %v, want 1.0", p.Score)
	}
}
