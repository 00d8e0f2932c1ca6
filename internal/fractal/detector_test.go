package fractal

import (
	"errors"
	"math"
	"testing"
	"time"

	"market-structure-bot/internal/series"

	"github.com/rs/zerolog"
)

func mkBars(hl ...[2]float64) []series.Bar {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]series.Bar, 0, len(hl))
	for i, v := range hl {
		h, l := v[0], v[1]
		mid := (h + l) / 2
		bars = append(bars, series.Bar{
			Time: t0.Add(time.Duration(i) * time.Minute),
			Open: mid, High: h, Low: l, Close: mid, Volume: 100,
		})
	}
	return bars
}

func newTestDetector(t *testing.T, cfg Config) *Detector {
	t.Helper()
	d, err := NewDetector(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	return d
}

func TestDetectHighFractal(t *testing.T) {
	d := newTestDetector(t, Config{Period: 1})
	bars := mkBars([2]float64{10, 9}, [2]float64{12, 11}, [2]float64{10, 9.5})

	out, err := d.Detect(bars)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 fractal, got %d", len(out))
	}
	f := out[0]
	if f.Type != High || f.Index != 1 || f.Price != 12 {
		t.Errorf("unexpected fractal: %+v", f)
	}
	if f.Strength != 2 {
		t.Errorf("strength = %v, want 2", f.Strength)
	}
}

func TestDetectLowFractal(t *testing.T) {
	d := newTestDetector(t, Config{Period: 1})
	bars := mkBars([2]float64{10, 9}, [2]float64{9.5, 8}, [2]float64{10, 9.2})

	out, err := d.Detect(bars)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 fractal, got %d", len(out))
	}
	f := out[0]
	if f.Type != Low || f.Index != 1 || f.Price != 8 {
		t.Errorf("unexpected fractal: %+v", f)
	}
	if f.Strength != 1 {
		t.Errorf("strength = %v, want 1", f.Strength)
	}
}

func TestEqualNeighborRejected(t *testing.T) {
	d := newTestDetector(t, Config{Period: 1})
	// Right neighbor ties the candidate high; strict inequality must reject.
	bars := mkBars([2]float64{10, 9}, [2]float64{12, 11}, [2]float64{12, 11.5})

	out, err := d.Detect(bars)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no fractals on a tie, got %d", len(out))
	}
}

func TestShortWindowYieldsNothing(t *testing.T) {
	d := newTestDetector(t, Config{Period: 2})
	bars := mkBars([2]float64{10, 9}, [2]float64{12, 11}, [2]float64{10, 9.5}, [2]float64{11, 10})

	out, err := d.Detect(bars)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil result for window shorter than 2p+1, got %v", out)
	}
}

func TestConfirmRequiresFullSides(t *testing.T) {
	d := newTestDetector(t, Config{Period: 1})
	bars := mkBars([2]float64{10, 9}, [2]float64{12, 11}, [2]float64{10, 9.5})

	if _, ok, _ := d.Confirm(bars, 0); ok {
		t.Error("index 0 has no left side, must not confirm")
	}
	if _, ok, _ := d.Confirm(bars, 2); ok {
		t.Error("last index has no right side, must not confirm")
	}
	f, ok, err := d.Confirm(bars, 1)
	if err != nil || !ok {
		t.Fatalf("Confirm(1) = %v, %v, %v", f, ok, err)
	}
	if f.Type != High {
		t.Errorf("type = %s, want high", f.Type)
	}
}

func TestMinStrengthFilter(t *testing.T) {
	bars := mkBars([2]float64{10, 9}, [2]float64{12, 11}, [2]float64{10, 9.5})

	weak := newTestDetector(t, Config{Period: 1, MinStrength: 3})
	if out, _ := weak.Detect(bars); len(out) != 0 {
		t.Errorf("strength 2 should not pass MinStrength 3")
	}

	ok := newTestDetector(t, Config{Period: 1, MinStrength: 2})
	if out, _ := ok.Detect(bars); len(out) != 1 {
		t.Errorf("strength 2 should pass MinStrength 2")
	}
}

func TestInvalidPeriod(t *testing.T) {
	if _, err := NewDetector(Config{Period: 0}, zerolog.Nop()); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("period 0 error = %v, want ErrInvalidPeriod", err)
	}
	if _, err := NewDetector(Config{Period: -3}, zerolog.Nop()); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("negative period error = %v, want ErrInvalidPeriod", err)
	}
}

func TestEvenPeriodAccepted(t *testing.T) {
	d, err := NewDetector(Config{Period: 2}, zerolog.Nop())
	if err != nil {
		t.Fatalf("even period must be accepted, got %v", err)
	}
	if d.Period() != 2 {
		t.Errorf("Period() = %d, want 2", d.Period())
	}
}

func TestCorruptPricesRejected(t *testing.T) {
	d := newTestDetector(t, Config{Period: 1})
	bars := mkBars([2]float64{10, 9}, [2]float64{12, 11}, [2]float64{10, 9.5})
	bars[1].High = math.NaN()

	if _, err := d.Detect(bars); !errors.Is(err, series.ErrMissingData) {
		t.Errorf("Detect error = %v, want ErrMissingData", err)
	}
	if _, _, err := d.Confirm(bars, 1); !errors.Is(err, series.ErrMissingData) {
		t.Errorf("Confirm error = %v, want ErrMissingData", err)
	}
}

func TestDetectMatchesIncrementalConfirm(t *testing.T) {
	d := newTestDetector(t, Config{Period: 2})
	bars := mkBars(
		[2]float64{10, 9}, [2]float64{11, 10}, [2]float64{13, 12}, [2]float64{11, 10.5},
		[2]float64{10, 9.2}, [2]float64{9.5, 8.5}, [2]float64{9, 7}, [2]float64{9.5, 8},
		[2]float64{10, 9}, [2]float64{11, 10},
	)

	full, err := d.Detect(bars)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	var incremental []Fractal
	for n := 1; n <= len(bars); n++ {
		window := bars[:n]
		candidate := n - 1 - d.Period()
		if f, ok, err := d.Confirm(window, candidate); err != nil {
			t.Fatalf("Confirm(%d): %v", candidate, err)
		} else if ok {
			incremental = append(incremental, f)
		}
	}

	if len(full) != len(incremental) {
		t.Fatalf("full scan found %d fractals, incremental %d", len(full), len(incremental))
	}
	for i := range full {
		if full[i] != incremental[i] {
			t.Errorf("fractal %d differs: full %+v vs incremental %+v", i, full[i], incremental[i])
		}
	}
}
