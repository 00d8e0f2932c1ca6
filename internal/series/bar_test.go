package series

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"
)

func validBar() Bar {
	return Bar{
		Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Open: 100, High: 102, Low: 99, Close: 101, Volume: 500,
	}
}

func TestValidate(t *testing.T) {
	if err := validBar().Validate(); err != nil {
		t.Fatalf("valid bar rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Bar)
		want   error
	}{
		{"nan close", func(b *Bar) { b.Close = math.NaN() }, ErrMissingData},
		{"inf high", func(b *Bar) { b.High = math.Inf(1) }, ErrMissingData},
		{"zero open", func(b *Bar) { b.Open = 0 }, ErrMissingData},
		{"negative low", func(b *Bar) { b.Low = -1 }, ErrMissingData},
		{"high below close", func(b *Bar) { b.High = 100.5 }, ErrInvalidBounds},
		{"low above open", func(b *Bar) { b.Low = 100.5 }, ErrInvalidBounds},
		{"negative volume", func(b *Bar) { b.Volume = -1 }, ErrNegativeVolume},
		{"nan volume", func(b *Bar) { b.Volume = math.NaN() }, ErrNegativeVolume},
	}
	for _, tc := range cases {
		b := validBar()
		tc.mutate(&b)
		if err := b.Validate(); !errors.Is(err, tc.want) {
			t.Errorf("%s: error = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestGeometry(t *testing.T) {
	b := Bar{Open: 100, High: 103, Low: 98, Close: 101.5, Volume: 1}

	if b.Body() != 1.5 {
		t.Errorf("body = %v, want 1.5", b.Body())
	}
	if b.Range() != 5 {
		t.Errorf("range = %v, want 5", b.Range())
	}
	if b.UpperShadow() != 1.5 {
		t.Errorf("upper shadow = %v, want 1.5", b.UpperShadow())
	}
	if b.LowerShadow() != 2 {
		t.Errorf("lower shadow = %v, want 2", b.LowerShadow())
	}
	if !b.IsBullish() || b.IsBearish() {
		t.Error("close above open must read bullish")
	}

	flat := Bar{Open: 100, High: 100, Low: 100, Close: 100, Volume: 1}
	if flat.IsBullish() || flat.IsBearish() {
		t.Error("flat bar is neither bullish nor bearish")
	}
}

func TestContains(t *testing.T) {
	b := Bar{Open: 100, High: 102, Low: 99, Close: 101, Volume: 1}

	for _, p := range []float64{99, 100.5, 102} {
		if !b.Contains(p) {
			t.Errorf("Contains(%v) = false, want true", p)
		}
	}
	for _, p := range []float64{98.99, 102.01} {
		if b.Contains(p) {
			t.Errorf("Contains(%v) = true, want false", p)
		}
	}
}

func TestSliceProvider(t *testing.T) {
	bars := []Bar{validBar(), validBar()}
	p := NewSliceProvider(bars)

	if p.Len() != 2 {
		t.Fatalf("Len = %d, want 2", p.Len())
	}
	for i := 0; i < 2; i++ {
		if _, err := p.Next(); err != nil {
			t.Fatalf("Next(%d): %v", i, err)
		}
	}
	if _, err := p.Next(); err != io.EOF {
		t.Errorf("exhausted provider error = %v, want io.EOF", err)
	}

	p.Rewind()
	if _, err := p.Next(); err != nil {
		t.Errorf("Next after Rewind: %v", err)
	}
}
