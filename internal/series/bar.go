package series

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// Errors for bar data quality. These fail the specific call that received the
// bad bar; engine state from previous bars is never touched.
var (
	ErrMissingData    = errors.New("bar is missing price data")
	ErrInvalidBounds  = errors.New("bar high/low do not bound open/close")
	ErrNegativeVolume = errors.New("bar volume is negative")
	ErrOutOfOrder     = errors.New("bar timestamp is not after the previous bar")
)

// Bar is a single OHLCV candle. Bars are immutable once produced by the feed.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate checks the bar for data-quality problems: non-finite or
// non-positive prices, inverted high/low bounds, negative volume.
func (b Bar) Validate() error {
	for _, p := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return fmt.Errorf("%w: o=%v h=%v l=%v c=%v", ErrMissingData, b.Open, b.High, b.Low, b.Close)
		}
	}
	if b.High < math.Max(b.Open, math.Max(b.Close, b.Low)) ||
		b.Low > math.Min(b.Open, math.Min(b.Close, b.High)) {
		return fmt.Errorf("%w: o=%v h=%v l=%v c=%v", ErrInvalidBounds, b.Open, b.High, b.Low, b.Close)
	}
	if math.IsNaN(b.Volume) || b.Volume < 0 {
		return fmt.Errorf("%w: v=%v", ErrNegativeVolume, b.Volume)
	}
	return nil
}

// Body returns the absolute open-to-close distance.
func (b Bar) Body() float64 {
	return math.Abs(b.Close - b.Open)
}

// Range returns the high-to-low distance.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// UpperShadow returns the wick above the body.
func (b Bar) UpperShadow() float64 {
	return b.High - math.Max(b.Open, b.Close)
}

// LowerShadow returns the wick below the body.
func (b Bar) LowerShadow() float64 {
	return math.Min(b.Open, b.Close) - b.Low
}

// IsBullish reports whether the bar closed above its open.
func (b Bar) IsBullish() bool {
	return b.Close > b.Open
}

// IsBearish reports whether the bar closed below its open.
func (b Bar) IsBearish() bool {
	return b.Close < b.Open
}

// Contains reports whether price falls inside the bar's [low, high] range.
func (b Bar) Contains(price float64) bool {
	return price >= b.Low && price <= b.High
}

// Provider yields bars in strictly increasing time order. The engine consumes
// a Provider through the driver; it performs no I/O itself.
type Provider interface {
	// Next returns the next bar, or io.EOF when the series is exhausted.
	Next() (Bar, error)
}

// SliceProvider serves a fixed in-memory bar slice, used by the replay driver
// and tests.
type SliceProvider struct {
	bars []Bar
	pos  int
}

// NewSliceProvider wraps bars in a Provider.
func NewSliceProvider(bars []Bar) *SliceProvider {
	return &SliceProvider{bars: bars}
}

// Next implements Provider.
func (p *SliceProvider) Next() (Bar, error) {
	if p.pos >= len(p.bars) {
		return Bar{}, io.EOF
	}
	b := p.bars[p.pos]
	p.pos++
	return b, nil
}

// Rewind restarts the provider from the first bar, for reset-and-replay.
func (p *SliceProvider) Rewind() {
	p.pos = 0
}

// Len returns the number of bars served by the provider.
func (p *SliceProvider) Len() int {
	return len(p.bars)
}
