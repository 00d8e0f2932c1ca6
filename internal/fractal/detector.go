package fractal

import (
	"errors"
	"fmt"
	"math"
	"time"

	"market-structure-bot/internal/series"

	"github.com/rs/zerolog"
)

// Type marks a fractal as a local high or local low.
type Type string

const (
	High Type = "high"
	Low  Type = "low"
)

// Fractal is a confirmed local price extreme: the candidate bar's high (or
// low) is strictly beyond every high (low) within `period` bars on each side.
// Confirmation therefore lags real time by `period` bars. Fractals are
// immutable once created.
type Fractal struct {
	Type     Type      `json:"type"`
	Index    int       `json:"index"`
	Time     time.Time `json:"time"`
	Price    float64   `json:"price"`
	Period   int       `json:"period"`
	Strength float64   `json:"strength"`
}

// ErrInvalidPeriod is returned at construction for confirmation periods < 1.
var ErrInvalidPeriod = errors.New("fractal confirmation period must be >= 1")

// Config holds detector parameters.
type Config struct {
	// Period is the confirmation width on each side of the candidate bar.
	Period int `json:"period"`
	// MinStrength discards fractals whose price distance beyond the side
	// extremes is below this value. Zero keeps everything.
	MinStrength float64 `json:"min_strength"`
}

// Detector flags local price extrema in a bar window.
type Detector struct {
	cfg    Config
	logger zerolog.Logger
}

// NewDetector validates the configuration and returns a detector. Even
// confirmation periods carry a symmetry bias; they are accepted with a
// warning.
func NewDetector(cfg Config, logger zerolog.Logger) (*Detector, error) {
	if cfg.Period < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPeriod, cfg.Period)
	}
	log := logger.With().Str("component", "FractalDetector").Logger()
	if cfg.Period%2 == 0 {
		log.Warn().Int("period", cfg.Period).Msg("even fractal period introduces symmetry bias; odd values are recommended")
	}
	return &Detector{cfg: cfg, logger: log}, nil
}

// Period returns the configured confirmation width.
func (d *Detector) Period() int {
	return d.cfg.Period
}

// Detect scans the whole window and returns every confirmed fractal sorted by
// bar index. A window shorter than 2*period+1 yields an empty result, not an
// error; that is the expected steady state at the start of a session.
func (d *Detector) Detect(bars []series.Bar) ([]Fractal, error) {
	p := d.cfg.Period
	if len(bars) < 2*p+1 {
		return nil, nil
	}
	if err := checkPrices(bars); err != nil {
		return nil, err
	}

	var out []Fractal
	for i := p; i < len(bars)-p; i++ {
		if f, ok := d.confirm(bars, i); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// Confirm checks the single candidate index i, which must have at least
// `period` bars on both sides. The engine calls this once per bar with
// i = len(bars)-1-period so each candidate is examined exactly once.
func (d *Detector) Confirm(bars []series.Bar, i int) (Fractal, bool, error) {
	p := d.cfg.Period
	if i < p || i+p >= len(bars) {
		return Fractal{}, false, nil
	}
	if err := checkPrices(bars[i-p : i+p+1]); err != nil {
		return Fractal{}, false, err
	}
	f, ok := d.confirm(bars, i)
	return f, ok, nil
}

// confirm applies the strict symmetric rule at index i. Equal prices on
// either side invalidate the candidate: both sides must be strictly beyond.
func (d *Detector) confirm(bars []series.Bar, i int) (Fractal, bool) {
	p := d.cfg.Period

	isHigh, isLow := true, true
	sideHigh := math.Inf(-1) // most extreme side high
	sideLow := math.Inf(1)   // most extreme side low
	for j := i - p; j <= i+p; j++ {
		if j == i {
			continue
		}
		if bars[j].High >= bars[i].High {
			isHigh = false
		}
		if bars[j].Low <= bars[i].Low {
			isLow = false
		}
		if bars[j].High > sideHigh {
			sideHigh = bars[j].High
		}
		if bars[j].Low < sideLow {
			sideLow = bars[j].Low
		}
		if !isHigh && !isLow {
			return Fractal{}, false
		}
	}

	switch {
	case isHigh:
		strength := bars[i].High - sideHigh
		if strength < d.cfg.MinStrength {
			return Fractal{}, false
		}
		return Fractal{
			Type:     High,
			Index:    i,
			Time:     bars[i].Time,
			Price:    bars[i].High,
			Period:   p,
			Strength: strength,
		}, true
	case isLow:
		strength := sideLow - bars[i].Low
		if strength < d.cfg.MinStrength {
			return Fractal{}, false
		}
		return Fractal{
			Type:     Low,
			Index:    i,
			Time:     bars[i].Time,
			Price:    bars[i].Low,
			Period:   p,
			Strength: strength,
		}, true
	}
	return Fractal{}, false
}

// checkPrices rejects windows with absent or corrupt high/low data before any
// fractal is produced from them.
func checkPrices(bars []series.Bar) error {
	for i, b := range bars {
		if math.IsNaN(b.High) || math.IsNaN(b.Low) || b.High <= 0 || b.Low <= 0 {
			return fmt.Errorf("bar %d: %w", i, series.ErrMissingData)
		}
	}
	return nil
}
