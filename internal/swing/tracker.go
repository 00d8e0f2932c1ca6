package swing

import (
	"market-structure-bot/internal/fractal"
	"market-structure-bot/internal/series"

	"github.com/rs/zerolog"
)

// rescanInterval is the heuristic safety net from the tracker design: every
// 10 bars the window is re-scanned for a materially larger candidate swing.
// The primary guarantee remains the event-driven recompute on every new
// fractal; this only catches drift between fractal arrivals.
const rescanInterval = 10

// materiallyLarger is the relative magnitude a periodic candidate must exceed
// before it displaces the current dominant swing.
const materiallyLarger = 1.05

// TrackerConfig holds swing tracker parameters.
type TrackerConfig struct {
	// LookbackCandles bounds which fractals are eligible for dominance.
	LookbackCandles int `json:"lookback_candles"`
	// MinMagnitude discards candidate swings below this price distance.
	MinMagnitude float64 `json:"min_magnitude"`
	// FibRatios configures the retracement set computed for the dominant
	// swing. Defaults to DefaultFibRatios when empty.
	FibRatios []float64 `json:"fib_ratios"`
}

// Tracker consumes fractals and maintains the dominant swing: the single
// swing connecting the window's absolute highest high-fractal and lowest
// low-fractal. At most one swing is dominant at any time.
//
// States: no dominant swing -> dominant swing active -> (invalidation) ->
// no dominant swing. Invalidation fires the instant a bar trades through the
// swing's origin extreme.
type Tracker struct {
	cfg    TrackerConfig
	logger zerolog.Logger

	fractals []fractal.Fractal // append-only, time-ordered
	swings   []*Swing          // every dominant swing created this session
	dominant *Swing
	levels   []FibonacciLevel
}

// NewTracker creates a tracker. Lookback defaults to 100 candles when unset.
func NewTracker(cfg TrackerConfig, logger zerolog.Logger) *Tracker {
	if cfg.LookbackCandles <= 0 {
		cfg.LookbackCandles = 100
	}
	if len(cfg.FibRatios) == 0 {
		cfg.FibRatios = DefaultFibRatios
	}
	return &Tracker{
		cfg:    cfg,
		logger: logger.With().Str("component", "SwingTracker").Logger(),
	}
}

// Reset clears all tracked state for a new analysis session.
func (t *Tracker) Reset() {
	t.fractals = nil
	t.swings = nil
	t.dominant = nil
	t.levels = nil
}

// Fractals returns the append-only fractal list.
func (t *Tracker) Fractals() []fractal.Fractal {
	return t.fractals
}

// Dominant returns the current dominant swing, or nil.
func (t *Tracker) Dominant() *Swing {
	return t.dominant
}

// Levels returns the Fibonacci level set of the current dominant swing.
func (t *Tracker) Levels() []FibonacciLevel {
	return t.levels
}

// Swings returns every dominant swing created this session, oldest first.
// The list is domain truth and is never trimmed for presentation.
func (t *Tracker) Swings() []*Swing {
	return t.swings
}

// DisplaySwings derives the presentation set: the dominant swing plus the
// most recent opposite-direction non-dominant swing, newest last.
func (t *Tracker) DisplaySwings() []*Swing {
	if t.dominant == nil {
		return nil
	}
	for i := len(t.swings) - 1; i >= 0; i-- {
		s := t.swings[i]
		if !s.IsDominant && s.Direction != t.dominant.Direction {
			return []*Swing{s, t.dominant}
		}
	}
	return []*Swing{t.dominant}
}

// CheckInvalidation runs before fractal processing each bar. A down swing is
// invalidated the instant a bar's high exceeds its origin high; an up swing
// the instant a bar's low falls below its origin low. On invalidation the
// dominant is cleared and dominance is immediately recomputed.
func (t *Tracker) CheckInvalidation(barIndex int, bar series.Bar) {
	if t.dominant == nil || !brokenBy(t.dominant, bar) {
		return
	}
	t.logger.Debug().
		Str("direction", string(t.dominant.Direction)).
		Float64("origin", t.dominant.Start.Price).
		Int("bar", barIndex).
		Msg("dominant swing invalidated by origin break")
	t.clearDominant()
	t.Recalculate(barIndex, bar)
}

// AddFractal appends a confirmed fractal and recomputes dominance over the
// lookback window.
func (t *Tracker) AddFractal(f fractal.Fractal, barIndex int, bar series.Bar) {
	t.fractals = append(t.fractals, f)
	t.Recalculate(barIndex, bar)
}

// PeriodicCheck runs after fractal processing each bar. It forces a full
// recalculation when the dominant swing's fractals drift out of the lookback
// window, and every rescanInterval bars when a materially larger candidate
// exists inside the window.
func (t *Tracker) PeriodicCheck(barIndex int, bar series.Bar) {
	cut := barIndex - t.cfg.LookbackCandles
	if t.dominant != nil && (t.dominant.Start.Index < cut || t.dominant.End.Index < cut) {
		t.logger.Debug().Int("bar", barIndex).Msg("dominant swing drifted out of lookback window")
		t.Recalculate(barIndex, bar)
		return
	}

	if barIndex%rescanInterval != 0 {
		return
	}
	if t.dominant == nil {
		t.Recalculate(barIndex, bar)
		return
	}
	cand := t.ideal(barIndex)
	if cand != nil && !cand.Same(t.dominant) && cand.Magnitude > t.dominant.Magnitude*materiallyLarger {
		t.Recalculate(barIndex, bar)
	}
}

// Recalculate selects the ideal dominant swing over all fractals inside the
// lookback window: the one connecting the single highest high-fractal and the
// single lowest low-fractal, direction by chronological order. Candidates
// already broken by the current bar are not selected. When the selection
// matches the current dominant swing it is kept as is, preserving its
// Fibonacci hit flags.
func (t *Tracker) Recalculate(barIndex int, bar series.Bar) {
	cand := t.ideal(barIndex)
	if cand == nil {
		t.clearDominant()
		return
	}
	if brokenBy(cand, bar) {
		t.clearDominant()
		return
	}
	if t.dominant != nil && cand.Same(t.dominant) {
		return
	}
	t.setDominant(cand, barIndex)
}

// ideal computes the candidate dominant swing from the window's absolute
// extremes, or nil when fewer than two fractals qualify or the magnitude is
// below the configured minimum.
func (t *Tracker) ideal(barIndex int) *Swing {
	cut := barIndex - t.cfg.LookbackCandles

	var hi, lo *fractal.Fractal
	for i := range t.fractals {
		f := &t.fractals[i]
		if f.Index < cut {
			continue
		}
		switch f.Type {
		case fractal.High:
			if hi == nil || f.Price > hi.Price {
				hi = f
			}
		case fractal.Low:
			if lo == nil || f.Price < lo.Price {
				lo = f
			}
		}
	}
	if hi == nil || lo == nil {
		return nil
	}

	magnitude := hi.Price - lo.Price
	if magnitude < 0 {
		// The window's highest high sits below its lowest low; that cannot
		// happen with well-formed bars and is a programming error.
		t.logger.Error().
			Float64("high", hi.Price).
			Float64("low", lo.Price).
			Msg("invariant violation: negative swing magnitude")
		return nil
	}
	if magnitude < t.cfg.MinMagnitude {
		return nil
	}

	s := &Swing{Magnitude: magnitude}
	if lo.Index < hi.Index {
		s.Start, s.End, s.Direction = *lo, *hi, Up
		s.Bars = hi.Index - lo.Index
	} else {
		s.Start, s.End, s.Direction = *hi, *lo, Down
		s.Bars = lo.Index - hi.Index
	}
	return s
}

// MarkLevelHits sets the hit flag on any Fibonacci level whose price falls
// inside the bar's [low, high] range. A level is marked at most once; the
// flag is sticky for the life of the owning swing. Returns the ratios newly
// hit this bar.
func (t *Tracker) MarkLevelHits(bar series.Bar) []float64 {
	var hit []float64
	for i := range t.levels {
		if !t.levels[i].Hit && bar.Contains(t.levels[i].Price) {
			t.levels[i].Hit = true
			hit = append(hit, t.levels[i].Ratio)
		}
	}
	return hit
}

// MarkHit sets the hit flag on the level with the given ratio. Used when a
// signal fires on a tolerance touch that falls just outside the bar's exact
// [low, high] containment, so the level still never re-fires.
func (t *Tracker) MarkHit(ratio float64) {
	for i := range t.levels {
		if t.levels[i].Ratio == ratio {
			t.levels[i].Hit = true
			return
		}
	}
}

func (t *Tracker) setDominant(s *Swing, barIndex int) {
	if t.dominant != nil {
		t.dominant.IsDominant = false
	}
	s.IsDominant = true
	t.dominant = s
	t.swings = append(t.swings, s)
	t.levels = FibonacciLevels(s, t.cfg.FibRatios)

	t.logger.Info().
		Str("direction", string(s.Direction)).
		Float64("magnitude", s.Magnitude).
		Int("start", s.Start.Index).
		Int("end", s.End.Index).
		Int("bar", barIndex).
		Msg("dominant swing selected")
}

func (t *Tracker) clearDominant() {
	if t.dominant == nil {
		return
	}
	t.dominant.IsDominant = false
	t.dominant = nil
	t.levels = nil
}

// brokenBy reports whether the bar trades through the swing's origin extreme.
func brokenBy(s *Swing, bar series.Bar) bool {
	switch s.Direction {
	case Up:
		return bar.Low < s.Start.Price
	case Down:
		return bar.High > s.Start.Price
	}
	return false
}
