package engine

import (
	"fmt"

	"market-structure-bot/internal/abc"
	"market-structure-bot/internal/analysis"
	"market-structure-bot/internal/confluence"
	"market-structure-bot/internal/fractal"
	"market-structure-bot/internal/patterns"
	"market-structure-bot/internal/performance"
	"market-structure-bot/internal/series"
	"market-structure-bot/internal/signal"
	"market-structure-bot/internal/swing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config bundles the per-component engine parameters.
type Config struct {
	Fractal     fractal.Config      `json:"fractal"`
	Swing       swing.TrackerConfig `json:"swing"`
	ABC         abc.Config          `json:"abc"`
	Confluence  confluence.Config   `json:"confluence"`
	Signal      signal.Config       `json:"signal"`
	Performance performance.Config  `json:"performance"`
}

// Totals carries the running counts reported with each bar result.
type Totals struct {
	Bars            int `json:"bars"`
	Fractals        int `json:"fractals"`
	Swings          int `json:"swings"`
	Patterns        int `json:"patterns"`
	Zones           int `json:"zones"`
	Signals         int `json:"signals"`
	EnhancedSignals int `json:"enhanced_signals"`
}

// BarResult is the per-bar result bundle handed to the driver.
type BarResult struct {
	Index           int                          `json:"index"`
	Bar             series.Bar                   `json:"bar"`
	NewFractal      *fractal.Fractal             `json:"new_fractal,omitempty"`
	DominantChanged bool                         `json:"dominant_changed"`
	Dominant        *swing.Swing                 `json:"dominant,omitempty"`
	FibLevels       []swing.FibonacciLevel       `json:"fib_levels,omitempty"`
	ABCPattern      *abc.Pattern                 `json:"abc_pattern,omitempty"`
	Candlesticks    []patterns.Candlestick       `json:"candlesticks,omitempty"`
	Zones           []confluence.Zone            `json:"zones,omitempty"`
	Signal          *signal.Signal               `json:"signal,omitempty"`
	Enhanced        *signal.EnhancedSignal       `json:"enhanced,omitempty"`
	Resolved        []*performance.TrackedSignal `json:"resolved,omitempty"`
	Totals          Totals                       `json:"totals"`
	Bias            analysis.Bias                `json:"bias"`
}

// Snapshot is the full session state for external persistence or display.
type Snapshot struct {
	SessionID string                       `json:"session_id"`
	Bars      int                          `json:"bars"`
	Fractals  []fractal.Fractal            `json:"fractals"`
	Swings    []*swing.Swing               `json:"swings"`
	Dominant  *swing.Swing                 `json:"dominant,omitempty"`
	FibLevels []swing.FibonacciLevel       `json:"fib_levels,omitempty"`
	Patterns  []*abc.Pattern               `json:"patterns"`
	Signals   []*performance.TrackedSignal `json:"signals"`
	Stats     performance.Stats            `json:"stats"`
	Totals    Totals                       `json:"totals"`
	Bias      analysis.Bias                `json:"bias"`
}

// Session is one analysis run over a bar series. It owns all derived state
// (fractals, swings, levels, patterns, zones, signals) and processes bars
// strictly one at a time: the engine is single-threaded and synchronous, and
// a session must not be shared across goroutines without external locking.
// Backward navigation is reset-and-replay; replaying the same bars always
// reproduces the same state.
type Session struct {
	ID     string
	cfg    Config
	logger zerolog.Logger

	detector    *fractal.Detector
	tracker     *swing.Tracker
	abcDetector *abc.Detector
	confluence  *confluence.Engine
	generator   *signal.Generator
	performance *performance.Tracker

	bars   []series.Bar
	totals Totals
}

// NewSession validates the configuration and builds a session. Configuration
// errors fail fast here, never silently clamp.
func NewSession(cfg Config, logger zerolog.Logger) (*Session, error) {
	detector, err := fractal.NewDetector(cfg.Fractal, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	id := uuid.New().String()
	log := logger.With().Str("component", "Session").Str("session_id", id).Logger()

	return &Session{
		ID:          id,
		cfg:         cfg,
		logger:      log,
		detector:    detector,
		tracker:     swing.NewTracker(cfg.Swing, logger),
		abcDetector: abc.NewDetector(cfg.ABC, logger),
		confluence:  confluence.NewEngine(cfg.Confluence, logger),
		generator:   signal.NewGenerator(cfg.Signal, logger),
		performance: performance.NewTracker(cfg.Performance, logger),
	}, nil
}

// Reset clears all session state. The session keeps its configuration; the
// caller replays bars from the start.
func (s *Session) Reset() {
	s.bars = nil
	s.totals = Totals{}
	s.tracker.Reset()
	s.abcDetector.Reset()
	s.performance.Reset()
	s.logger.Info().Msg("session reset")
}

// Bars returns the bars processed so far.
func (s *Session) Bars() []series.Bar {
	return s.bars
}

// ProcessBar runs one full analysis pass: fractal confirmation, swing
// tracking, Fibonacci levels, ABC detection, confluence, signal generation
// and performance update, in that fixed order. A failed call leaves the
// state exactly as it was before the bar arrived; the caller may retry or
// skip.
func (s *Session) ProcessBar(bar series.Bar) (*BarResult, error) {
	if err := bar.Validate(); err != nil {
		return nil, err
	}
	if n := len(s.bars); n > 0 && !bar.Time.After(s.bars[n-1].Time) {
		return nil, fmt.Errorf("%w: %s after %s", series.ErrOutOfOrder, bar.Time, s.bars[n-1].Time)
	}

	s.bars = append(s.bars, bar)
	barIndex := len(s.bars) - 1
	s.totals.Bars = len(s.bars)

	dominantBefore := s.tracker.Dominant()

	// Invalidation runs before any new fractal is considered.
	s.tracker.CheckInvalidation(barIndex, bar)

	// Fractal confirmation lags by the detector period: the only candidate
	// that can complete on this bar is period bars back.
	result := &BarResult{Index: barIndex, Bar: bar}
	candidate := barIndex - s.detector.Period()
	if f, ok, err := s.detector.Confirm(s.bars, candidate); err != nil {
		// Data-quality failure: drop the offending bar so state carried into
		// the next call is untouched.
		s.bars = s.bars[:barIndex]
		s.totals.Bars = len(s.bars)
		return nil, err
	} else if ok {
		s.tracker.AddFractal(f, barIndex, bar)
		s.totals.Fractals++
		fr := f
		result.NewFractal = &fr
	}

	// Lookback drift and the every-10-bars rescan safety net.
	s.tracker.PeriodicCheck(barIndex, bar)

	dominant := s.tracker.Dominant()
	s.totals.Swings = len(s.tracker.Swings())
	result.DominantChanged = !dominant.Same(dominantBefore)
	// Results are published to async consumers; hand them copies so later
	// in-place dominance and hit-flag updates never reach a marshal in flight.
	result.Dominant = dominant.Clone()
	result.FibLevels = copyLevels(s.tracker.Levels())
	s.assertSingleDominant()

	// ABC pattern detection inside the dominant swing.
	if p := s.abcDetector.Detect(dominant, s.tracker.Fractals(), s.tracker.Levels()); p != nil {
		s.totals.Patterns++
		result.ABCPattern = p
	}

	// Confluence: price action, volume, zone clustering.
	candles := s.confluence.DetectCandlesticks(s.bars)
	result.Candlesticks = candles
	volume := s.confluence.VolumeProfile(s.bars)

	factors := s.collectFactors(bar, candles, result.ABCPattern)
	result.Zones = s.confluence.BuildZones(factors, bar.Time)
	s.totals.Zones += len(result.Zones)

	// Signal generation runs before the exact-containment hit marking so a
	// first touch can fire; the touched level is then marked and never
	// re-fires for the life of its swing.
	var extra []confluence.Factor
	if result.ABCPattern != nil {
		extra = append(extra, confluence.ABCFactor(result.ABCPattern, s.confluence.Weight(confluence.KindABCPattern)))
	}
	base, enhanced, ratio, fired := s.generator.Generate(bar, dominant, s.tracker.Levels(), candles, volume, extra)
	if fired {
		s.tracker.MarkHit(ratio)
		result.Signal = base
		s.totals.Signals++
		if enhanced != nil {
			result.Enhanced = enhanced
			s.totals.EnhancedSignals++
			s.performance.Record(enhanced)
		}
	}
	s.tracker.MarkLevelHits(bar)

	// Outcome updates for previously emitted signals.
	result.Resolved = s.performance.OnBar(bar)

	result.Totals = s.totals
	result.Bias = analysis.MarketBias(dominant)
	return result, nil
}

// Replay processes a batch of bars in order, returning every per-bar result.
func (s *Session) Replay(bars []series.Bar) ([]*BarResult, error) {
	results := make([]*BarResult, 0, len(bars))
	for _, b := range bars {
		r, err := s.ProcessBar(b)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Snapshot returns the full session state. Swings, levels and tracked
// signals are copied: the tracker flips dominance and hit flags in place as
// later bars arrive, and snapshot readers (API handlers, caches) marshal
// outside the driver's lock.
func (s *Session) Snapshot() *Snapshot {
	swings := s.tracker.Swings()
	swingsCopy := make([]*swing.Swing, len(swings))
	for i, sw := range swings {
		swingsCopy[i] = sw.Clone()
	}
	fractals := s.tracker.Fractals()
	fractalsCopy := make([]fractal.Fractal, len(fractals))
	copy(fractalsCopy, fractals)

	return &Snapshot{
		SessionID: s.ID,
		Bars:      len(s.bars),
		Fractals:  fractalsCopy,
		Swings:    swingsCopy,
		Dominant:  s.tracker.Dominant().Clone(),
		FibLevels: copyLevels(s.tracker.Levels()),
		Patterns:  s.abcDetector.Patterns(),
		Signals:   s.performance.SignalsSnapshot(),
		Stats:     s.performance.Stats(),
		Totals:    s.totals,
		Bias:      analysis.MarketBias(s.tracker.Dominant()),
	}
}

func copyLevels(levels []swing.FibonacciLevel) []swing.FibonacciLevel {
	if len(levels) == 0 {
		return nil
	}
	out := make([]swing.FibonacciLevel, len(levels))
	copy(out, levels)
	return out
}

// Stats exposes the performance tracker's aggregates.
func (s *Session) Stats() performance.Stats {
	return s.performance.Stats()
}

// collectFactors assembles this bar's confluence inputs: Fibonacci levels the
// bar is touching, detected candlesticks, a volume spike if present, and the
// bar's ABC pattern.
func (s *Session) collectFactors(bar series.Bar, candles []patterns.Candlestick, pattern *abc.Pattern) []confluence.Factor {
	var factors []confluence.Factor

	dominant := s.tracker.Dominant()
	if dominant != nil {
		for _, lvl := range s.tracker.Levels() {
			if bar.Contains(lvl.Price) {
				factors = append(factors, confluence.FibonacciFactor(
					lvl, dominant.Direction, s.confluence.Weight(confluence.KindFibonacci), bar.Time))
			}
		}
	}
	for _, c := range candles {
		factors = append(factors, confluence.CandlestickFactor(c, s.confluence.Weight(confluence.KindCandlestick)))
	}
	if f, ok := s.confluence.DetectVolumeFactor(s.bars); ok {
		factors = append(factors, f)
	}
	if pattern != nil {
		factors = append(factors, confluence.ABCFactor(pattern, s.confluence.Weight(confluence.KindABCPattern)))
	}
	return factors
}

// assertSingleDominant logs loudly if more than one tracked swing claims
// dominance; that is a programming error, never expected input.
func (s *Session) assertSingleDominant() {
	count := 0
	for _, sw := range s.tracker.Swings() {
		if sw.IsDominant {
			count++
		}
	}
	if count > 1 {
		s.logger.Error().Int("count", count).Msg("invariant violation: multiple dominant swings")
	}
}
