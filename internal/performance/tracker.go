package performance

import (
	"time"

	"market-structure-bot/internal/series"
	"market-structure-bot/internal/signal"

	"github.com/rs/zerolog"
)

// Outcome of a tracked signal.
type Outcome string

const (
	OutcomeOpen      Outcome = "open"
	OutcomeTargetHit Outcome = "target_hit"
	OutcomeStopHit   Outcome = "stop_hit"
	OutcomeTimeout   Outcome = "timeout"
)

// TrackedSignal wraps an emitted signal with its running outcome. The signal
// itself is never mutated; excursion and outcome live here.
type TrackedSignal struct {
	Signal   *signal.EnhancedSignal `json:"signal"`
	Outcome  Outcome                `json:"outcome"`
	BarsOpen int                    `json:"bars_open"`

	// MaxFavorable and MaxAdverse track unrealized excursion from entry, in
	// price units, both reported as non-negative distances.
	MaxFavorable float64 `json:"max_favorable"`
	MaxAdverse   float64 `json:"max_adverse"`

	// ResolvedAt is nil while the signal is open.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Stats aggregates resolved and open signal counts.
type Stats struct {
	Total     int     `json:"total"`
	Open      int     `json:"open"`
	TargetHit int     `json:"target_hit"`
	StopHit   int     `json:"stop_hit"`
	Timeout   int     `json:"timeout"`
	WinRate   float64 `json:"win_rate"` // target hits / resolved
}

// Config holds tracker parameters.
type Config struct {
	// TimeoutBars closes a signal unresolved after this many bars. Default 50.
	TimeoutBars int `json:"timeout_bars"`
}

// Tracker records each emitted signal and updates its outcome as later bars
// arrive. A signal resolves when a bar reaches its target, its stop, or the
// timeout; stop checks run before target checks on the same bar, taking the
// conservative reading when a single bar spans both.
type Tracker struct {
	cfg    Config
	logger zerolog.Logger

	signals []*TrackedSignal
}

// NewTracker creates a performance tracker.
func NewTracker(cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.TimeoutBars <= 0 {
		cfg.TimeoutBars = 50
	}
	return &Tracker{
		cfg:    cfg,
		logger: logger.With().Str("component", "PerformanceTracker").Logger(),
	}
}

// Reset clears all tracked signals for a new session.
func (t *Tracker) Reset() {
	t.signals = nil
}

// Record starts tracking a newly emitted signal.
func (t *Tracker) Record(s *signal.EnhancedSignal) {
	t.signals = append(t.signals, &TrackedSignal{
		Signal:  s,
		Outcome: OutcomeOpen,
	})
}

// OnBar updates every open signal with the new bar and returns the signals
// resolved this bar.
func (t *Tracker) OnBar(bar series.Bar) []*TrackedSignal {
	var resolved []*TrackedSignal
	for _, ts := range t.signals {
		if ts.Outcome != OutcomeOpen {
			continue
		}
		ts.BarsOpen++
		t.updateExcursion(ts, bar)

		switch {
		case t.stopHit(ts, bar):
			ts.Outcome = OutcomeStopHit
		case t.targetHit(ts, bar):
			ts.Outcome = OutcomeTargetHit
		case ts.BarsOpen >= t.cfg.TimeoutBars:
			ts.Outcome = OutcomeTimeout
		default:
			continue
		}

		at := bar.Time
		ts.ResolvedAt = &at
		resolved = append(resolved, ts)
		t.logger.Info().
			Str("signal", ts.Signal.ID).
			Str("outcome", string(ts.Outcome)).
			Int("bars_open", ts.BarsOpen).
			Msg("signal resolved")
	}
	return resolved
}

// Signals returns all tracked signals, oldest first.
func (t *Tracker) Signals() []*TrackedSignal {
	return t.signals
}

// SignalsSnapshot returns value copies of every tracked signal. Safe to read
// while later bars keep updating outcomes on the originals.
func (t *Tracker) SignalsSnapshot() []*TrackedSignal {
	out := make([]*TrackedSignal, len(t.signals))
	for i, ts := range t.signals {
		c := *ts
		out[i] = &c
	}
	return out
}

// Stats aggregates outcomes across the session.
func (t *Tracker) Stats() Stats {
	var s Stats
	for _, ts := range t.signals {
		s.Total++
		switch ts.Outcome {
		case OutcomeOpen:
			s.Open++
		case OutcomeTargetHit:
			s.TargetHit++
		case OutcomeStopHit:
			s.StopHit++
		case OutcomeTimeout:
			s.Timeout++
		}
	}
	if resolved := s.TargetHit + s.StopHit + s.Timeout; resolved > 0 {
		s.WinRate = float64(s.TargetHit) / float64(resolved)
	}
	return s
}

func (t *Tracker) stopHit(ts *TrackedSignal, bar series.Bar) bool {
	if ts.Signal.Side == signal.Buy {
		return bar.Low <= ts.Signal.StopLoss
	}
	return bar.High >= ts.Signal.StopLoss
}

func (t *Tracker) targetHit(ts *TrackedSignal, bar series.Bar) bool {
	if ts.Signal.Side == signal.Buy {
		return bar.High >= ts.Signal.TakeProfit
	}
	return bar.Low <= ts.Signal.TakeProfit
}

func (t *Tracker) updateExcursion(ts *TrackedSignal, bar series.Bar) {
	entry := ts.Signal.EntryPrice
	var favorable, adverse float64
	if ts.Signal.Side == signal.Buy {
		favorable = bar.High - entry
		adverse = entry - bar.Low
	} else {
		favorable = entry - bar.Low
		adverse = bar.High - entry
	}
	if favorable > ts.MaxFavorable {
		ts.MaxFavorable = favorable
	}
	if adverse > ts.MaxAdverse {
		ts.MaxAdverse = adverse
	}
}
