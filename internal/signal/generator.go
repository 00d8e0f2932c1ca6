package signal

import (
	"time"

	"market-structure-bot/internal/analysis"
	"market-structure-bot/internal/confluence"
	"market-structure-bot/internal/patterns"
	"market-structure-bot/internal/series"
	"market-structure-bot/internal/swing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Side of a trade signal.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Quality tiers of an enhanced signal's aggregate confluence score.
type Quality string

const (
	QualityWeak     Quality = "weak"
	QualityModerate Quality = "moderate"
	QualityStrong   Quality = "strong"
)

// Signal is the baseline signal: a Fibonacci level touch with an aligned
// confirming candlestick pattern, before confluence scoring.
type Signal struct {
	ID         string               `json:"id"`
	Time       time.Time            `json:"time"`
	Side       Side                 `json:"side"`
	EntryPrice float64              `json:"entry_price"`
	FibRatio   float64              `json:"fib_ratio"`
	FibPrice   float64              `json:"fib_price"`
	Pattern    patterns.Candlestick `json:"pattern"`
	StopLoss   float64              `json:"stop_loss"`
	TakeProfit float64              `json:"take_profit"`
}

// EnhancedSignal fuses the level touch, pattern confirmation, volume and
// swing quality into a scored, risk-managed signal. It is immutable once
// emitted; outcome tracking is owned by the performance tracker.
type EnhancedSignal struct {
	ID         string               `json:"id"`
	Time       time.Time            `json:"time"`
	Side       Side                 `json:"side"`
	EntryPrice float64              `json:"entry_price"`
	FibRatio   float64              `json:"fib_ratio"`
	FibPrice   float64              `json:"fib_price"`
	Pattern    patterns.Candlestick `json:"pattern"`

	Factors        []confluence.Factor `json:"factors"`
	FibScore       float64             `json:"fib_score"`
	PatternScore   float64             `json:"pattern_score"`
	VolumeScore    float64             `json:"volume_score"`
	SwingScore     float64             `json:"swing_score"`
	Score          float64             `json:"score"` // 0..100
	Quality        Quality             `json:"quality"`
	StopLoss       float64             `json:"stop_loss"`
	TakeProfit     float64             `json:"take_profit"`
	RiskReward     float64             `json:"risk_reward"`
	SwingOrigin    float64             `json:"swing_origin"`
	SwingMagnitude float64             `json:"swing_magnitude"`
}

// Scoring weights per Fibonacci ratio; the golden ratio carries the most.
var fibWeights = map[float64]float64{
	0.618: 30,
	0.5:   25,
	0.382: 22,
	0.786: 20,
	0.236: 15,
}

const fibWeightDefault = 15

// Strength multipliers for the pattern score.
var strengthMultipliers = map[patterns.Strength]float64{
	patterns.Strong:   1.0,
	patterns.Moderate: 0.8,
	patterns.Weak:     0.6,
}

const maxPatternScore = 35

// touchTolerance is the share of the bar's own range by which a level touch
// may miss the bar's [low, high].
const touchTolerance = 0.10

// stopBuffer places the stop-loss beyond the swing origin by this share of
// the swing magnitude.
const stopBuffer = 0.10

// Config holds signal generator parameters.
type Config struct {
	// RiskReward is the take-profit distance as a multiple of the risk
	// distance. Default 2.0.
	RiskReward float64 `json:"risk_reward"`
	// ModerateScore is the minimum score to emit a signal. Default 40.
	ModerateScore float64 `json:"moderate_score"`
	// StrongScore is the strong-quality cutoff. Default 70.
	StrongScore float64 `json:"strong_score"`
	// VolumeSpikeThreshold gates the volume factor attached to an enhanced
	// signal, matching the confluence engine's gate. Default 1.5.
	VolumeSpikeThreshold float64 `json:"volume_spike_threshold"`
}

// Generator validates level touches, requires directional pattern
// confirmation, scores total confluence and emits risk-managed signals.
type Generator struct {
	cfg    Config
	logger zerolog.Logger
}

// NewGenerator creates a signal generator with defaults filled in.
func NewGenerator(cfg Config, logger zerolog.Logger) *Generator {
	if cfg.RiskReward <= 0 {
		cfg.RiskReward = 2.0
	}
	if cfg.ModerateScore <= 0 {
		cfg.ModerateScore = 40
	}
	if cfg.StrongScore <= 0 {
		cfg.StrongScore = 70
	}
	if cfg.VolumeSpikeThreshold <= 0 {
		cfg.VolumeSpikeThreshold = 1.5
	}
	return &Generator{
		cfg:    cfg,
		logger: logger.With().Str("component", "SignalGenerator").Logger(),
	}
}

// Generate evaluates the current bar against the dominant swing's Fibonacci
// levels. Both preconditions must hold or nothing is produced: the bar must
// touch an un-hit level within tolerance, and a candlestick pattern must
// align with the dominant swing's direction (continuation, never
// counter-trend). The baseline signal is returned for every qualifying
// touch; the enhanced signal only when the confluence score clears the
// moderate threshold. The returned ratio identifies the touched level so the
// caller can mark it hit.
func (g *Generator) Generate(
	bar series.Bar,
	dominant *swing.Swing,
	levels []swing.FibonacciLevel,
	candles []patterns.Candlestick,
	volume *analysis.VolumeProfile,
	extra []confluence.Factor,
) (*Signal, *EnhancedSignal, float64, bool) {
	if dominant == nil || len(levels) == 0 {
		return nil, nil, 0, false
	}

	level, touched := g.touchedLevel(bar, levels)
	if !touched {
		return nil, nil, 0, false
	}

	pattern, ok := g.alignedPattern(dominant, candles)
	if !ok {
		return nil, nil, 0, false
	}

	side := Buy
	if dominant.Direction == swing.Down {
		side = Sell
	}
	entry := bar.Close
	stop, target, rr := g.riskLevels(side, entry, dominant)

	base := &Signal{
		ID:         uuid.New().String(),
		Time:       bar.Time,
		Side:       side,
		EntryPrice: entry,
		FibRatio:   level.Ratio,
		FibPrice:   level.Price,
		Pattern:    pattern,
		StopLoss:   stop,
		TakeProfit: target,
	}

	fibScore := fibWeight(level.Ratio)
	patternScore := strengthMultipliers[pattern.Strength] * pattern.Reliability * maxPatternScore
	volumeScore := volumeBand(volume)
	swingScore := swingQuality(dominant, bar)
	total := fibScore + patternScore + volumeScore + swingScore

	if total < g.cfg.ModerateScore {
		g.logger.Debug().
			Float64("score", total).
			Float64("ratio", level.Ratio).
			Msg("signal discarded below quality threshold")
		return base, nil, level.Ratio, true
	}

	quality := QualityModerate
	if total >= g.cfg.StrongScore {
		quality = QualityStrong
	}

	factors := make([]confluence.Factor, 0, 3+len(extra))
	factors = append(factors,
		confluence.FibonacciFactor(level, dominant.Direction, confluence.DefaultWeights[confluence.KindFibonacci], bar.Time),
		confluence.CandlestickFactor(pattern, confluence.DefaultWeights[confluence.KindCandlestick]),
	)
	if volume != nil && volume.VolumeRatio >= g.cfg.VolumeSpikeThreshold {
		factors = append(factors, confluence.VolumeFactor(volume, bar.Close, confluence.DefaultWeights[confluence.KindVolume], bar.Time))
	}
	factors = append(factors, extra...)

	enhanced := &EnhancedSignal{
		ID:             uuid.New().String(),
		Time:           bar.Time,
		Side:           side,
		EntryPrice:     entry,
		FibRatio:       level.Ratio,
		FibPrice:       level.Price,
		Pattern:        pattern,
		Factors:        factors,
		FibScore:       fibScore,
		PatternScore:   patternScore,
		VolumeScore:    volumeScore,
		SwingScore:     swingScore,
		Score:          total,
		Quality:        quality,
		StopLoss:       stop,
		TakeProfit:     target,
		RiskReward:     rr,
		SwingOrigin:    dominant.Start.Price,
		SwingMagnitude: dominant.Magnitude,
	}

	g.logger.Info().
		Str("side", string(side)).
		Float64("entry", entry).
		Float64("score", total).
		Str("quality", string(quality)).
		Float64("fib", level.Ratio).
		Msg("enhanced signal generated")

	return base, enhanced, level.Ratio, true
}

// touchedLevel returns the first un-hit level whose price falls inside the
// bar's range extended by the touch tolerance. Already-hit levels never
// re-fire.
func (g *Generator) touchedLevel(bar series.Bar, levels []swing.FibonacciLevel) (swing.FibonacciLevel, bool) {
	tol := bar.Range() * touchTolerance
	for _, lvl := range levels {
		if lvl.Hit {
			continue
		}
		if lvl.Price >= bar.Low-tol && lvl.Price <= bar.High+tol {
			return lvl, true
		}
	}
	return swing.FibonacciLevel{}, false
}

// alignedPattern returns the most reliable candlestick pattern whose
// direction matches the dominant swing's direction.
func (g *Generator) alignedPattern(dominant *swing.Swing, candles []patterns.Candlestick) (patterns.Candlestick, bool) {
	want := patterns.Bullish
	if dominant.Direction == swing.Down {
		want = patterns.Bearish
	}
	var best patterns.Candlestick
	found := false
	for _, c := range candles {
		if c.Direction != want {
			continue
		}
		if !found || c.Reliability > best.Reliability {
			best = c
			found = true
		}
	}
	return best, found
}

// riskLevels places the stop just beyond the swing origin (10% of magnitude
// as buffer) and the target at the configured risk-reward multiple.
func (g *Generator) riskLevels(side Side, entry float64, dominant *swing.Swing) (stop, target, rr float64) {
	buffer := dominant.Magnitude * stopBuffer
	if side == Buy {
		stop = dominant.Start.Price - buffer
		risk := entry - stop
		target = entry + risk*g.cfg.RiskReward
	} else {
		stop = dominant.Start.Price + buffer
		risk := stop - entry
		target = entry - risk*g.cfg.RiskReward
	}
	return stop, target, g.cfg.RiskReward
}

func fibWeight(ratio float64) float64 {
	if w, ok := fibWeights[ratio]; ok {
		return w
	}
	return fibWeightDefault
}

// volumeBand maps the volume ratio to the 0-20 volume score.
func volumeBand(v *analysis.VolumeProfile) float64 {
	if v == nil {
		return 0
	}
	switch {
	case v.VolumeRatio >= 3.0:
		return 20
	case v.VolumeRatio >= 2.0:
		return 15
	case v.VolumeRatio >= 1.5:
		return 10
	case v.VolumeRatio >= 1.2:
		return 5
	default:
		return 0
	}
}

// swingQuality grants up to 15 points: 8 for an active dominant swing and up
// to 7 more when the swing dwarfs the current bar's range.
func swingQuality(dominant *swing.Swing, bar series.Bar) float64 {
	score := 8.0
	rng := bar.Range()
	if rng <= 0 {
		return score
	}
	switch mult := dominant.Magnitude / rng; {
	case mult >= 20:
		score += 7
	case mult >= 10:
		score += 4
	}
	return score
}
