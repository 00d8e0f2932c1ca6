package abc

import (
	"math"
	"time"

	"market-structure-bot/internal/fractal"
	"market-structure-bot/internal/swing"

	"github.com/rs/zerolog"
)

// Wave C completion ratios relative to Wave A, and the acceptance tolerance.
var targetRatios = []float64{0.618, 1.0, 1.27}

const ratioTolerance = 0.10

// Wave B must retrace 38.2%-61.8% of Wave A.
const (
	minRetrace = 0.382
	maxRetrace = 0.618
)

// Wave is one leg of a corrective structure.
type Wave struct {
	Label      string          `json:"label"` // "A", "B" or "C"
	StartTime  time.Time       `json:"start_time"`
	EndTime    time.Time       `json:"end_time"`
	StartPrice float64         `json:"start_price"`
	EndPrice   float64         `json:"end_price"`
	Direction  swing.Direction `json:"direction"`
	Magnitude  float64         `json:"magnitude"`
	Bars       int             `json:"bars"`
}

// Pattern is a three-wave corrective structure inside the dominant swing.
// Wave A moves against the dominant direction, Wave B retraces part of A,
// Wave C resumes A's direction. The pattern is complete only once Wave C
// terminates at a confirmed fractal whose extension ratio to Wave A is within
// tolerance of 0.618, 1.0 or 1.27; until then Targets carries the three
// projected Wave C prices.
type Pattern struct {
	Type     string  `json:"type"`
	WaveA    Wave    `json:"wave_a"`
	WaveB    Wave    `json:"wave_b"`
	WaveC    *Wave   `json:"wave_c,omitempty"`
	Complete bool    `json:"complete"`
	CARatio  float64 `json:"c_a_ratio,omitempty"` // Wave C / Wave A when complete
	FibRatio float64 `json:"fib_ratio,omitempty"` // coinciding Fibonacci level ratio, 0 if none

	// Targets holds the projected Wave C prices at 61.8%, 100% and 127%
	// extension of Wave A from the Wave B endpoint, present while Wave C is
	// still forming.
	Targets []float64 `json:"targets,omitempty"`

	Score float64 `json:"score"`
}

type patternKey struct {
	aStart int64
	aEnd   int64
	cStart int64
}

// Config holds detector parameters.
type Config struct {
	// FibProximity is the relative distance within which a wave endpoint
	// counts as coinciding with a Fibonacci level. Defaults to 0.1%.
	FibProximity float64 `json:"fib_proximity"`
}

// Detector searches fractals inside the current dominant swing for the best
// ABC corrective structure. Only the single best-scoring pattern is emitted
// per bar, and a pattern already reported is not re-emitted.
type Detector struct {
	cfg    Config
	logger zerolog.Logger

	seen     map[patternKey]bool
	patterns []*Pattern
}

// NewDetector creates an ABC pattern detector.
func NewDetector(cfg Config, logger zerolog.Logger) *Detector {
	if cfg.FibProximity <= 0 {
		cfg.FibProximity = 0.001
	}
	return &Detector{
		cfg:    cfg,
		logger: logger.With().Str("component", "ABCDetector").Logger(),
		seen:   make(map[patternKey]bool),
	}
}

// Reset clears the emitted-pattern memory for a new session.
func (d *Detector) Reset() {
	d.seen = make(map[patternKey]bool)
	d.patterns = nil
}

// Patterns returns every pattern emitted this session, oldest first.
func (d *Detector) Patterns() []*Pattern {
	return d.patterns
}

// Detect evaluates the fractals inside the dominant swing and returns the
// best new pattern for this bar, or nil. Without a dominant swing there is
// nothing to correct against and detection is skipped entirely.
func (d *Detector) Detect(dominant *swing.Swing, fractals []fractal.Fractal, levels []swing.FibonacciLevel) *Pattern {
	if dominant == nil {
		return nil
	}

	// Only fractals inside the dominant swing participate.
	var inside []fractal.Fractal
	for _, f := range fractals {
		if f.Index >= dominant.Start.Index {
			inside = append(inside, f)
		}
	}
	if len(inside) < 3 {
		return nil
	}

	var best *Pattern
	for i := 0; i+2 < len(inside); i++ {
		var cEnd *fractal.Fractal
		if i+3 < len(inside) {
			cEnd = &inside[i+3]
		}
		p := d.build(dominant, inside[i], inside[i+1], inside[i+2], cEnd, levels)
		if p == nil {
			continue
		}
		if best == nil || p.Score > best.Score {
			best = p
		}
	}
	if best == nil {
		return nil
	}

	key := patternKey{
		aStart: best.WaveA.StartTime.UnixNano(),
		aEnd:   best.WaveA.EndTime.UnixNano(),
		cStart: best.WaveB.EndTime.UnixNano(),
	}
	if d.seen[key] {
		return nil
	}
	d.seen[key] = true
	d.patterns = append(d.patterns, best)

	d.logger.Debug().
		Str("type", best.Type).
		Bool("complete", best.Complete).
		Float64("score", best.Score).
		Msg("abc pattern detected")
	return best
}

// build assembles and validates one candidate from four consecutive fractals
// (the fourth may be nil while Wave C is still forming).
func (d *Detector) build(dominant *swing.Swing, f0, f1, f2 fractal.Fractal, f3 *fractal.Fractal, levels []swing.FibonacciLevel) *Pattern {
	waveA := makeWave("A", f0, f1)
	if waveA == nil || waveA.Direction == dominant.Direction {
		return nil // Wave A must be a correction
	}
	waveB := makeWave("B", f1, f2)
	if waveB == nil || waveB.Direction == waveA.Direction {
		return nil // Wave B must reverse Wave A
	}
	if waveA.Magnitude <= 0 {
		return nil
	}
	retrace := waveB.Magnitude / waveA.Magnitude
	if retrace < minRetrace || retrace > maxRetrace {
		return nil
	}

	p := &Pattern{
		Type:  patternType(dominant.Direction),
		WaveA: *waveA,
		WaveB: *waveB,
	}

	if f3 != nil {
		waveC := makeWave("C", f2, *f3)
		if waveC != nil && waveC.Direction == waveA.Direction {
			ratio := waveC.Magnitude / waveA.Magnitude
			if nearestRatioDistance(ratio) <= ratioTolerance {
				p.WaveC = waveC
				p.Complete = true
				p.CARatio = ratio
			}
		}
	}
	if !p.Complete {
		p.Targets = projectTargets(*waveA, *waveB)
	}

	p.FibRatio = d.fibCoincidence(p, levels)
	p.Score = score(p, retrace)
	return p
}

// score grades a candidate: +0.3 for completeness, up to +0.3 for Wave B
// retracement quality (best near 50-61.8%), up to +0.3 for Wave C ratio
// precision, +0.1 for coinciding with a Fibonacci level.
func score(p *Pattern, retrace float64) float64 {
	s := 0.0
	if p.Complete {
		s += 0.3
		s += 0.3 * (1.0 - nearestRatioDistance(p.CARatio)/ratioTolerance)
	}

	// Retracement quality: 1.0 inside [0.5, 0.618], linear falloff to the
	// lower bound.
	quality := 1.0
	if retrace < 0.5 {
		quality = (retrace - minRetrace) / (0.5 - minRetrace)
	}
	s += 0.3 * quality

	if p.FibRatio > 0 {
		s += 0.1
	}
	return s
}

// fibCoincidence returns the ratio of the Fibonacci level the pattern's
// terminal point sits on, or 0.
func (d *Detector) fibCoincidence(p *Pattern, levels []swing.FibonacciLevel) float64 {
	price := p.WaveB.EndPrice
	if p.Complete {
		price = p.WaveC.EndPrice
	}
	for _, lvl := range levels {
		if lvl.Price <= 0 {
			continue
		}
		if math.Abs(price-lvl.Price)/lvl.Price <= d.cfg.FibProximity {
			return lvl.Ratio
		}
	}
	return 0
}

// projectTargets extends Wave A's magnitude from the Wave B endpoint at the
// three completion ratios, in Wave A's direction.
func projectTargets(waveA, waveB Wave) []float64 {
	sign := 1.0
	if waveA.Direction == swing.Down {
		sign = -1.0
	}
	targets := make([]float64, 0, len(targetRatios))
	for _, r := range targetRatios {
		targets = append(targets, waveB.EndPrice+sign*r*waveA.Magnitude)
	}
	return targets
}

func nearestRatioDistance(ratio float64) float64 {
	best := math.Inf(1)
	for _, r := range targetRatios {
		if d := math.Abs(ratio - r); d < best {
			best = d
		}
	}
	return best
}

func makeWave(label string, from, to fractal.Fractal) *Wave {
	if to.Index <= from.Index || from.Type == to.Type {
		return nil
	}
	dir := swing.Up
	if to.Price < from.Price {
		dir = swing.Down
	}
	return &Wave{
		Label:      label,
		StartTime:  from.Time,
		EndTime:    to.Time,
		StartPrice: from.Price,
		EndPrice:   to.Price,
		Direction:  dir,
		Magnitude:  math.Abs(to.Price - from.Price),
		Bars:       to.Index - from.Index,
	}
}

// patternType tags the correction by the trend it corrects: an ABC inside an
// up swing resolves bullish, inside a down swing bearish.
func patternType(dominant swing.Direction) string {
	if dominant == swing.Up {
		return "bullish_abc"
	}
	return "bearish_abc"
}
