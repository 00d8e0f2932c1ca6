package patterns

import (
	"time"

	"market-structure-bot/internal/series"
)

// PatternType identifies a candlestick pattern.
type PatternType string

const (
	Hammer           PatternType = "hammer"
	BullishEngulfing PatternType = "bullish_engulfing"
	BearishEngulfing PatternType = "bearish_engulfing"
	Doji             PatternType = "doji"
	BullishPinBar    PatternType = "bullish_pin_bar"
	BearishPinBar    PatternType = "bearish_pin_bar"
)

// Direction of a pattern's implied pressure.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Strength tiers at fixed reliability cutoffs.
type Strength string

const (
	Weak     Strength = "weak"
	Moderate Strength = "moderate"
	Strong   Strength = "strong"
)

// Candlestick is a detected single- or two-bar pattern.
type Candlestick struct {
	Type        PatternType `json:"type"`
	Time        time.Time   `json:"time"`
	Price       float64     `json:"price"` // close of the pattern bar
	Reliability float64     `json:"reliability"`
	Direction   Direction   `json:"direction"`
	Strength    Strength    `json:"strength"`
}

// Geometry thresholds.
const (
	hammerShadowBody = 2.0  // lower shadow >= 2x body
	hammerUpperBody  = 0.5  // upper shadow <= 0.5x body
	dojiBodyRange    = 0.05 // body < 5% of total range
	pinBarShadow     = 0.66 // one shadow >= 66% of total range
)

// Detector detects candlestick patterns on the newest bar of a series.
type Detector struct{}

// NewDetector creates a candlestick pattern detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect examines the current bar (and the previous one for engulfing
// patterns) and returns every pattern present, possibly more than one.
func (d *Detector) Detect(prev *series.Bar, cur series.Bar) []Candlestick {
	var out []Candlestick

	add := func(t PatternType, dir Direction, reliability float64) {
		out = append(out, Candlestick{
			Type:        t,
			Time:        cur.Time,
			Price:       cur.Close,
			Reliability: reliability,
			Direction:   dir,
			Strength:    strengthTier(reliability),
		})
	}

	if ok, rel := d.isHammer(cur); ok {
		add(Hammer, Bullish, rel)
	}
	if prev != nil {
		if ok, rel := d.isEngulfing(*prev, cur, true); ok {
			add(BullishEngulfing, Bullish, rel)
		}
		if ok, rel := d.isEngulfing(*prev, cur, false); ok {
			add(BearishEngulfing, Bearish, rel)
		}
	}
	if ok, rel := d.isDoji(cur); ok {
		add(Doji, Neutral, rel)
	}
	if ok, dir, rel := d.isPinBar(cur); ok {
		if dir == Bullish {
			add(BullishPinBar, Bullish, rel)
		} else {
			add(BearishPinBar, Bearish, rel)
		}
	}

	return out
}

// isHammer requires a lower shadow at least twice the body and an upper
// shadow no more than half the body. Reliability grows with the lower
// shadow-to-body ratio.
func (d *Detector) isHammer(c series.Bar) (bool, float64) {
	body := c.Body()
	if body <= 0 || c.Range() <= 0 {
		return false, 0
	}
	if c.LowerShadow() < body*hammerShadowBody {
		return false, 0
	}
	if c.UpperShadow() > body*hammerUpperBody {
		return false, 0
	}
	// Ratio 2 is the minimum geometry (0.5); ratio 4+ saturates at 1.0.
	rel := clamp01(c.LowerShadow() / body / 4.0)
	if rel < 0.5 {
		rel = 0.5
	}
	return true, rel
}

// isEngulfing requires the current body to fully engulf the prior bar's body
// in the stated direction. Reliability grows with the body-size ratio.
func (d *Detector) isEngulfing(prev, cur series.Bar, bullish bool) (bool, float64) {
	prevBody := prev.Body()
	curBody := cur.Body()
	if prevBody <= 0 || curBody <= 0 {
		return false, 0
	}
	if bullish {
		if !prev.IsBearish() || !cur.IsBullish() {
			return false, 0
		}
		if cur.Open > prev.Close || cur.Close < prev.Open {
			return false, 0
		}
	} else {
		if !prev.IsBullish() || !cur.IsBearish() {
			return false, 0
		}
		if cur.Open < prev.Close || cur.Close > prev.Open {
			return false, 0
		}
	}
	rel := clamp01(0.4 + 0.2*curBody/prevBody)
	return true, rel
}

// isDoji requires the body to be under 5% of the total range. Reliability
// grows as the body shrinks toward zero.
func (d *Detector) isDoji(c series.Bar) (bool, float64) {
	rng := c.Range()
	if rng <= 0 {
		return false, 0
	}
	bodyRatio := c.Body() / rng
	if bodyRatio >= dojiBodyRange {
		return false, 0
	}
	rel := clamp01(0.5 + 0.5*(1.0-bodyRatio/dojiBodyRange))
	return true, rel
}

// isPinBar requires one shadow to cover at least 66% of the total range. A
// long lower shadow rejects lower prices (bullish); a long upper shadow
// rejects higher prices (bearish).
func (d *Detector) isPinBar(c series.Bar) (bool, Direction, float64) {
	rng := c.Range()
	if rng <= 0 {
		return false, Neutral, 0
	}
	lower := c.LowerShadow() / rng
	upper := c.UpperShadow() / rng

	switch {
	case lower >= pinBarShadow:
		return true, Bullish, pinBarReliability(lower)
	case upper >= pinBarShadow:
		return true, Bearish, pinBarReliability(upper)
	}
	return false, Neutral, 0
}

// pinBarReliability maps the shadow share 0.66..0.90 onto 0.5..1.0.
func pinBarReliability(shadowRatio float64) float64 {
	rel := 0.5 + 0.5*(shadowRatio-pinBarShadow)/(0.90-pinBarShadow)
	return clamp01(rel)
}

func strengthTier(reliability float64) Strength {
	switch {
	case reliability > 0.8:
		return Strong
	case reliability > 0.5:
		return Moderate
	default:
		return Weak
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
