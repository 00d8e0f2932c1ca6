package confluence

import (
	"encoding/json"
	"time"

	"market-structure-bot/internal/abc"
	"market-structure-bot/internal/analysis"
	"market-structure-bot/internal/patterns"
	"market-structure-bot/internal/swing"
)

// FactorKind is the closed set of confluence factor sources. Branching on
// kinds goes through the weight table, not string comparisons.
type FactorKind int

const (
	KindFibonacci FactorKind = iota
	KindABCPattern
	KindCandlestick
	KindVolume
)

var kindNames = [...]string{"fibonacci", "abc_pattern", "candlestick", "volume"}

func (k FactorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// MarshalJSON serializes the kind by name at the external-interface edge.
func (k FactorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// DefaultWeights leans the factor table toward Fibonacci and volume
// evidence, which also drives a zone's direction vote.
var DefaultWeights = map[FactorKind]float64{
	KindFibonacci:   1.5,
	KindABCPattern:  1.3,
	KindCandlestick: 1.0,
	KindVolume:      1.2,
}

// Factor is one piece of supporting evidence, optionally anchored to a price
// level for zone clustering.
type Factor struct {
	Kind       FactorKind         `json:"kind"`
	Value      float64            `json:"value"`
	Weight     float64            `json:"weight"`
	Confidence float64            `json:"confidence"` // 0..1
	Price      float64            `json:"price,omitempty"`
	HasPrice   bool               `json:"has_price"`
	Direction  patterns.Direction `json:"direction"`
	Time       time.Time          `json:"time"`
}

// FibonacciFactor builds a factor from a touched retracement level. Its
// direction follows the dominant swing: a retracement touch argues for
// continuation.
func FibonacciFactor(level swing.FibonacciLevel, dominant swing.Direction, weight float64, at time.Time) Factor {
	dir := patterns.Bullish
	if dominant == swing.Down {
		dir = patterns.Bearish
	}
	return Factor{
		Kind:       KindFibonacci,
		Value:      level.Ratio,
		Weight:     weight,
		Confidence: fibConfidence(level.Ratio),
		Price:      level.Price,
		HasPrice:   true,
		Direction:  dir,
		Time:       at,
	}
}

// fibConfidence favors the golden ratio and the midpoint over shallow or
// deep retracements.
func fibConfidence(ratio float64) float64 {
	switch ratio {
	case 0.618:
		return 1.0
	case 0.5:
		return 0.85
	case 0.382:
		return 0.75
	case 0.786:
		return 0.65
	default:
		return 0.5
	}
}

// CandlestickFactor builds a factor from a detected candlestick pattern.
func CandlestickFactor(c patterns.Candlestick, weight float64) Factor {
	return Factor{
		Kind:       KindCandlestick,
		Value:      c.Reliability,
		Weight:     weight,
		Confidence: c.Reliability,
		Price:      c.Price,
		HasPrice:   true,
		Direction:  c.Direction,
		Time:       c.Time,
	}
}

// ABCFactor builds a factor from an ABC pattern, anchored at the pattern's
// terminal price (Wave C end when complete, Wave B end otherwise).
func ABCFactor(p *abc.Pattern, weight float64) Factor {
	price := p.WaveB.EndPrice
	at := p.WaveB.EndTime
	if p.Complete {
		price = p.WaveC.EndPrice
		at = p.WaveC.EndTime
	}
	dir := patterns.Bullish
	if p.Type == "bearish_abc" {
		dir = patterns.Bearish
	}
	confidence := p.Score
	if confidence > 1 {
		confidence = 1
	}
	return Factor{
		Kind:       KindABCPattern,
		Value:      p.Score,
		Weight:     weight,
		Confidence: confidence,
		Price:      price,
		HasPrice:   true,
		Direction:  dir,
		Time:       at,
	}
}

// VolumeFactor builds a factor from a volume spike, anchored at the bar's
// close. Confidence is min(ratio/3, 1).
func VolumeFactor(profile *analysis.VolumeProfile, price float64, weight float64, at time.Time) Factor {
	confidence := profile.VolumeRatio / 3.0
	if confidence > 1 {
		confidence = 1
	}
	dir := patterns.Neutral
	switch profile.VolumeType {
	case "buying":
		dir = patterns.Bullish
	case "selling":
		dir = patterns.Bearish
	}
	return Factor{
		Kind:       KindVolume,
		Value:      profile.VolumeRatio,
		Weight:     weight,
		Confidence: confidence,
		Price:      price,
		HasPrice:   true,
		Direction:  dir,
		Time:       at,
	}
}
