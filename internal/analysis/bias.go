package analysis

import (
	"market-structure-bot/internal/swing"
)

// Bias is the market lean derived from the dominant swing's direction.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNeutral Bias = "neutral"
)

// MarketBias maps the dominant swing to a bias: an up swing is bullish, a
// down swing bearish, no dominant swing neutral.
func MarketBias(dominant *swing.Swing) Bias {
	if dominant == nil {
		return BiasNeutral
	}
	if dominant.Direction == swing.Up {
		return BiasBullish
	}
	return BiasBearish
}
