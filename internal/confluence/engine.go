package confluence

import (
	"math"
	"time"

	"market-structure-bot/internal/analysis"
	"market-structure-bot/internal/patterns"
	"market-structure-bot/internal/series"

	"github.com/rs/zerolog"
)

// Zone strength tiers by factor count.
const (
	strongZoneFactors   = 5
	moderateZoneFactors = 3
)

// Zone is a price-proximity cluster of independent supporting factors.
type Zone struct {
	Price         float64            `json:"price"` // cluster center
	Factors       []Factor           `json:"factors"`
	Score         int                `json:"score"`          // factor count
	WeightedScore float64            `json:"weighted_score"` // sum(weight x confidence)
	Strength      patterns.Strength  `json:"strength"`
	Direction     patterns.Direction `json:"direction"` // majority vote, weighted
}

// Config holds confluence engine parameters.
type Config struct {
	// Distance is the relative price proximity for clustering. Default 0.1%.
	Distance float64 `json:"distance"`
	// MinFactors is the minimum cluster size for a zone. Default 2.
	MinFactors int `json:"min_factors"`
	// VolumeSpikeThreshold gates the volume factor. Default 1.5.
	VolumeSpikeThreshold float64 `json:"volume_spike_threshold"`
	// VolumePeriod sets the trailing average window. Default 20.
	VolumePeriod int `json:"volume_period"`
	// Weights overrides the per-kind factor weight table.
	Weights map[FactorKind]float64 `json:"-"`
}

// Engine independently detects candlestick patterns and volume anomalies and
// clusters supplied factors into weighted price-proximity zones.
type Engine struct {
	cfg     Config
	logger  zerolog.Logger
	candles *patterns.Detector
	volume  *analysis.VolumeAnalyzer
}

// NewEngine creates a confluence engine with defaults filled in.
func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	if cfg.Distance <= 0 {
		cfg.Distance = 0.001
	}
	if cfg.MinFactors <= 0 {
		cfg.MinFactors = 2
	}
	if cfg.VolumeSpikeThreshold <= 0 {
		cfg.VolumeSpikeThreshold = 1.5
	}
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger.With().Str("component", "ConfluenceEngine").Logger(),
		candles: patterns.NewDetector(),
		volume:  analysis.NewVolumeAnalyzer(cfg.VolumePeriod),
	}
}

// Weight returns the configured weight for a factor kind.
func (e *Engine) Weight(kind FactorKind) float64 {
	if w, ok := e.cfg.Weights[kind]; ok {
		return w
	}
	return 1.0
}

// DetectCandlesticks runs price-action detection on the newest bar.
func (e *Engine) DetectCandlesticks(bars []series.Bar) []patterns.Candlestick {
	if len(bars) == 0 {
		return nil
	}
	var prev *series.Bar
	if len(bars) > 1 {
		prev = &bars[len(bars)-2]
	}
	return e.candles.Detect(prev, bars[len(bars)-1])
}

// VolumeProfile analyzes the newest bar's volume.
func (e *Engine) VolumeProfile(bars []series.Bar) *analysis.VolumeProfile {
	return e.volume.Analyze(bars)
}

// DetectVolumeFactor emits a volume factor only when the current volume
// ratio meets the spike threshold.
func (e *Engine) DetectVolumeFactor(bars []series.Bar) (Factor, bool) {
	profile := e.volume.Analyze(bars)
	if profile == nil || profile.VolumeRatio < e.cfg.VolumeSpikeThreshold {
		return Factor{}, false
	}
	cur := bars[len(bars)-1]
	return VolumeFactor(profile, cur.Close, e.Weight(KindVolume), cur.Time), true
}

// BuildZones greedily clusters factors carrying a price level: each
// unclustered factor seeds a cluster and absorbs every other factor within
// the relative distance threshold. A cluster becomes a zone only with at
// least MinFactors members.
func (e *Engine) BuildZones(factors []Factor, at time.Time) []Zone {
	used := make([]bool, len(factors))
	var zones []Zone

	for i := range factors {
		if used[i] || !factors[i].HasPrice {
			continue
		}
		cluster := []Factor{factors[i]}
		used[i] = true

		for j := range factors {
			if used[j] || !factors[j].HasPrice {
				continue
			}
			if relativeDistance(factors[i].Price, factors[j].Price) <= e.cfg.Distance {
				cluster = append(cluster, factors[j])
				used[j] = true
			}
		}

		if len(cluster) < e.cfg.MinFactors {
			continue
		}
		zone := makeZone(cluster)
		zones = append(zones, zone)
		e.logger.Debug().
			Float64("price", zone.Price).
			Int("factors", zone.Score).
			Str("strength", string(zone.Strength)).
			Time("at", at).
			Msg("confluence zone formed")
	}

	return zones
}

func makeZone(cluster []Factor) Zone {
	var center, weighted float64
	var bull, bear float64
	for _, f := range cluster {
		center += f.Price
		weighted += f.Weight * f.Confidence
		switch f.Direction {
		case patterns.Bullish:
			bull += f.Weight
		case patterns.Bearish:
			bear += f.Weight
		}
	}
	center /= float64(len(cluster))

	dir := patterns.Neutral
	if bull > bear {
		dir = patterns.Bullish
	} else if bear > bull {
		dir = patterns.Bearish
	}

	return Zone{
		Price:         center,
		Factors:       cluster,
		Score:         len(cluster),
		WeightedScore: weighted,
		Strength:      zoneStrength(len(cluster)),
		Direction:     dir,
	}
}

func zoneStrength(count int) patterns.Strength {
	switch {
	case count >= strongZoneFactors:
		return patterns.Strong
	case count >= moderateZoneFactors:
		return patterns.Moderate
	default:
		return patterns.Weak
	}
}

func relativeDistance(a, b float64) float64 {
	base := math.Max(math.Abs(a), math.Abs(b))
	if base == 0 {
		return 0
	}
	return math.Abs(a-b) / base
}
